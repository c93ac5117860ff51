package tui

import (
	"regexp"
	"strings"
	"time"

	"github.com/yakdb/yakdb-go/monitor"
)

type filterKind int

const (
	filterText     filterKind = iota // plain text substring match against the verb name
	filterDuration                   // d>100ms, d<10ms
	filterError                      // "error" keyword
	filterVerb                       // verb:read, verb:scan, etc.
)

type durationOp int

const (
	durGT durationOp = iota // >
	durLT                   // <
)

type filterCondition struct {
	kind filterKind

	// filterText
	text string

	// filterDuration
	durOp    durationOp
	durValue time.Duration

	// filterVerb — matched against monitor.Verb.String(), case-insensitive
	verbPattern string
}

var reDuration = regexp.MustCompile(`^d([><])(\d+(?:\.\d+)?)(us|µs|ms|s|m)$`)

func parseFilter(input string) []filterCondition {
	tokens := strings.Fields(input)
	conds := make([]filterCondition, 0, len(tokens))

	for _, tok := range tokens {
		if c, ok := parseDuration(tok); ok {
			conds = append(conds, c)
			continue
		}
		if strings.ToLower(tok) == "error" {
			conds = append(conds, filterCondition{kind: filterError})
			continue
		}
		if c, ok := parseVerb(tok); ok {
			conds = append(conds, c)
			continue
		}
		// Fallback: plain text match against the verb name.
		conds = append(conds, filterCondition{
			kind: filterText,
			text: strings.ToLower(tok),
		})
	}
	return conds
}

func parseDuration(tok string) (filterCondition, bool) {
	m := reDuration.FindStringSubmatch(tok)
	if m == nil {
		return filterCondition{}, false
	}
	op := durGT
	if m[1] == "<" {
		op = durLT
	}
	unit := m[3]
	raw := m[2] + unitSuffix(unit)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return filterCondition{}, false
	}
	return filterCondition{
		kind:     filterDuration,
		durOp:    op,
		durValue: d,
	}, true
}

func unitSuffix(unit string) string {
	switch unit {
	case "us", "µs":
		return "us"
	case "ms":
		return "ms"
	case "s":
		return "s"
	case "m":
		return "m"
	}
	return "ms"
}

func parseVerb(tok string) (filterCondition, bool) {
	lower := strings.ToLower(tok)
	if !strings.HasPrefix(lower, "verb:") {
		return filterCondition{}, false
	}
	pattern := lower[len("verb:"):]
	if pattern == "" {
		return filterCondition{}, false
	}
	return filterCondition{
		kind:        filterVerb,
		verbPattern: pattern,
	}, true
}

func (c filterCondition) matchesEvent(ev monitor.Event) bool {
	switch c.kind {
	case filterText:
		return strings.Contains(strings.ToLower(ev.Verb.String()), c.text)
	case filterDuration:
		switch c.durOp {
		case durGT:
			return ev.Duration > c.durValue
		case durLT:
			return ev.Duration < c.durValue
		}
	case filterError:
		return ev.Err != nil
	case filterVerb:
		return strings.ToLower(ev.Verb.String()) == c.verbPattern
	}
	return false
}

func matchAllConditions(ev monitor.Event, conds []filterCondition) bool {
	for _, c := range conds {
		if !c.matchesEvent(ev) {
			return false
		}
	}
	return true
}

func describeFilter(input string) string {
	conds := parseFilter(input)
	if len(conds) == 0 {
		return input
	}
	var parts []string
	for _, c := range conds {
		switch c.kind {
		case filterText:
			parts = append(parts, "text:"+c.text)
		case filterDuration:
			op := ">"
			if c.durOp == durLT {
				op = "<"
			}
			parts = append(parts, "d"+op+c.durValue.String())
		case filterError:
			parts = append(parts, "error")
		case filterVerb:
			parts = append(parts, "verb:"+c.verbPattern)
		}
	}
	return strings.Join(parts, " ")
}
