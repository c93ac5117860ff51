// Package tui is a minimal terminal viewer for a live monitor.Event
// feed: a scrolling, auto-following table of verb invocations.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yakdb/yakdb-go/monitor"
)

const maxRows = 1000

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

type eventMsg monitor.Event

type closedMsg struct{}

type model struct {
	ch     <-chan monitor.Event
	events []monitor.Event
	cursor int
	height int
	width  int

	filtering   bool
	filterInput string
	filterConds []filterCondition
}

func newModel(ch <-chan monitor.Event) model {
	return model{ch: ch}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.ch)
}

func waitForEvent(ch <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case eventMsg:
		m.events = append(m.events, monitor.Event(msg))
		if len(m.events) > maxRows {
			m.events = m.events[len(m.events)-maxRows:]
		}
		m.cursor = len(m.events) - 1
		return m, waitForEvent(m.ch)
	case closedMsg:
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilterInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "/":
			m.filtering = true
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.visibleEvents())-1 {
				m.cursor++
			}
			return m, nil
		}
	}
	return m, nil
}

// updateFilterInput handles keystrokes while the filter bar has focus:
// printable runes extend the query, backspace trims it, enter commits
// it as the active filter, and esc cancels back to the unfiltered view.
func (m model) updateFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filtering = false
		m.filterConds = parseFilter(m.filterInput)
		m.cursor = len(m.visibleEvents()) - 1
		return m, nil
	case "esc":
		m.filtering = false
		m.filterInput = ""
		m.filterConds = nil
		m.cursor = len(m.visibleEvents()) - 1
		return m, nil
	case "backspace":
		if len(m.filterInput) > 0 {
			m.filterInput = m.filterInput[:len(m.filterInput)-1]
		}
		return m, nil
	}
	if msg.Type == tea.KeyRunes {
		m.filterInput += string(msg.Runes)
	}
	return m, nil
}

// visibleEvents returns m.events narrowed by the active filter, if any.
func (m model) visibleEvents() []monitor.Event {
	if len(m.filterConds) == 0 {
		return m.events
	}
	out := make([]monitor.Event, 0, len(m.events))
	for _, ev := range m.events {
		if matchAllConditions(ev, m.filterConds) {
			out = append(out, ev)
		}
	}
	return out
}

func (m model) View() string {
	header := fmt.Sprintf("%-8s %-18s %-6s %-10s %s", "TIME", "VERB", "TABLE", "DURATION", "ERROR")
	lines := []string{headerStyle.Render(header)}

	events := m.visibleEvents()
	footerLines := 1 // filter bar
	visible := m.height - 2 - footerLines
	if visible <= 0 {
		visible = 30
	}
	start := 0
	if len(events) > visible {
		start = len(events) - visible
	}
	for i := start; i < len(events); i++ {
		lines = append(lines, m.renderRow(events[i]))
	}
	lines = append(lines, m.renderFilterBar())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) renderFilterBar() string {
	if m.filtering {
		return dimStyle.Render("/" + m.filterInput)
	}
	if len(m.filterConds) > 0 {
		return dimStyle.Render("filter: " + describeFilter(m.filterInput) + "  (esc to clear)")
	}
	return dimStyle.Render("/ to filter")
}

func (m model) renderRow(ev monitor.Event) string {
	table := "-"
	if ev.HasTable {
		table = fmt.Sprintf("%d", ev.Table)
	}
	line := fmt.Sprintf("%s %s %s %s",
		padRight(formatTime(ev.StartTime), 12),
		padRight(ev.Verb.String(), 18),
		padRight(table, 6),
		padRight(formatDuration(ev.Duration), 10),
	)
	if ev.Err != nil {
		return errStyle.Render(line + " " + truncate(ev.Err.Error(), 60))
	}
	return dimStyle.Render(line)
}

// Run drives the terminal viewer until the context is cancelled or
// the user quits.
func Run(ctx context.Context, ch <-chan monitor.Event) error {
	p := tea.NewProgram(newModel(ch))
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}
