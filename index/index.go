// Package index implements the inverted-index decorator: postings
// keyed by (level, token) with union/intersection search primitives
// layered atop the plain key/value verbs.
package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/wire"
)

const levelTokenSep = 0x1E

// postingSep joins entity identifiers within one posting value.
const postingSep = 0x00

// Index wraps a table holding inverted-index postings.
type Index struct {
	Conn  *client.Sync
	Table uint32
}

// New wraps an already-open table as an inverted index.
func New(conn *client.Sync, table uint32) *Index {
	return &Index{Conn: conn, Table: table}
}

// key builds the (level, token) database key: level || 0x1E || token.
func key(level, token string) []byte {
	b := make([]byte, 0, len(level)+1+len(token))
	b = append(b, level...)
	b = append(b, levelTokenSep)
	b = append(b, token...)
	return b
}

// extractLevel recovers the level prefix from a database key.
func extractLevel(dbKey []byte) string {
	if i := bytes.LastIndexByte(dbKey, levelTokenSep); i >= 0 {
		return string(dbKey[:i])
	}
	return ""
}

// splitPostings splits a posting value into its entity identifiers.
// An empty value yields no identifiers.
func splitPostings(value []byte) []string {
	if len(value) == 0 {
		return nil
	}
	parts := bytes.Split(value, []byte{postingSep})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

func joinPostings(ids []string) []byte {
	var buf bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(postingSep)
		}
		buf.WriteString(id)
	}
	return buf.Bytes()
}

func stringSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setUnion(dst map[string]struct{}, ids []string) {
	for _, id := range ids {
		dst[id] = struct{}{}
	}
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// WriteIndex replaces the posting for (token, level) with entityList.
// Whether this is a replace or an additive merge depends on the merge
// operator the table was opened with (NULAPPEND makes it additive).
func (idx *Index) WriteIndex(token string, entityList []string, level string) error {
	kv := client.KV{Key: key(level, token), Value: joinPostings(entityList)}
	return idx.Conn.Put(idx.Table, []client.KV{kv}, false, false)
}

// IndexTokens is the transpose of WriteIndex: one entity, many tokens.
// It writes one record per token, each holding entity as its posting.
func (idx *Index) IndexTokens(tokens []string, entity string, level string) error {
	if len(tokens) == 0 {
		return nil
	}
	pairs := make([]client.KV, len(tokens))
	for i, tok := range tokens {
		pairs[i] = client.KV{Key: key(level, tok), Value: []byte(entity)}
	}
	return idx.Conn.Put(idx.Table, pairs, false, false)
}

// SearchSingleTokenExact reads token's posting for each level with one
// batched read, returning the set of ids per level.
func (idx *Index) SearchSingleTokenExact(token string, levels []string) (map[string][]string, error) {
	if len(levels) == 0 {
		levels = []string{""}
	}
	keys := make([]codec.Value, len(levels))
	for i, lvl := range levels {
		keys[i] = key(lvl, token)
	}
	values, err := idx.Conn.Read(idx.Table, keys)
	if err != nil {
		return nil, fmt.Errorf("index: search single token exact: %w", err)
	}
	out := make(map[string][]string, len(levels))
	for i, lvl := range levels {
		out[lvl] = splitPostings(values[i])
	}
	return out, nil
}

// SearchSingleTokenPrefix scans one range per level,
// [level||0x1E||token, lex-successor), returning the union of ids hit
// by any key in that range.
func (idx *Index) SearchSingleTokenPrefix(token string, levels []string, limit int64) (map[string][]string, error) {
	if len(levels) == 0 {
		levels = []string{""}
	}
	out := make(map[string][]string, len(levels))
	for _, lvl := range levels {
		startKey := key(lvl, token)
		endKey := wire.LexSuccessor(append([]byte(nil), startKey...))
		pairs, err := idx.Conn.Scan(idx.Table, client.ScanOptions{
			StartKey: startKey,
			EndKey:   endKey,
			Limit:    &limit,
		})
		if err != nil {
			return nil, fmt.Errorf("index: search single token prefix: %w", err)
		}
		union := make(map[string]struct{})
		for _, p := range pairs {
			setUnion(union, splitPostings(p.Value))
		}
		out[lvl] = setToSortedSlice(union)
	}
	return out, nil
}

// SearchMultiTokenExact reads the cartesian of (levels x tokens) in
// one batched read, then intersects the per-level postings across
// tokens. A token with no hit is ignored unless strict, in which case
// it forces the empty intersection for that level.
func (idx *Index) SearchMultiTokenExact(tokens, levels []string, strict bool) (map[string][]string, error) {
	if len(levels) == 0 {
		levels = []string{""}
	}
	type pair struct{ level, token string }
	var order []pair
	keys := make([]codec.Value, 0, len(levels)*len(tokens))
	for _, lvl := range levels {
		for _, tok := range tokens {
			order = append(order, pair{lvl, tok})
			keys = append(keys, key(lvl, tok))
		}
	}
	values, err := idx.Conn.Read(idx.Table, keys)
	if err != nil {
		return nil, fmt.Errorf("index: search multi token exact: %w", err)
	}
	inited := make(map[string]bool, len(levels))
	acc := make(map[string]map[string]struct{}, len(levels))
	for i, p := range order {
		hits := splitPostings(values[i])
		if len(hits) == 0 && !strict {
			continue
		}
		hitSet := stringSet(hits)
		if !inited[p.level] {
			acc[p.level] = hitSet
			inited[p.level] = true
			continue
		}
		for id := range acc[p.level] {
			if _, ok := hitSet[id]; !ok {
				delete(acc[p.level], id)
			}
		}
	}
	out := make(map[string][]string, len(levels))
	for _, lvl := range levels {
		out[lvl] = setToSortedSlice(acc[lvl])
	}
	return out, nil
}

// SearchMultiTokenPrefix calls SearchSingleTokenPrefix per token and
// intersects the per-level result sets, with the same strict
// semantics as SearchMultiTokenExact.
func (idx *Index) SearchMultiTokenPrefix(tokens, levels []string, limit int64, strict bool) (map[string][]string, error) {
	if len(levels) == 0 {
		levels = []string{""}
	}
	inited := make(map[string]bool, len(levels))
	acc := make(map[string]map[string]struct{}, len(levels))
	for _, tok := range tokens {
		result, err := idx.SearchSingleTokenPrefix(tok, levels, limit)
		if err != nil {
			return nil, err
		}
		for _, lvl := range levels {
			hits := result[lvl]
			if len(hits) == 0 && !strict {
				continue
			}
			hitSet := stringSet(hits)
			if !inited[lvl] {
				acc[lvl] = hitSet
				inited[lvl] = true
				continue
			}
			for id := range acc[lvl] {
				if _, ok := hitSet[id]; !ok {
					delete(acc[lvl], id)
				}
			}
		}
	}
	out := make(map[string][]string, len(levels))
	for _, lvl := range levels {
		out[lvl] = setToSortedSlice(acc[lvl])
	}
	return out, nil
}

// EntityHit is one (entityId, entityPart) pair recovered from a
// posting entry that carries a 0x1E-separated "hit location" suffix.
type EntityHit struct {
	EntityID string
	Part     string
}

func splitEntityPart(entry string) EntityHit {
	if i := bytes.IndexByte([]byte(entry), levelTokenSep); i >= 0 {
		return EntityHit{EntityID: entry[:i], Part: entry[i+1:]}
	}
	return EntityHit{EntityID: entry}
}

// SearchSingleTokenMultiExact reads N token keys at level in one
// batched read, returning each token's postings split into
// (entityId, entityPart) pairs.
func (idx *Index) SearchSingleTokenMultiExact(tokens []string, level string) (map[string][]EntityHit, error) {
	keys := make([]codec.Value, len(tokens))
	for i, tok := range tokens {
		keys[i] = key(level, tok)
	}
	values, err := idx.Conn.Read(idx.Table, keys)
	if err != nil {
		return nil, fmt.Errorf("index: search single token multi exact: %w", err)
	}
	out := make(map[string][]EntityHit, len(tokens))
	for i, tok := range tokens {
		postings := splitPostings(values[i])
		hits := make([]EntityHit, len(postings))
		for j, p := range postings {
			hits[j] = splitEntityPart(p)
		}
		out[tok] = hits
	}
	return out, nil
}

// SelectResults walks levels in priority order, concatenating ids
// while stripping duplicates (order preserving). It stops adding
// further levels once the accumulator reaches minHits, then truncates
// to maxHits.
func SelectResults(resultsByLevel map[string][]string, levelsInPriorityOrder []string, minHits, maxHits int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, lvl := range levelsInPriorityOrder {
		if len(out) >= minHits {
			break
		}
		for _, id := range resultsByLevel[lvl] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if maxHits >= 0 && len(out) > maxHits {
		out = out[:maxHits]
	}
	return out
}
