package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
)

// hitLocKey is the reserved field under which SearchSingleTokenMultiExact
// injects the document-part ("hit location") of a match.
const hitLocKey = "hitloc"

// Packer serializes and deserializes the language-agnostic entity
// object (able to round-trip maps, lists, integers, floats, strings).
type Packer interface {
	Pack(entity map[string]any) ([]byte, error)
	Unpack(data []byte) (map[string]any, error)
}

// JSONPacker is the default Packer, using encoding/json.
type JSONPacker struct{}

func (JSONPacker) Pack(entity map[string]any) ([]byte, error) {
	b, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("index: pack entity: %w", err)
	}
	return b, nil
}

func (JSONPacker) Unpack(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("index: unpack entity: %w", err)
	}
	return out, nil
}

// Extractor derives the entity table key from a packed entity.
type Extractor func(packed []byte) string

// DefaultExtractor keys an entity by the first 16 bytes of
// base64(SHA-1(packed)).
func DefaultExtractor(packed []byte) string {
	sum := sha1.Sum(packed)
	encoded := base64.StdEncoding.EncodeToString(sum[:])
	if len(encoded) > 16 {
		encoded = encoded[:16]
	}
	return encoded
}

// EntityIndex decorates an Index with entity storage in a separate
// table: index hits are resolved to their packed entity rows.
type EntityIndex struct {
	Idx         *Index
	Conn        *client.Sync
	EntityTable uint32
	Packer      Packer
	Extractor   Extractor
	Levels      []string
	MinEntities int
	MaxEntities int
}

// NewEntityIndex wraps idx with entity storage in entityTable, using
// JSONPacker and DefaultExtractor unless overridden on the returned
// value.
func NewEntityIndex(idx *Index, entityTable uint32, levels []string, minEntities, maxEntities int) *EntityIndex {
	return &EntityIndex{
		Idx:         idx,
		Conn:        idx.Conn,
		EntityTable: entityTable,
		Packer:      JSONPacker{},
		Extractor:   DefaultExtractor,
		Levels:      levels,
		MinEntities: minEntities,
		MaxEntities: maxEntities,
	}
}

// Put packs entity, derives its key via Extractor, and writes it to
// the entity table.
func (e *EntityIndex) Put(entity map[string]any) (id string, err error) {
	packed, err := e.Packer.Pack(entity)
	if err != nil {
		return "", err
	}
	id = e.Extractor(packed)
	if err := e.Conn.Put(e.EntityTable, []client.KV{{Key: []byte(id), Value: packed}}, false, false); err != nil {
		return "", fmt.Errorf("index: put entity: %w", err)
	}
	return id, nil
}

// resolve strips any 0x1E-separated "hit location" suffix from each
// id, reads the raw entity key of every id in one batched read, unpacks
// each non-empty row, and returns the entities in id order. Absent or
// empty rows are silently dropped. injectHitLoc controls whether the
// stripped suffix (if any) is attached under the reserved "hitloc" key
// of a shallow copy of the unpacked row.
func (e *EntityIndex) resolve(ids []string, injectHitLoc bool) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rawKeys := make([]codec.Value, len(ids))
	hitLocs := make([]string, len(ids))
	for i, id := range ids {
		hit := splitEntityPart(id)
		rawKeys[i] = []byte(hit.EntityID)
		hitLocs[i] = hit.Part
	}
	rows, err := e.Conn.Read(e.EntityTable, rawKeys)
	if err != nil {
		return nil, fmt.Errorf("index: resolve entities: %w", err)
	}
	out := make([]map[string]any, 0, len(ids))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		entity, err := e.Packer.Unpack(row)
		if err != nil {
			return nil, err
		}
		if injectHitLoc && hitLocs[i] != "" {
			copied := make(map[string]any, len(entity)+1)
			for k, v := range entity {
				copied[k] = v
			}
			copied[hitLocKey] = hitLocs[i]
			entity = copied
		}
		out = append(out, entity)
	}
	return out, nil
}

// dedupTruncate removes duplicate ids (order-preserving) and caps the
// result to MaxEntities, as a failsafe after SelectResults already
// applied MinEntities/MaxEntities per-level.
func (e *EntityIndex) dedupTruncate(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if e.MaxEntities >= 0 && len(out) > e.MaxEntities {
		out = out[:e.MaxEntities]
	}
	return out
}

// SearchSingleTokenExact runs the C10 exact search, selects and
// dedups ids across the prioritized level list, then resolves and
// unpacks the corresponding entity rows.
func (e *EntityIndex) SearchSingleTokenExact(token string) ([]map[string]any, error) {
	byLevel, err := e.Idx.SearchSingleTokenExact(token, e.Levels)
	if err != nil {
		return nil, err
	}
	ids := e.dedupTruncate(SelectResults(byLevel, e.Levels, e.MinEntities, e.MaxEntities))
	return e.resolve(ids, false)
}

// SearchSingleTokenPrefix is SearchSingleTokenExact using prefix
// matching.
func (e *EntityIndex) SearchSingleTokenPrefix(token string, limit int64) ([]map[string]any, error) {
	byLevel, err := e.Idx.SearchSingleTokenPrefix(token, e.Levels, limit)
	if err != nil {
		return nil, err
	}
	ids := e.dedupTruncate(SelectResults(byLevel, e.Levels, e.MinEntities, e.MaxEntities))
	return e.resolve(ids, false)
}

// SearchMultiTokenExact intersects tokens' postings per level, then
// resolves the selected entities.
func (e *EntityIndex) SearchMultiTokenExact(tokens []string, strict bool) ([]map[string]any, error) {
	byLevel, err := e.Idx.SearchMultiTokenExact(tokens, e.Levels, strict)
	if err != nil {
		return nil, err
	}
	ids := e.dedupTruncate(SelectResults(byLevel, e.Levels, e.MinEntities, e.MaxEntities))
	return e.resolve(ids, false)
}

// SearchMultiTokenPrefix intersects tokens' prefix postings per
// level, then resolves the selected entities.
func (e *EntityIndex) SearchMultiTokenPrefix(tokens []string, limit int64, strict bool) ([]map[string]any, error) {
	byLevel, err := e.Idx.SearchMultiTokenPrefix(tokens, e.Levels, limit, strict)
	if err != nil {
		return nil, err
	}
	ids := e.dedupTruncate(SelectResults(byLevel, e.Levels, e.MinEntities, e.MaxEntities))
	return e.resolve(ids, false)
}

// SearchSingleTokenMultiExact reads each token's postings at a single
// level and resolves them to entities, preserving each hit's document
// part (if any) under the reserved "hitloc" key so that the same
// entity retrieved under different tokens can carry different hit
// locations.
func (e *EntityIndex) SearchSingleTokenMultiExact(tokens []string, level string) (map[string][]map[string]any, error) {
	byToken, err := e.Idx.SearchSingleTokenMultiExact(tokens, level)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]map[string]any, len(tokens))
	for tok, hits := range byToken {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = joinEntityPart(h)
		}
		entities, err := e.resolve(e.dedupTruncate(ids), true)
		if err != nil {
			return nil, err
		}
		out[tok] = entities
	}
	return out, nil
}

func joinEntityPart(h EntityHit) string {
	if h.Part == "" {
		return h.EntityID
	}
	var buf bytes.Buffer
	buf.WriteString(h.EntityID)
	buf.WriteByte(levelTokenSep)
	buf.WriteString(h.Part)
	return buf.String()
}
