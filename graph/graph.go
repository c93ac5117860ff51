// Package graph layers a node/edge overlay atop three YakDB tables —
// nodes, edges, and extended attributes — mirroring the separate
// nodeTableId/edgeTableId/extendedAttributesTable layout of the
// original Graph implementation. Edges are mirrored as active+passive
// records so that outgoing, incoming, and all-edges enumeration are
// each a single contiguous scan range.
package graph

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
)

const (
	attrKVSep    = 0x1F // separator between an attribute's key and value
	attrRecSep   = 0x1E // separator between successive attribute records
	edgeOutMark  = 0x0E // marks an active (outgoing-from) edge entry
	edgeInMark   = 0x0F // marks a passive (incoming-to) edge entry
	edgeRangeEnd = 0x10 // exclusive end of the combined edge range for a node
	extAttrSep   = 0x1D // separates an entity id from its extended-attribute name
)

// minNodeByte is the smallest byte value a graph identifier (node id,
// edge type, extended-attribute entity id) may contain, matching the
// original implementation's identifier validity rule.
const minNodeByte = 0x20

// Graph wraps three tables of one YakDB database: nodes, edges, and
// extended attributes. Keeping them separate (rather than one shared
// table) means no record in one can ever be mistaken for a record of
// another, and a plain Scan over NodeTable never needs to filter out
// edge or extended-attribute keys.
type Graph struct {
	Conn         *client.Sync
	NodeTable    uint32
	EdgeTable    uint32
	ExtAttrTable uint32
}

// New wraps three already-open tables as a node/edge graph.
func New(conn *client.Sync, nodeTable, edgeTable, extAttrTable uint32) *Graph {
	return &Graph{Conn: conn, NodeTable: nodeTable, EdgeTable: edgeTable, ExtAttrTable: extAttrTable}
}

func validateNodeID(id string) error {
	for i := 0; i < len(id); i++ {
		if id[i] < minNodeByte {
			return fmt.Errorf("graph: node id byte %d (0x%02x) below minimum 0x%02x", i, id[i], minNodeByte)
		}
	}
	return nil
}

// serializeAttrs encodes a basic attribute set as a sequence of
// "key 0x1F value 0x1E" records.
func serializeAttrs(attrs map[string]string) []byte {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(attrKVSep)
		buf.WriteString(attrs[k])
		buf.WriteByte(attrRecSep)
	}
	return buf.Bytes()
}

func parseAttrs(data []byte) (map[string]string, error) {
	attrs := make(map[string]string)
	for len(data) > 0 {
		recEnd := bytes.IndexByte(data, attrRecSep)
		if recEnd < 0 {
			return nil, fmt.Errorf("graph: malformed attribute set: missing record separator")
		}
		rec := data[:recEnd]
		kvSep := bytes.IndexByte(rec, attrKVSep)
		if kvSep < 0 {
			return nil, fmt.Errorf("graph: malformed attribute record: missing key/value separator")
		}
		attrs[string(rec[:kvSep])] = string(rec[kvSep+1:])
		data = data[recEnd+1:]
	}
	return attrs, nil
}

// PutNode writes id's basic attribute set, replacing any previous
// value.
func (g *Graph) PutNode(id string, attrs map[string]string) error {
	if err := validateNodeID(id); err != nil {
		return err
	}
	kv := client.KV{Key: []byte(id), Value: serializeAttrs(attrs)}
	return g.Conn.Put(g.NodeTable, []client.KV{kv}, false, false)
}

// GetNode reads id's basic attribute set. A missing node yields an
// empty map and ok=false.
func (g *Graph) GetNode(id string) (attrs map[string]string, ok bool, err error) {
	if err := validateNodeID(id); err != nil {
		return nil, false, err
	}
	values, err := g.Conn.Read(g.NodeTable, []any{[]byte(id)})
	if err != nil {
		return nil, false, fmt.Errorf("graph: get node: %w", err)
	}
	if len(values[0]) == 0 {
		return nil, false, nil
	}
	attrs, err = parseAttrs(values[0])
	if err != nil {
		return nil, false, err
	}
	return attrs, true, nil
}

// ScanNodes reads [startKey, endKey) of the dedicated node table. Since
// edges and extended attributes live in their own tables, every record
// here is a node record and none need to be filtered out.
func (g *Graph) ScanNodes(startKey, endKey codec.Value, limit *int64) (map[string]map[string]string, error) {
	pairs, err := g.Conn.Scan(g.NodeTable, client.ScanOptions{StartKey: startKey, EndKey: endKey, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("graph: scan nodes: %w", err)
	}
	out := make(map[string]map[string]string)
	for _, p := range pairs {
		attrs, err := parseAttrs(p.Value)
		if err != nil {
			return nil, err
		}
		out[string(p.Key)] = attrs
	}
	return out, nil
}

// Edge is one graph edge, as returned by the enumeration primitives.
type Edge struct {
	Type   string
	Source string
	Target string
	Value  []byte
}

func activeKey(typ, source, target string) []byte {
	var buf bytes.Buffer
	buf.WriteString(typ)
	buf.WriteByte(attrKVSep)
	buf.WriteString(source)
	buf.WriteByte(edgeOutMark)
	buf.WriteString(target)
	return buf.Bytes()
}

func passiveKey(typ, source, target string) []byte {
	var buf bytes.Buffer
	buf.WriteString(typ)
	buf.WriteByte(attrKVSep)
	buf.WriteString(target)
	buf.WriteByte(edgeInMark)
	buf.WriteString(source)
	return buf.Bytes()
}

// PutEdge writes the active and passive mirror records for (source,
// target, typ), both carrying value.
func (g *Graph) PutEdge(typ, source, target string, value []byte) error {
	pairs := []client.KV{
		{Key: activeKey(typ, source, target), Value: value},
		{Key: passiveKey(typ, source, target), Value: value},
	}
	return g.Conn.Put(g.EdgeTable, pairs, false, false)
}

// DeleteEdge removes both mirror records for (source, target, typ).
func (g *Graph) DeleteEdge(typ, source, target string) error {
	keys := []any{activeKey(typ, source, target), passiveKey(typ, source, target)}
	return g.Conn.Delete(g.EdgeTable, keys, false, false)
}

func nodePrefix(typ, node string) []byte {
	var buf bytes.Buffer
	buf.WriteString(typ)
	buf.WriteByte(attrKVSep)
	buf.WriteString(node)
	return buf.Bytes()
}

// AllEdges returns every edge incident on node (both outgoing and
// incoming) in a single contiguous scan.
func (g *Graph) AllEdges(typ, node string) ([]Edge, error) {
	prefix := nodePrefix(typ, node)
	start := append(append([]byte{}, prefix...), edgeOutMark)
	end := append(append([]byte{}, prefix...), edgeRangeEnd)
	return g.scanEdges(typ, node, start, end)
}

// OutgoingEdges returns edges sourced at node.
func (g *Graph) OutgoingEdges(typ, node string) ([]Edge, error) {
	prefix := nodePrefix(typ, node)
	start := append(append([]byte{}, prefix...), edgeOutMark)
	end := append(append([]byte{}, prefix...), edgeInMark)
	return g.scanEdges(typ, node, start, end)
}

// IncomingEdges returns edges targeting node.
func (g *Graph) IncomingEdges(typ, node string) ([]Edge, error) {
	prefix := nodePrefix(typ, node)
	start := append(append([]byte{}, prefix...), edgeInMark)
	end := append(append([]byte{}, prefix...), edgeRangeEnd)
	return g.scanEdges(typ, node, start, end)
}

func (g *Graph) scanEdges(typ, node string, start, end []byte) ([]Edge, error) {
	pairs, err := g.Conn.Scan(g.EdgeTable, client.ScanOptions{StartKey: start, EndKey: end})
	if err != nil {
		return nil, fmt.Errorf("graph: scan edges: %w", err)
	}
	prefix := nodePrefix(typ, node)
	edges := make([]Edge, 0, len(pairs))
	for _, p := range pairs {
		rest := p.Key[len(prefix):]
		if len(rest) == 0 {
			return nil, fmt.Errorf("graph: malformed edge key %q", p.Key)
		}
		marker := rest[0]
		other := string(rest[1:])
		e := Edge{Type: typ, Value: p.Value}
		switch marker {
		case edgeOutMark:
			e.Source, e.Target = node, other
		case edgeInMark:
			e.Source, e.Target = other, node
		default:
			return nil, fmt.Errorf("graph: unexpected edge marker 0x%02x in key %q", marker, p.Key)
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func extAttrKey(entityID, name string) []byte {
	var buf bytes.Buffer
	buf.WriteString(entityID)
	buf.WriteByte(extAttrSep)
	buf.WriteString(name)
	return buf.Bytes()
}

// PutExtendedAttribute writes a single overflow attribute for
// entityID, stored as its own record in the extended-attributes table
// rather than inline in the basic attribute set.
func (g *Graph) PutExtendedAttribute(entityID, name string, value []byte) error {
	kv := client.KV{Key: extAttrKey(entityID, name), Value: value}
	return g.Conn.Put(g.ExtAttrTable, []client.KV{kv}, false, false)
}

// GetExtendedAttributes scans [entityID||0x1D, entityID||0x1E) of the
// extended-attributes table and returns the attribute name/value pairs
// found there.
func (g *Graph) GetExtendedAttributes(entityID string) (map[string][]byte, error) {
	start := append([]byte(entityID), extAttrSep)
	end := append([]byte(entityID), attrRecSep)
	pairs, err := g.Conn.Scan(g.ExtAttrTable, client.ScanOptions{StartKey: start, EndKey: end})
	if err != nil {
		return nil, fmt.Errorf("graph: get extended attributes: %w", err)
	}
	out := make(map[string][]byte, len(pairs))
	prefixLen := len(entityID) + 1
	for _, p := range pairs {
		out[string(p.Key[prefixLen:])] = p.Value
	}
	return out, nil
}
