package coverage

import (
	"encoding/binary"
	"sort"
)

// ProgramAspects is the coverage evaluator's concrete realization of the
// opaque, evaluator-defined "why this program is interesting" fingerprint
// from spec.md §3: the set of edge indices newly covered.
type ProgramAspects struct {
	edges map[uint32]struct{}
}

// NewProgramAspects builds a ProgramAspects from a slice of edge
// indices.
func NewProgramAspects(edges []uint32) ProgramAspects {
	set := make(map[uint32]struct{}, len(edges))
	for _, e := range edges {
		set[e] = struct{}{}
	}
	return ProgramAspects{edges: set}
}

// IsEmpty reports whether the aspects carry no edges.
func (a ProgramAspects) IsEmpty() bool { return len(a.edges) == 0 }

// Count returns the number of edges the aspects describe.
func (a ProgramAspects) Count() int { return len(a.edges) }

// Contains reports whether edge e is part of a.
func (a ProgramAspects) Contains(e uint32) bool {
	_, ok := a.edges[e]
	return ok
}

// Intersect returns the aspects present in both a and b. Per spec.md §8,
// intersect is idempotent (intersect(a,a)==a) and associative.
func (a ProgramAspects) Intersect(b ProgramAspects) ProgramAspects {
	out := make(map[uint32]struct{})
	small, big := a.edges, b.edges
	if len(b.edges) < len(a.edges) {
		small, big = b.edges, a.edges
	}
	for e := range small {
		if _, ok := big[e]; ok {
			out[e] = struct{}{}
		}
	}
	return ProgramAspects{edges: out}
}

// Union returns the edges present in either a or b.
func (a ProgramAspects) Union(b ProgramAspects) ProgramAspects {
	out := make(map[uint32]struct{}, len(a.edges)+len(b.edges))
	for e := range a.edges {
		out[e] = struct{}{}
	}
	for e := range b.edges {
		out[e] = struct{}{}
	}
	return ProgramAspects{edges: out}
}

// Equal reports whether a and b describe the same edge set.
func (a ProgramAspects) Equal(b ProgramAspects) bool {
	if len(a.edges) != len(b.edges) {
		return false
	}
	for e := range a.edges {
		if _, ok := b.edges[e]; !ok {
			return false
		}
	}
	return true
}

// Edges returns a is sorted edge indices.
func (a ProgramAspects) Edges() []uint32 {
	out := make([]uint32, 0, len(a.edges))
	for e := range a.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Serialize encodes the aspects as a count followed by sorted
// little-endian uint32 edge indices.
func (a ProgramAspects) Serialize() []byte {
	edges := a.Edges()
	buf := make([]byte, 4+4*len(edges))
	binary.LittleEndian.PutUint32(buf, uint32(len(edges)))
	for i, e := range edges {
		binary.LittleEndian.PutUint32(buf[4+4*i:], e)
	}
	return buf
}

// DeserializeAspects is the inverse of ProgramAspects.Serialize.
func DeserializeAspects(data []byte) (ProgramAspects, bool) {
	if len(data) < 4 {
		return ProgramAspects{}, false
	}
	n := binary.LittleEndian.Uint32(data)
	if len(data) != int(4+4*n) {
		return ProgramAspects{}, false
	}
	edges := make([]uint32, n)
	for i := range edges {
		edges[i] = binary.LittleEndian.Uint32(data[4+4*i:])
	}
	return NewProgramAspects(edges), true
}
