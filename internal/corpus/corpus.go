// Package corpus implements the Corpus (spec.md §4.3): the store of
// interesting programs the scheduler draws mutation parents from.
package corpus

import (
	"encoding/binary"
	"hash/maphash"
	"math/rand"
	"sort"
	"sync"
	"time"

	"ilfuzz/internal/coverage"
	"ilfuzz/internal/il"
)

// entry is one stored sample plus the bookkeeping RandomParent's
// recency/coverage weighting and the minimum-use eviction floor need.
type entry struct {
	program   il.Program
	aspects   coverage.ProgramAspects
	hash      uint64
	useCount  int
	addedAt   time.Time
}

// Corpus stores interesting programs and schedules parents for
// mutation (spec.md §4.3). The zero value is not usable; construct
// with New.
type Corpus struct {
	mu sync.Mutex

	entries []*entry
	hashes  map[uint64]struct{}
	seed    maphash.Seed

	maxSize                int
	minMutationsPerProgram int

	rng *rand.Rand
}

// New returns an empty Corpus. maxSize bounds how many samples are
// kept before eviction; minMutationsPerProgram is the use count a
// sample must reach before eviction prefers it. When every sample is
// still below that count, eviction takes the oldest one anyway.
func New(maxSize, minMutationsPerProgram int) *Corpus {
	return &Corpus{
		hashes:                 make(map[uint64]struct{}),
		seed:                   maphash.MakeSeed(),
		maxSize:                maxSize,
		minMutationsPerProgram: minMutationsPerProgram,
		rng:                    rand.New(rand.NewSource(1)),
	}
}

func (c *Corpus) structuralHash(p il.Program) uint64 {
	var h maphash.Hash
	h.SetSeed(c.seed)
	h.Write(il.Serialize(p))
	return h.Sum64()
}

// Add stores program under aspects if it isn't a structural duplicate
// of an existing entry, first evicting one entry (see evictLocked) if
// the corpus is at maxSize. Returns false if the program was a
// duplicate (and therefore not stored), per spec.md §4.3's "no
// duplicates (detected via a structural hash)" invariant.
func (c *Corpus) Add(program il.Program, aspects coverage.ProgramAspects) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.structuralHash(program)
	if _, dup := c.hashes[h]; dup {
		return false
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries = append(c.entries, &entry{
		program: program,
		aspects: aspects,
		hash:    h,
		addedAt: time.Now(),
	})
	c.hashes[h] = struct{}{}
	return true
}

// evictLocked removes the oldest entry whose useCount has already met
// minMutationsPerProgram. If every entry is still under the floor, it
// evicts the oldest entry regardless — an unconditional floor would
// otherwise let an unbounded corpus grow past maxSize forever.
func (c *Corpus) evictLocked() {
	if len(c.entries) == 0 {
		return
	}
	victim := -1
	for i, e := range c.entries {
		if e.useCount >= c.minMutationsPerProgram {
			if victim == -1 || e.addedAt.Before(c.entries[victim].addedAt) {
				victim = i
			}
		}
	}
	if victim == -1 {
		victim = 0
		for i, e := range c.entries {
			if e.addedAt.Before(c.entries[victim].addedAt) {
				victim = i
			}
		}
	}
	delete(c.hashes, c.entries[victim].hash)
	c.entries = append(c.entries[:victim], c.entries[victim+1:]...)
}

// weightOf scores an entry by recency and coverage edge count (spec.md
// §4.3: "randomParent is weighted by recency/coverage edge count").
func weightOf(e *entry, now time.Time) float64 {
	age := now.Sub(e.addedAt).Seconds()
	recency := 1.0 / (1.0 + age/60.0)
	edgeWeight := float64(e.aspects.Count() + 1)
	return recency * edgeWeight
}

func (c *Corpus) pickWeighted() (*entry, bool) {
	if len(c.entries) == 0 {
		return nil, false
	}
	now := time.Now()
	total := 0.0
	weights := make([]float64, len(c.entries))
	for i, e := range c.entries {
		w := weightOf(e, now)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return c.entries[c.rng.Intn(len(c.entries))], true
	}
	r := c.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return c.entries[i], true
		}
	}
	return c.entries[len(c.entries)-1], true
}

// RandomParent returns a weighted-random stored program to mutate,
// recording a use against it for the minimum-mutation-budget floor.
func (c *Corpus) RandomParent() (il.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pickWeighted()
	if !ok {
		return il.Program{}, false
	}
	e.useCount++
	return e.program, true
}

// RandomDonor returns a weighted-random stored program to use as the
// second operand of SpliceMutator/CombineMutator. Unlike RandomParent
// it does not count against the donor's own eviction floor, since the
// donor isn't the candidate being built from.
func (c *Corpus) RandomDonor() (il.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pickWeighted()
	if !ok {
		return il.Program{}, false
	}
	return e.program, true
}

// Size returns the number of stored programs.
func (c *Corpus) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IsEmpty reports whether the corpus has no stored programs.
func (c *Corpus) IsEmpty() bool { return c.Size() == 0 }

// AllPrograms returns every stored program, in insertion order.
func (c *Corpus) AllPrograms() []il.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]il.Program, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.program
	}
	return out
}

// ExportState serializes every stored program and its aspects for
// cross-instance synchronization (spec.md §4.3), as a count followed
// by length-prefixed (program-bytes, aspects-bytes) pairs.
func (c *Corpus) ExportState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf []byte
	buf = appendUint32(buf, uint32(len(c.entries)))
	for _, e := range c.entries {
		progBytes := il.Serialize(e.program)
		aspectBytes := e.aspects.Serialize()
		buf = appendUint32(buf, uint32(len(progBytes)))
		buf = append(buf, progBytes...)
		buf = appendUint32(buf, uint32(len(aspectBytes)))
		buf = append(buf, aspectBytes...)
	}
	return buf
}

// ImportState replaces the corpus's contents with the samples encoded
// in data (the inverse of ExportState). Entries that fail to
// deserialize, re-verify or decode their aspects, and structural
// duplicates of an earlier entry, are skipped and counted in skipped
// rather than aborting the whole import; a truncated entry is counted
// once and ends the import there.
func (c *Corpus) ImportState(data []byte) (skipped int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, rest, ok := readUint32(data)
	if !ok {
		return 0, &il.SerializationError{Reason: "truncated corpus export header"}
	}
	entries := make([]*entry, 0, n)
	hashes := make(map[uint64]struct{}, n)
	for i := uint32(0); i < n; i++ {
		var progLen, aspectLen uint32
		progLen, rest, ok = readUint32(rest)
		if !ok || len(rest) < int(progLen) {
			skipped++
			break
		}
		progBytes := rest[:progLen]
		rest = rest[progLen:]

		aspectLen, rest, ok = readUint32(rest)
		if !ok || len(rest) < int(aspectLen) {
			skipped++
			break
		}
		aspectBytes := rest[:aspectLen]
		rest = rest[aspectLen:]

		program, derr := il.Deserialize(progBytes)
		if derr != nil {
			skipped++
			continue
		}
		if verr := program.Verify(); verr != nil {
			skipped++
			continue
		}
		aspects, aok := coverage.DeserializeAspects(aspectBytes)
		if !aok {
			skipped++
			continue
		}
		h := c.structuralHash(program)
		if _, dup := hashes[h]; dup {
			skipped++
			continue
		}
		hashes[h] = struct{}{}
		entries = append(entries, &entry{program: program, aspects: aspects, hash: h, addedAt: time.Now()})
	}
	c.entries = entries
	c.hashes = hashes
	return skipped, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(data []byte) (uint32, []byte, bool) {
	if len(data) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(data), data[4:], true
}

// sortedHashes returns the corpus's structural hashes in ascending
// order, for tests that want a deterministic view of dedup state.
func (c *Corpus) sortedHashes() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.hashes))
	for h := range c.hashes {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
