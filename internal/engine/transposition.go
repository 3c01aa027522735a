package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hailam/chesscore/internal/board"
)

// Bound indicates the type of bound stored in the transposition table.
type Bound uint8

const (
	BoundNone  Bound = iota
	BoundUpper       // Failed low
	BoundLower       // Failed high (beta cutoff)
	BoundExact       // Exact score
)

func (b Bound) String() string {
	switch b {
	case BoundUpper:
		return "upper"
	case BoundLower:
		return "lower"
	case BoundExact:
		return "exact"
	}
	return "none"
}

// ErrSnapshotSize is returned when a snapshot does not fit the table.
var ErrSnapshotSize = errors.New("tt snapshot size mismatch")

// Data word layout, low to high:
//
//	score 16 | eval 16 | move 16 | depth 8 | bound 2 | generation 6
const (
	evalShift  = 16
	moveShift  = 32
	depthShift = 48
	boundShift = 56
	genShift   = 58

	genMask = 0x3F
)

const (
	cellSize    = 16
	clusterSize = 4 // cells per 64-byte bucket
)

// ttCell is one slot: the key checksum and the packed data, each written
// atomically. A reader that sees a torn pair fails the checksum.
type ttCell struct {
	check atomic.Uint64 // key ^ data
	data  atomic.Uint64
}

// TTEntry is a decoded cell. Score is already relative to the probing ply.
type TTEntry struct {
	Move  board.Move
	Score int
	Eval  int
	Depth int
	Bound Bound
}

// ProbeKind classifies a probe.
type ProbeKind uint8

const (
	ProbeMiss ProbeKind = iota
	ProbeHit
	ProbeCutoff
)

// ProbeResult is the outcome of Probe. Score is set for cutoffs, Entry for
// hits and cutoffs.
type ProbeResult struct {
	Kind  ProbeKind
	Score int
	Entry TTEntry
}

// TranspositionTable is a lock-free hash table shared by all search
// workers. Keys map to a bucket of clusterSize cells; a position may live
// in any cell of its bucket.
type TranspositionTable struct {
	cells []ttCell
	mask  uint64 // bucket index mask
	gen   atomic.Uint32
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	tt := &TranspositionTable{}
	tt.Resize(sizeMB)
	return tt
}

// Resize reallocates the table, discarding its contents. It must not be
// called during a search.
func (tt *TranspositionTable) Resize(sizeMB int) {
	buckets := roundDownToPowerOf2(uint64(max(sizeMB, 1)) * 1024 * 1024 / (cellSize * clusterSize))
	tt.cells = make([]ttCell, buckets*clusterSize)
	tt.mask = buckets - 1
	tt.gen.Store(0)
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func pack(score, eval int, m board.Move, depth int, bound Bound, gen uint8) uint64 {
	return uint64(uint16(int16(score))) |
		uint64(uint16(int16(eval)))<<evalShift |
		uint64(m)<<moveShift |
		uint64(uint8(depth))<<depthShift |
		uint64(bound&3)<<boundShift |
		uint64(gen&genMask)<<genShift
}

func unpack(data uint64) (e TTEntry, gen uint8) {
	e.Score = int(int16(data))
	e.Eval = int(int16(data >> evalShift))
	e.Move = board.Move(data >> moveShift)
	e.Depth = int(uint8(data >> depthShift))
	e.Bound = Bound(data >> boundShift & 3)
	return e, uint8(data >> genShift & genMask)
}

func (tt *TranspositionTable) generation() uint8 { return uint8(tt.gen.Load() & genMask) }

// bucket returns the cells key may occupy.
func (tt *TranspositionTable) bucket(key uint64) []ttCell {
	i := (key & tt.mask) * clusterSize
	return tt.cells[i : i+clusterSize : i+clusterSize]
}

// load finds the cell of key in its bucket and verifies it.
func (tt *TranspositionTable) load(key uint64) (TTEntry, uint8, bool) {
	cells := tt.bucket(key)
	for i := range cells {
		data := cells[i].data.Load()
		if cells[i].check.Load()^data != key {
			continue
		}
		e, gen := unpack(data)
		if e.Bound != BoundNone {
			return e, gen, true
		}
	}
	return TTEntry{}, 0, false
}

// Probe looks up key at ply. With a deep enough entry whose bound proves
// the window, and doNotCut false, the result is a cutoff. Any other
// verified entry is a hit carrying move, eval and bound hints.
func (tt *TranspositionTable) Probe(key uint64, ply, alpha, beta, depth int, doNotCut bool) ProbeResult {
	e, _, ok := tt.load(key)
	if !ok {
		return ProbeResult{}
	}
	e.Score = scoreFromTT(e.Score, ply)

	if !doNotCut && e.Depth >= depth {
		switch {
		case e.Bound == BoundExact,
			e.Bound == BoundLower && e.Score >= beta,
			e.Bound == BoundUpper && e.Score <= alpha:
			return ProbeResult{Kind: ProbeCutoff, Score: e.Score, Entry: e}
		}
	}
	return ProbeResult{Kind: ProbeHit, Entry: e}
}

// Store saves a search result.
//
// When the bucket already holds key, that cell is updated if it comes from
// an older search, an exact bound replaces an inexact one, or the new
// depth is not far below the old. Otherwise the least valuable cell is
// the victim: empty cells first, then by age, then by depth with a bonus
// for exact bounds. A victim from the current search is only overwritten
// by a result of at least two thirds of its depth.
func (tt *TranspositionTable) Store(key uint64, ply int, m board.Move, score, eval int, bound Bound, depth int) {
	cells := tt.bucket(key)
	gen := tt.generation()

	var victim *ttCell
	worst := int(^uint(0) >> 1)
	for i := range cells {
		c := &cells[i]
		oldData := c.data.Load()
		old, oldGen := unpack(oldData)

		if c.check.Load()^oldData == key && old.Bound != BoundNone {
			if m == board.NoMove {
				m = old.Move
			}
			if oldGen == gen && depth+4 < old.Depth &&
				!(bound == BoundExact && old.Bound != BoundExact) {
				return
			}
			tt.write(c, key, ply, m, score, eval, bound, depth, gen)
			return
		}

		if old.Bound == BoundNone {
			if worst > -1<<20 {
				victim, worst = c, -1<<20
			}
			continue
		}
		if v := cellWorth(old, gen, oldGen); v < worst {
			victim, worst = c, v
		}
	}

	old, oldGen := unpack(victim.data.Load())
	if old.Bound != BoundNone && oldGen == gen && depth*3 < old.Depth*2 {
		return
	}
	tt.write(victim, key, ply, m, score, eval, bound, depth, gen)
}

// cellWorth ranks a cell for replacement; the lowest is evicted first.
func cellWorth(e TTEntry, gen, cellGen uint8) int {
	age := int((gen - cellGen) & genMask)
	w := e.Depth - 8*age
	if e.Bound == BoundExact {
		w += 2
	}
	return w
}

func (tt *TranspositionTable) write(c *ttCell, key uint64, ply int, m board.Move, score, eval int, bound Bound, depth int, gen uint8) {
	data := pack(scoreToTT(score, ply), eval, m, depth, bound, gen)
	c.data.Store(data)
	c.check.Store(key ^ data)
}

// NewSearch bumps the generation so older entries lose replacement
// priority.
func (tt *TranspositionTable) NewSearch() {
	tt.gen.Add(1)
}

// Clear clears the transposition table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.cells {
		tt.cells[i].check.Store(0)
		tt.cells[i].data.Store(0)
	}
	tt.gen.Store(0)
}

// Hashfull returns the permille of sampled cells written in the current
// generation.
func (tt *TranspositionTable) Hashfull() int {
	sample := min(1000, len(tt.cells))
	gen := tt.generation()
	used := 0
	for i := 0; i < sample; i++ {
		e, g := unpack(tt.cells[i].data.Load())
		if e.Bound != BoundNone && g == gen {
			used++
		}
	}
	return used * 1000 / sample
}

// Size returns the number of cells in the table.
func (tt *TranspositionTable) Size() int { return len(tt.cells) }

// SizeBytes returns the memory used by the cells.
func (tt *TranspositionTable) SizeBytes() uint64 { return uint64(len(tt.cells)) * cellSize }

// TTSnapshot is the raw content of a table: two words per cell.
type TTSnapshot struct {
	Generation uint8
	Words      []uint64
}

// Snapshot copies the table. It is consistent only when no search runs.
func (tt *TranspositionTable) Snapshot() TTSnapshot {
	words := make([]uint64, 2*len(tt.cells))
	for i := range tt.cells {
		words[2*i] = tt.cells[i].check.Load()
		words[2*i+1] = tt.cells[i].data.Load()
	}
	return TTSnapshot{Generation: tt.generation(), Words: words}
}

// Restore loads a snapshot taken from a table of the same size.
func (tt *TranspositionTable) Restore(s TTSnapshot) error {
	if len(s.Words) != 2*len(tt.cells) {
		return fmt.Errorf("%w: %d words for %d cells", ErrSnapshotSize, len(s.Words), len(tt.cells))
	}
	for i := range tt.cells {
		tt.cells[i].check.Store(s.Words[2*i])
		tt.cells[i].data.Store(s.Words[2*i+1])
	}
	tt.gen.Store(uint32(s.Generation))
	return nil
}
