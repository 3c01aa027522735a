package nnue

import (
	"fmt"

	"github.com/hailam/chesscore/internal/board"
)

// Accumulator holds the first layer pre-activations of one ply for both
// perspectives. Correct[p] is false until the values for p have been
// materialized from the parent ply or from the bucket cache.
type Accumulator struct {
	Values  [2][L1Size]int16
	Correct [2]bool
	Update  FeatureUpdate

	kings [2]board.Square
}

// bucketEntry is one refresh cache slot: an accumulator and the board it
// was computed from.
type bucketEntry struct {
	values [L1Size]int16
	pieces [2][6]board.Bitboard
	valid  bool
}

// BucketCache keeps, per perspective and per bucket key, the last
// accumulator computed under that weight subset.
type BucketCache struct {
	entries [2][Buckets * 2]bucketEntry
}

// Stats counts how accumulators were obtained.
type Stats struct {
	Incremental  uint64 // forward-applied feature diffs
	CacheRefresh uint64 // rebuilt from a bucket cache snapshot
	FullRefresh  uint64 // rebuilt from the full feature set
	Evaluations  uint64
}

// Evaluator is a search worker's view of the network: an accumulator
// arena indexed by ply plus the bucket cache. It is not safe for
// concurrent use; the Network it reads is.
type Evaluator struct {
	net   *Network
	stack [StackSize]Accumulator
	ply   int
	cache BucketCache
	stats Stats
}

func NewEvaluator(net *Network) *Evaluator {
	return &Evaluator{net: net}
}

func (e *Evaluator) Network() *Network { return e.net }
func (e *Evaluator) Stats() Stats      { return e.stats }
func (e *Evaluator) Ply() int          { return e.ply }

// Reset roots the arena at pos. Nothing is computed until Evaluate.
func (e *Evaluator) Reset(pos *board.Position) {
	e.ply = 0
	root := &e.stack[0]
	root.Correct = [2]bool{}
	root.Update = FeatureUpdate{}
	root.kings = [2]board.Square{pos.King(board.White), pos.King(board.Black)}
}

// Push records the move just made on pos. captured is the piece the move
// removed, or board.NoPiece.
func (e *Evaluator) Push(pos *board.Position, m board.Move, captured board.Piece) {
	e.push(pos, UpdateForMove(pos, m, captured))
}

// PushNull records a passed turn.
func (e *Evaluator) PushNull(pos *board.Position) {
	e.push(pos, FeatureUpdate{Kind: Null})
}

func (e *Evaluator) push(pos *board.Position, u FeatureUpdate) {
	if e.ply+1 >= StackSize {
		panic(fmt.Sprintf("nnue: accumulator arena overflow at ply %d", e.ply))
	}
	e.ply++
	acc := &e.stack[e.ply]
	acc.Correct = [2]bool{}
	acc.Update = u
	acc.kings = [2]board.Square{pos.King(board.White), pos.King(board.Black)}
}

// Pop discards the current ply. Its accumulator is left in place but will
// be marked incorrect by the next Push.
func (e *Evaluator) Pop() {
	e.ply--
}

// Evaluate scores pos, which must match the current ply, from the side to
// move's point of view.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	e.materialize(pos, board.White)
	e.materialize(pos, board.Black)
	e.stats.Evaluations++

	us := pos.SideToMove()
	acc := &e.stack[e.ply]
	return e.net.forward(&acc.Values[us], &acc.Values[us.Other()], outputBucket(pos.PieceCount()))
}

// Accumulator materializes and returns perspective's values at the current
// ply.
func (e *Evaluator) Accumulator(pos *board.Position, perspective board.Color) [L1Size]int16 {
	e.materialize(pos, perspective)
	return e.stack[e.ply].Values[perspective]
}

// materialize walks back to the nearest correct ancestor and replays the
// recorded diffs forward. Crossing a bucket key change, or running out of
// ancestors, forces a refresh of the current ply instead.
func (e *Evaluator) materialize(pos *board.Position, p board.Color) {
	if e.stack[e.ply].Correct[p] {
		return
	}
	key := bucketKey(p, e.stack[e.ply].kings[p])

	i := e.ply
	for !e.stack[i].Correct[p] {
		if i == 0 || bucketKey(p, e.stack[i-1].kings[p]) != key {
			e.refresh(pos, p)
			return
		}
		i--
	}
	for j := i + 1; j <= e.ply; j++ {
		e.apply(p, j-1, j)
	}
}

// apply builds stack[dst] from stack[src] using dst's recorded update.
func (e *Evaluator) apply(p board.Color, src, dst int) {
	target := &e.stack[dst]
	ksq := target.kings[p]
	in := &e.stack[src].Values[p]
	out := &target.Values[p]
	u := &target.Update
	row := func(f Feature) []int16 { return e.net.row(FeatureIndex(p, ksq, f)) }

	switch u.Kind {
	case Null:
		*out = *in
	case Quiet:
		a, s := row(u.Add[0]), row(u.Sub[0])
		for i := range out {
			out[i] = in[i] + a[i] - s[i]
		}
	case Capture:
		a, s1, s2 := row(u.Add[0]), row(u.Sub[0]), row(u.Sub[1])
		for i := range out {
			out[i] = in[i] + a[i] - s1[i] - s2[i]
		}
	case Castle:
		a1, a2, s1, s2 := row(u.Add[0]), row(u.Add[1]), row(u.Sub[0]), row(u.Sub[1])
		for i := range out {
			out[i] = in[i] + a1[i] + a2[i] - s1[i] - s2[i]
		}
	default:
		panic(fmt.Sprintf("nnue: unknown feature update %v", u.Kind))
	}
	target.Correct[p] = true
	e.stats.Incremental++
}

// refresh rebuilds the current ply for p from the bucket cache. A cached
// snapshot is brought up to date by diffing its bitboards against pos; an
// empty slot is filled by a full pass over every feature.
func (e *Evaluator) refresh(pos *board.Position, p board.Color) {
	acc := &e.stack[e.ply]
	ksq := acc.kings[p]
	entry := &e.cache.entries[p][bucketKey(p, ksq)]

	if !entry.valid {
		entry.values = e.net.ComputeAccumulator(pos, p)
		entry.valid = true
		e.stats.FullRefresh++
	} else {
		for c := board.White; c <= board.Black; c++ {
			for pt := board.Pawn; pt <= board.King; pt++ {
				pc := board.MakePiece(c, pt)
				now, then := pos.Pieces(c, pt), entry.pieces[c][pt]
				for added := now &^ then; added != 0; {
					w := e.net.row(FeatureIndex(p, ksq, Feature{pc, added.Pop()}))
					for i := range entry.values {
						entry.values[i] += w[i]
					}
				}
				for removed := then &^ now; removed != 0; {
					w := e.net.row(FeatureIndex(p, ksq, Feature{pc, removed.Pop()}))
					for i := range entry.values {
						entry.values[i] -= w[i]
					}
				}
			}
		}
		e.stats.CacheRefresh++
	}
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			entry.pieces[c][pt] = pos.Pieces(c, pt)
		}
	}
	acc.Values[p] = entry.values
	acc.Correct[p] = true
}
