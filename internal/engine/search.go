package engine

import (
	"fmt"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/util"
)

// Search constants
const (
	Infinity  = 32000
	MateScore = 31000
	MaxPly    = 128

	// Scores beyond MateBound are mates, scored by distance from the root.
	MateBound = MateScore - MaxPly

	// Tablebase wins sit just below the mate range, also ply adjusted.
	TBWinScore = MateBound - 1
	TBWinBound = TBWinScore - MaxPly
)

// nodeKind distinguishes the root, principal variation nodes (open
// window) and zero-window nodes.
type nodeKind uint8

const (
	nodeRoot nodeKind = iota
	nodePV
	nodeNonPV
)

func (k nodeKind) isPV() bool { return k != nodeNonPV }

// MatedIn is the score of being checkmated at ply.
func MatedIn(ply int) int { return -MateScore + ply }

// MateIn is the score of delivering mate at ply.
func MateIn(ply int) int { return MateScore - ply }

// IsDecisive reports mate and tablebase scores.
func IsDecisive(score int) bool { return util.Abs(score) >= TBWinBound }

// IsMate reports scores that are forced mates.
func IsMate(score int) bool { return util.Abs(score) >= MateBound }

// scoreToTT converts a root-relative decisive score into a node-relative
// one for storage.
func scoreToTT(score, ply int) int {
	switch {
	case score >= TBWinBound:
		return score + ply
	case score <= -TBWinBound:
		return score - ply
	}
	return score
}

// scoreFromTT is the inverse of scoreToTT.
func scoreFromTT(score, ply int) int {
	switch {
	case score >= TBWinBound:
		return score - ply
	case score <= -TBWinBound:
		return score + ply
	}
	return score
}

// ScoreString renders a score in UCI terms: "cp 35" or "mate -3".
func ScoreString(score int) string {
	if IsMate(score) {
		if score > 0 {
			return fmt.Sprintf("mate %d", (MateScore-score+1)/2)
		}
		return fmt.Sprintf("mate %d", -(MateScore+score)/2)
	}
	return fmt.Sprintf("cp %d", score)
}

// PVTable stores the principal variation, triangular by ply.
type PVTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *PVTable) clear(ply int) { pv.length[ply] = 0 }

// update makes m followed by the child's line the line of ply.
func (pv *PVTable) update(ply int, m board.Move) {
	pv.moves[ply][0] = m
	n := copy(pv.moves[ply][1:], pv.moves[ply+1][:pv.length[ply+1]])
	pv.length[ply] = n + 1
}

// line returns a copy of the line at ply.
func (pv *PVTable) line(ply int) []board.Move {
	return append([]board.Move(nil), pv.moves[ply][:pv.length[ply]]...)
}
