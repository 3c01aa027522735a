package engine

import (
	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/util"
)

const (
	CorrectionHistorySize = 16384 // per color, indexed by pawn key
	CorrectionHistoryMask = CorrectionHistorySize - 1

	correctionGrain = 256
	correctionMax   = correctionGrain * 32
)

// CorrectionHistory adjusts static evaluation based on search results.
// When the search discovers the static eval was wrong for a pawn
// structure, the error is recorded and applied to later positions with
// the same pawns.
type CorrectionHistory struct {
	table [2][CorrectionHistorySize]int32
}

// NewCorrectionHistory creates a new correction history table.
func NewCorrectionHistory() *CorrectionHistory {
	return &CorrectionHistory{}
}

func (ch *CorrectionHistory) entry(pos *board.Position) *int32 {
	return &ch.table[pos.SideToMove()][pos.PawnKey()&CorrectionHistoryMask]
}

// Get returns the correction value in centipawns.
// The correction should be added to the static evaluation.
func (ch *CorrectionHistory) Get(pos *board.Position) int {
	return int(*ch.entry(pos) / correctionGrain)
}

// Update blends the difference between the search result and the raw
// static evaluation into the entry, weighted by depth.
func (ch *CorrectionHistory) Update(pos *board.Position, searchScore, staticEval, depth int) {
	diff := int32((searchScore - staticEval) * correctionGrain)
	weight := int32(min(depth+1, 16))

	e := ch.entry(pos)
	v := (*e*(256-weight) + diff*weight) / 256
	*e = util.Clamp(v, -correctionMax, correctionMax)
}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}
