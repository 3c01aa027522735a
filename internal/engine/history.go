package engine

import (
	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/util"
)

// MaxHistory bounds every history counter.
const MaxHistory = 16384

// Histories holds a worker's move ordering heuristics.
type Histories struct {
	// Killer moves (quiet moves that caused beta cutoffs), per ply
	killers [MaxPly + 1][2]board.Move

	// Counter move heuristic, indexed by [previous piece][previous to]
	counters [13][64]board.Move

	// Quiet history, indexed by [piece][to]
	quiet [12][64]int16

	// Continuation histories, indexed by [earlier piece][earlier to]
	// [piece][to]. Table 0 follows the opponent's last move (counter-move
	// history), table 1 our own move before it (follow-up history).
	cont [2][12][64]continuation

	// Capture history, indexed by [piece][to][victim type]; quiet
	// promotions use NoPieceType as victim.
	capture [12][64][7]int16
}

// NewHistories creates empty tables.
func NewHistories() *Histories {
	return &Histories{}
}

// Clear resets everything.
func (h *Histories) Clear() {
	*h = Histories{}
}

// Age halves history counters and drops killers between searches.
func (h *Histories) Age() {
	h.killers = [MaxPly + 1][2]board.Move{}
	for p := range h.quiet {
		for t := range h.quiet[p] {
			h.quiet[p][t] /= 2
		}
	}
	for i := range h.cont {
		for p := range h.cont[i] {
			for t := range h.cont[i][p] {
				halve(&h.cont[i][p][t])
			}
		}
	}
	for p := range h.capture {
		for t := range h.capture[p] {
			for v := range h.capture[p][t] {
				h.capture[p][t][v] /= 2
			}
		}
	}
}

func halve(t *continuation) {
	for p := range t {
		for sq := range t[p] {
			t[p][sq] /= 2
		}
	}
}

// gravity moves v towards ±MaxHistory by bonus, slowing as it saturates.
func gravity(v *int16, bonus int) {
	bonus = util.Clamp(bonus, -MaxHistory, MaxHistory)
	*v += int16(bonus - int(*v)*util.Abs(bonus)/MaxHistory)
}

func (h *Histories) Killers(ply int) [2]board.Move {
	return h.killers[ply]
}

func (h *Histories) clearKillers(ply int) {
	h.killers[ply] = [2]board.Move{}
}

// insertKiller adds a killer move at the given ply.
func (h *Histories) insertKiller(ply int, m board.Move) {
	if h.killers[ply][0] == m {
		return
	}
	h.killers[ply][1] = h.killers[ply][0]
	h.killers[ply][0] = m
}

// CounterMove returns the reply recorded against prev, which moved piece.
func (h *Histories) CounterMove(piece board.Piece, prev board.Move) board.Move {
	if prev == board.NoMove || prev == board.NullMove {
		return board.NoMove
	}
	return h.counters[piece][prev.To()]
}

func (h *Histories) setCounterMove(piece board.Piece, prev, m board.Move) {
	if prev == board.NoMove || prev == board.NullMove {
		return
	}
	h.counters[piece][prev.To()] = m
}

// continuation is the slice of a continuation history selected by an
// earlier move, indexed by [piece][to] of the move being scored.
type continuation [12][64]int16

// Continuations returns the counter-move and follow-up tables selected by
// the previous two moves, oldest last. Null moves and missing plies give
// nil.
func (h *Histories) Continuations(prev, prev2 board.Piece, m1, m2 board.Move) [2]*continuation {
	var c [2]*continuation
	if prev < board.NoPiece && m1 != board.NoMove && m1 != board.NullMove {
		c[0] = &h.cont[0][prev][m1.To()]
	}
	if prev2 < board.NoPiece && m2 != board.NoMove && m2 != board.NullMove {
		c[1] = &h.cont[1][prev2][m2.To()]
	}
	return c
}

// QuietScore returns the quiet and continuation history of m, which the
// side to move in pos has not played yet.
func (h *Histories) QuietScore(pos *board.Position, m board.Move, conts [2]*continuation) int {
	pc, to := pos.PieceOn(m.From()), m.To()
	score := int(h.quiet[pc][to])
	for _, c := range conts {
		if c != nil {
			score += int(c[pc][to])
		}
	}
	return score
}

// CaptureScore returns the capture history of a tactical move.
func (h *Histories) CaptureScore(pos *board.Position, m board.Move) int {
	return int(h.capture[pos.PieceOn(m.From())][m.To()][pos.CapturedType(m)])
}

// updateQuiets rewards best and penalizes the quiets tried before it, in
// the quiet history and every available continuation.
func (h *Histories) updateQuiets(pos *board.Position, best board.Move, tried []board.Move, conts [2]*continuation, bonus int) {
	for _, m := range tried {
		b := -bonus
		if m == best {
			b = bonus
		}
		pc, to := pos.PieceOn(m.From()), m.To()
		gravity(&h.quiet[pc][to], b)
		for _, c := range conts {
			if c != nil {
				gravity(&c[pc][to], b)
			}
		}
	}
}

// updateCaptures rewards best, if tactical, and penalizes the other
// tactical moves tried.
func (h *Histories) updateCaptures(pos *board.Position, best board.Move, tried []board.Move, bonus int) {
	for _, m := range tried {
		v := &h.capture[pos.PieceOn(m.From())][m.To()][pos.CapturedType(m)]
		if m == best {
			gravity(v, bonus)
		} else {
			gravity(v, -bonus)
		}
	}
}
