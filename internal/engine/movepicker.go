package engine

import (
	"github.com/hailam/chesscore/internal/board"
)

// Move ordering priorities
const (
	TTMoveScore         = 20_000_000
	WinningCaptureScore = 10_000_000
	KillerScore         = 9_000_000
	CounterMoveScore    = 2_000_000

	// Captures at or above this score are still provisionally winning.
	minWinningSEEScore = WinningCaptureScore - MaxHistory
)

// Victim values for capture ordering, indexed by captured type.
var mvvScore = [7]int{0, 2400, 2400, 4800, 9600, 0, 0}

type stage uint8

const (
	stageTTMove stage = iota
	stageGenCaptures
	stageGoodCaptures
	stageKiller
	stageCounter
	stageGenQuiets
	stageRemaining
	stageDone
)

// MovePicker yields the moves of a position one at a time, best first,
// generating lazily by stage. Every move it yields is legal.
type MovePicker struct {
	pos  *board.Position
	hist *Histories

	ttMove  board.Move
	killers [2]board.Move
	counter board.Move
	conts   [2]*continuation

	list   board.MoveList
	scores [256]int
	idx    int

	stage        stage
	killerIdx    int
	threshold    int
	skipQuiets   bool
	capturesOnly bool
	lastScore    int
}

// NewMovePicker orders every move of pos. Captures must pass SEE against
// threshold to be tried early. Quiets are ordered by quiet history alone.
func NewMovePicker(pos *board.Position, h *Histories, ttMove board.Move, killers [2]board.Move, counter board.Move, threshold int) *MovePicker {
	mp := &MovePicker{}
	mp.init(pos, h, ttMove, killers, counter, [2]*continuation{}, threshold)
	return mp
}

// NewCapturePicker yields only tactical moves that pass SEE against
// threshold; a quiet TT move is ignored.
func NewCapturePicker(pos *board.Position, h *Histories, ttMove board.Move, threshold int) *MovePicker {
	mp := &MovePicker{}
	mp.initCaptures(pos, h, ttMove, threshold)
	return mp
}

func (mp *MovePicker) init(pos *board.Position, h *Histories, ttMove board.Move, killers [2]board.Move, counter board.Move, conts [2]*continuation, threshold int) {
	*mp = MovePicker{
		pos:       pos,
		hist:      h,
		ttMove:    ttMove,
		killers:   killers,
		counter:   counter,
		conts:     conts,
		threshold: threshold,
	}
}

func (mp *MovePicker) initCaptures(pos *board.Position, h *Histories, ttMove board.Move, threshold int) {
	if ttMove != board.NoMove && !pos.IsTactical(ttMove) {
		ttMove = board.NoMove
	}
	mp.init(pos, h, ttMove, [2]board.Move{}, board.NoMove, [2]*continuation{}, threshold)
	mp.skipQuiets = true
	mp.capturesOnly = true
}

// SkipQuiets stops the picker from yielding further non-tactical moves.
func (mp *MovePicker) SkipQuiets() { mp.skipQuiets = true }

// Stage reports how far the picker has progressed.
func (mp *MovePicker) Stage() stage { return mp.stage }

// LastScore is the ordering score of the move Next returned last.
func (mp *MovePicker) LastScore() int { return mp.lastScore }

// Next returns the next move, or board.NoMove when exhausted.
func (mp *MovePicker) Next() board.Move {
	pos := mp.pos
	for {
		switch mp.stage {
		case stageTTMove:
			mp.stage = stageGenCaptures
			if mp.ttMove != board.NoMove && pos.IsPseudoLegal(mp.ttMove) && pos.IsLegal(mp.ttMove) {
				mp.lastScore = TTMoveScore
				return mp.ttMove
			}

		case stageGenCaptures:
			mp.stage = stageGoodCaptures
			pos.GenerateNoisy(&mp.list)
			mp.scoreCaptures()

		case stageGoodCaptures:
			if m, ok := mp.pick(); ok {
				if mp.lastScore >= minWinningSEEScore {
					return m
				}
				// Not winning: leave it for the remaining stage.
				mp.idx--
			}
			switch {
			case mp.capturesOnly:
				mp.stage = stageDone
			case mp.skipQuiets:
				mp.stage = stageRemaining
			default:
				mp.stage = stageKiller
			}

		case stageKiller:
			for mp.killerIdx < len(mp.killers) {
				k := mp.killers[mp.killerIdx]
				mp.killerIdx++
				if !mp.skipQuiets && mp.isUsableQuiet(k) {
					mp.lastScore = KillerScore
					return k
				}
			}
			mp.stage = stageCounter

		case stageCounter:
			mp.stage = stageGenQuiets
			c := mp.counter
			if !mp.skipQuiets && c != mp.killers[0] && c != mp.killers[1] && mp.isUsableQuiet(c) {
				mp.lastScore = CounterMoveScore
				return c
			}

		case stageGenQuiets:
			mp.stage = stageRemaining
			if !mp.skipQuiets {
				start := mp.list.N
				pos.GenerateQuiets(&mp.list)
				mp.scoreQuiets(start)
			}

		case stageRemaining:
			if m, ok := mp.pick(); ok {
				return m
			}
			mp.stage = stageDone

		case stageDone:
			return board.NoMove
		}
	}
}

// isUsableQuiet validates a killer or counter move for this position.
func (mp *MovePicker) isUsableQuiet(m board.Move) bool {
	return m != board.NoMove && m != mp.ttMove &&
		mp.pos.IsPseudoLegal(m) && !mp.pos.IsTactical(m) && mp.pos.IsLegal(m)
}

// triedEarly reports whether an earlier stage already yielded m. Killers
// and counters are only ever yielded when quiet.
func (mp *MovePicker) triedEarly(m board.Move) bool {
	if m == mp.ttMove {
		return true
	}
	return (m == mp.killers[0] || m == mp.killers[1] || m == mp.counter) && !mp.pos.IsTactical(m)
}

// pick selects the best remaining move by partial selection sort. A
// provisionally winning capture that fails SEE is demoted and the search
// goes on. Moves already yielded by an earlier stage, illegal moves and,
// once skipping, quiet moves are consumed silently.
func (mp *MovePicker) pick() (board.Move, bool) {
	for mp.idx < mp.list.N {
		best := mp.idx
		for i := mp.idx + 1; i < mp.list.N; i++ {
			if mp.scores[i] > mp.scores[best] {
				best = i
			}
		}
		m := mp.list.Moves[best]
		if mp.scores[best] >= minWinningSEEScore && !mp.pos.SeeGE(m, mp.threshold) {
			mp.scores[best] -= WinningCaptureScore
			continue
		}

		mp.list.Moves[best], mp.list.Moves[mp.idx] = mp.list.Moves[mp.idx], m
		mp.scores[best], mp.scores[mp.idx] = mp.scores[mp.idx], mp.scores[best]
		score := mp.scores[mp.idx]
		mp.idx++

		if mp.stage == stageGoodCaptures && score < minWinningSEEScore {
			mp.lastScore = score
			return m, true
		}
		if mp.triedEarly(m) || !mp.pos.IsLegal(m) {
			continue
		}
		if mp.skipQuiets && !mp.pos.IsTactical(m) {
			continue
		}
		mp.lastScore = score
		return m, true
	}
	return board.NoMove, false
}

func (mp *MovePicker) scoreCaptures() {
	for i, m := range mp.list.Slice() {
		victim := mp.pos.CapturedType(m)
		score := mvvScore[victim] + mp.hist.CaptureScore(mp.pos, m)
		switch {
		case m.IsPromotion() && m.Promotion() != board.Queen:
			// Underpromotions go last.
			score -= WinningCaptureScore
		case m.IsPromotion():
			score += WinningCaptureScore + mvvScore[board.Queen]
		default:
			score += WinningCaptureScore
		}
		mp.scores[i] = score
	}
}

func (mp *MovePicker) scoreQuiets(start int) {
	for i := start; i < mp.list.N; i++ {
		mp.scores[i] = mp.hist.QuietScore(mp.pos, mp.list.Moves[i], mp.conts)
	}
}
