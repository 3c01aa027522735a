package engine

import (
	"sync/atomic"
	"time"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/util"
)

// Limits contains the search constraints of one move.
type Limits struct {
	Time      [2]time.Duration // remaining time for each color
	Inc       [2]time.Duration // increment per move
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth
	Nodes     uint64           // maximum nodes to search
	Infinite  bool             // search until stopped
}

const defaultMovesToGo = 30

// Soft budget scale by best move stability, in percent.
var stabilityScale = [...]int{250, 120, 90, 80, 75}

// TimeManager handles time allocation for searches. Start and the
// iteration methods belong to the main worker; Check may be polled by it
// at any time.
type TimeManager struct {
	overhead time.Duration

	start    time.Time
	baseSoft time.Duration // soft budget before stability scaling
	soft     time.Duration
	hard     time.Duration
	clock    bool
	nodes    uint64

	stop *atomic.Bool

	lastBest  board.Move
	lastScore int
	stability int
}

// NewTimeManager creates a time manager that raises stop when a budget
// runs out.
func NewTimeManager(stop *atomic.Bool, overhead time.Duration) *TimeManager {
	return &TimeManager{stop: stop, overhead: overhead}
}

// Start computes the budgets for a new search. ply is the game ply; the
// first few moves get a slightly smaller share.
func (tm *TimeManager) Start(limits Limits, us board.Color, ply int) {
	tm.start = time.Now()
	tm.nodes = limits.Nodes
	tm.lastBest = board.NoMove
	tm.lastScore = 0
	tm.stability = 0
	tm.clock = false

	switch {
	case limits.MoveTime > 0:
		tm.clock = true
		tm.baseSoft = max(limits.MoveTime-tm.overhead, time.Millisecond)
		tm.hard = tm.baseSoft

	case limits.Infinite || limits.Time[us] <= 0:
		// Depth or node limited, or until stopped.

	default:
		tm.clock = true
		left, inc := limits.Time[us], limits.Inc[us]
		mtg := limits.MovesToGo
		if mtg <= 0 {
			mtg = defaultMovesToGo
		}
		ideal := left/time.Duration(mtg) + inc*3/4
		if ply < 8 {
			ideal = ideal * 85 / 100
		}
		tm.baseSoft = max(ideal*6/10-tm.overhead, time.Millisecond)
		tm.hard = max(min(ideal*3, left*8/10)-tm.overhead, time.Millisecond)
	}
	tm.soft = min(tm.baseSoft, tm.hard)
}

// ReportIteration feeds a completed iteration's result back: a stable
// best move shrinks the soft budget, a moving score stretches it.
func (tm *TimeManager) ReportIteration(depth int, best board.Move, score int) {
	if best == tm.lastBest {
		tm.stability = min(tm.stability+1, len(stabilityScale)-1)
	} else {
		tm.stability = 0
	}
	volatility := 100
	if depth > 1 {
		volatility += min(util.Abs(score-tm.lastScore), 100) / 2
	}
	tm.lastBest, tm.lastScore = best, score

	if !tm.clock {
		return
	}
	soft := tm.baseSoft * time.Duration(stabilityScale[tm.stability]*volatility) / 10000
	tm.soft = min(soft, tm.hard)
}

// ShouldStopIteration reports whether another iteration should not be
// started.
func (tm *TimeManager) ShouldStopIteration() bool {
	if tm.stop.Load() {
		return true
	}
	return tm.clock && tm.Elapsed() >= tm.soft
}

// Check is the cheap predicate polled during search. It raises the stop
// flag when the hard budget or the node limit is exhausted.
func (tm *TimeManager) Check(nodes uint64) bool {
	if tm.stop.Load() {
		return true
	}
	if (tm.nodes > 0 && nodes >= tm.nodes) || (tm.clock && tm.Elapsed() >= tm.hard) {
		tm.stop.Store(true)
		return true
	}
	return false
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Since(tm.start)
}

// UsesClock reports whether the search is time limited.
func (tm *TimeManager) UsesClock() bool { return tm.clock }

// SoftLimit returns the current target time for this move.
func (tm *TimeManager) SoftLimit() time.Duration { return tm.soft }

// HardLimit returns the maximum time allowed.
func (tm *TimeManager) HardLimit() time.Duration { return tm.hard }
