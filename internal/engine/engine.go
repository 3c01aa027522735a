package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/tablebase"
)

// ErrNoLegalMoves is returned when asked to search a mate or stalemate.
var ErrNoLegalMoves = errors.New("no legal moves")

// Info is reported by the main worker after each completed iteration,
// once per line when searching several.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int // 1-based line index
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
	TBHits   uint64
}

// Line is one principal variation of a search.
type Line struct {
	Score int
	PV    []board.Move
}

// Result is the outcome of a search. Lines holds every principal
// variation of the last completed depth, best first; the first one is
// the same as Move, PV and Score.
type Result struct {
	Move  board.Move
	PV    []board.Move
	Score int
	Depth int
	Nodes uint64
	Time  time.Duration
	Lines []Line
}

// Options configures an Engine.
type Options struct {
	HashMB       int
	Threads      int
	MoveOverhead time.Duration
	Params       SearchParams
	Logger       zerolog.Logger

	// MultiPV is the number of principal variations to search; values
	// below 1 mean 1.
	MultiPV int

	// Prober answers endgame queries; nil disables tablebases.
	Prober tablebase.Prober

	// Network is shared read-only by all workers; nil selects a
	// deterministic random network.
	Network *nnue.Network
}

// DefaultOptions returns a single-threaded engine with a 16 MB table.
func DefaultOptions() Options {
	return Options{
		HashMB:       16,
		Threads:      1,
		MoveOverhead: 10 * time.Millisecond,
		MultiPV:      1,
		Params:       DefaultSearchParams(),
		Logger:       zerolog.Nop(),
	}
}

// Engine owns the shared search state and its workers.
type Engine struct {
	params SearchParams
	lm     *lmTables
	net    *nnue.Network
	prober tablebase.Prober
	log    zerolog.Logger

	tt      *TranspositionTable
	tm      *TimeManager
	stop    atomic.Bool
	workers []*Worker
	multiPV int

	mu         sync.Mutex // serializes searches and reconfiguration
	searching  atomic.Bool
	totalNodes atomic.Uint64

	// OnInfo, when set, receives progress from the main worker.
	OnInfo func(Info)
}

// NewEngine creates an engine from opts.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Threads < 1 {
		return nil, fmt.Errorf("%w: threads %d", ErrInvalidParams, opts.Threads)
	}

	e := &Engine{
		params: opts.Params,
		lm:     newLMTables(opts.Params),
		net:    opts.Network,
		prober: opts.Prober,
		log:    opts.Logger,
		tt:     NewTranspositionTable(opts.HashMB),
	}
	e.SetMultiPV(opts.MultiPV)
	if e.prober == nil {
		e.prober = tablebase.NoopProber{}
	}
	if e.net == nil {
		e.log.Warn().Msg("no network loaded, using random weights")
		e.net = nnue.NewRandomNetwork(1)
	}
	e.tm = NewTimeManager(&e.stop, opts.MoveOverhead)
	e.SetThreads(opts.Threads)
	return e, nil
}

// SetThreads changes the number of workers. It must not be called during
// a search.
func (e *Engine) SetThreads(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n = max(n, 1)
	for len(e.workers) < n {
		e.workers = append(e.workers, newWorker(len(e.workers), e))
	}
	e.workers = e.workers[:n]
}

// SetMultiPV sets the number of principal variations later searches
// report.
func (e *Engine) SetMultiPV(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiPV = max(n, 1)
}

// Threads returns the number of workers.
func (e *Engine) Threads() int { return len(e.workers) }

// Resize reallocates the transposition table.
func (e *Engine) Resize(mb int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tt.Resize(mb)
}

// TT returns the shared transposition table.
func (e *Engine) TT() *TranspositionTable { return e.tt }

// Network returns the evaluation network.
func (e *Engine) Network() *nnue.Network { return e.net }

// Clear forgets all search state, as for a new game.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tt.Clear()
	for _, w := range e.workers {
		w.clear()
	}
}

// Stop asks a running search to finish as soon as possible. Called while
// no search runs, it makes the next search return at once with the first
// legal move.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Nodes returns the number of nodes searched over the engine's lifetime,
// including a search in progress.
func (e *Engine) Nodes() uint64 {
	n := e.totalNodes.Load()
	if e.searching.Load() {
		n += e.searchNodes()
	}
	return n
}

func (e *Engine) searchNodes() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.nodes.Load()
	}
	return n
}

func (e *Engine) tbHits() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.tbHits.Load()
	}
	return n
}

// Evaluate returns the static evaluation of pos from the side to move.
func (e *Engine) Evaluate(pos *board.Position) int {
	ev := nnue.NewEvaluator(e.net)
	ev.Reset(pos)
	return ev.Evaluate(pos)
}

// StartSearch searches pos within limits and blocks until done. A stop
// request or ctx cancellation ends the search early; the result is still
// the best move of the last completed iteration.
func (e *Engine) StartSearch(ctx context.Context, pos *board.Position, limits Limits) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var legal board.MoveList
	pos.LegalMoves(&legal)
	if legal.N == 0 {
		return Result{}, ErrNoLegalMoves
	}

	e.tt.NewSearch()
	us := pos.SideToMove()
	e.tm.Start(limits, us, (pos.FullMoveNumber()-1)*2+int(us))

	maxDepth := MaxPly - 1
	if limits.Depth > 0 {
		maxDepth = min(limits.Depth, maxDepth)
	}
	if legal.N == 1 && e.tm.UsesClock() {
		maxDepth = 1
	}
	lines := min(e.multiPV, legal.N)

	for _, w := range e.workers {
		w.prepare(pos)
	}
	e.searching.Store(true)

	done, watched := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-ctx.Done():
			e.stop.Store(true)
		case <-done:
		}
	}()

	e.log.Debug().
		Str("fen", pos.FEN()).
		Int("threads", len(e.workers)).
		Int("depth", maxDepth).
		Dur("soft", e.tm.SoftLimit()).
		Dur("hard", e.tm.HardLimit()).
		Msg("search started")

	var g errgroup.Group
	for _, w := range e.workers {
		w := w
		g.Go(func() error {
			if w.id == 0 {
				w.iterate(maxDepth, lines)
				e.stop.Store(true)
			} else {
				w.iterate(maxDepth, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	// The flag is cleared only once the watcher can no longer raise it,
	// so a Stop between searches is kept for the next one.
	close(done)
	<-watched
	e.stop.Store(false)

	nodes := e.searchNodes()
	e.totalNodes.Add(nodes)
	e.searching.Store(false)

	res := e.result(legal.Moves[0])
	res.Nodes = nodes
	res.Time = e.tm.Elapsed()

	e.log.Debug().
		Stringer("move", res.Move).
		Int("depth", res.Depth).
		Str("score", ScoreString(res.Score)).
		Uint64("nodes", nodes).
		Dur("time", res.Time).
		Msg("search finished")
	return res, nil
}

// result picks the main worker's last iteration, falling back to the
// deepest helper and finally to fallback.
func (e *Engine) result(fallback board.Move) Result {
	mw := e.workers[0]
	best, lines := mw.completed, mw.lines
	if best.depth == 0 {
		for _, w := range e.workers[1:] {
			if w.completed.depth > best.depth {
				best, lines = w.completed, nil
			}
		}
	}
	if len(best.pv) == 0 {
		return Result{
			Move:  fallback,
			PV:    []board.Move{fallback},
			Score: best.score,
			Depth: best.depth,
			Lines: []Line{{Score: best.score, PV: []board.Move{fallback}}},
		}
	}
	res := Result{Move: best.pv[0], PV: best.pv, Score: best.score, Depth: best.depth}
	// An interrupted depth leaves lines from the depth before; only a
	// matching set is reported.
	if len(lines) == 0 || lines[0].depth != best.depth || len(lines[0].pv) == 0 || lines[0].pv[0] != res.Move {
		lines = []iteration{best}
	}
	for _, it := range lines {
		res.Lines = append(res.Lines, Line{Score: it.score, PV: it.pv})
	}
	return res
}

// reportIteration is called by the main worker after each completed depth.
func (e *Engine) reportIteration(w *Worker) {
	it := w.completed
	best := board.NoMove
	if len(it.pv) > 0 {
		best = it.pv[0]
	}
	e.tm.ReportIteration(it.depth, best, it.score)

	if e.OnInfo == nil {
		return
	}
	nodes, elapsed := e.searchNodes(), e.tm.Elapsed()
	hashfull, tbHits := e.tt.Hashfull(), e.tbHits()
	for i, line := range w.lines {
		e.OnInfo(Info{
			Depth:    line.depth,
			SelDepth: line.seldepth,
			MultiPV:  i + 1,
			Score:    line.score,
			Nodes:    nodes,
			Time:     elapsed,
			PV:       line.pv,
			HashFull: hashfull,
			TBHits:   tbHits,
		})
	}
}

// benchFENs is a fixed suite of middlegame and endgame positions.
var benchFENs = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
	"8/8/4k3/8/2p5/8/B3K3/8 w - - 0 1",
	"6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1",
	"2r3k1/pp3ppp/2n1b3/3p4/3P4/2N1B3/PP3PPP/2R3K1 b - - 4 20",
}

// Bench searches every suite position to depth with a cleared engine and
// returns the total node count. With one thread the count is a
// deterministic signature of the search.
func (e *Engine) Bench(depth int) (uint64, error) {
	var total uint64
	for _, fen := range benchFENs {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			return 0, fmt.Errorf("bench position %q: %w", fen, err)
		}
		e.Clear()
		before := e.Nodes()
		if _, err := e.StartSearch(context.Background(), pos, Limits{Depth: depth}); err != nil {
			return 0, fmt.Errorf("bench position %q: %w", fen, err)
		}
		total += e.Nodes() - before
	}
	return total, nil
}
