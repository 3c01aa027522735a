package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lukechampine.com/frand"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/tablebase"
)

var testNet = nnue.NewRandomNetwork(1)

func newTestEngine(t *testing.T, threads int) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Threads = threads
	opts.Network = testNet
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func search(t *testing.T, e *Engine, fen string, limits Limits) Result {
	t.Helper()
	res, err := e.StartSearch(context.Background(), board.MustParseFEN(fen), limits)
	if err != nil {
		t.Fatalf("StartSearch(%s): %v", fen, err)
	}
	return res
}

func TestSearchReturnsLegalMove(t *testing.T) {
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	}
	e := newTestEngine(t, 1)
	for _, fen := range fens {
		res := search(t, e, fen, Limits{Depth: 5})
		var legal board.MoveList
		board.MustParseFEN(fen).LegalMoves(&legal)
		if !legal.Contains(res.Move) {
			t.Errorf("%s: illegal best move %s", fen, res.Move)
		}
		if res.Depth != 5 {
			t.Errorf("%s: completed depth %d, want 5", fen, res.Depth)
		}
		if len(res.PV) == 0 || res.PV[0] != res.Move {
			t.Errorf("%s: PV %v does not start with %s", fen, res.PV, res.Move)
		}
	}
}

func TestStartPositionScore(t *testing.T) {
	e := newTestEngine(t, 1)
	if v := e.Evaluate(board.NewPosition()); v != 0 {
		t.Errorf("static eval of the start position %d, want 0", v)
	}
	res := search(t, e, board.StartFEN, Limits{Depth: 1})
	if IsDecisive(res.Score) {
		t.Errorf("depth 1 score %s", ScoreString(res.Score))
	}
}

func TestSingleLegalMove(t *testing.T) {
	// The rook covers the g-file, h7 is the only square left.
	fen := "7k/8/8/8/8/8/8/6RK b - - 0 1"
	e := newTestEngine(t, 1)
	res := search(t, e, fen, Limits{MoveTime: time.Second})
	if got := res.Move.String(); got != "h8h7" {
		t.Errorf("best move %s", got)
	}
}

func TestNoLegalMoves(t *testing.T) {
	e := newTestEngine(t, 1)
	for _, fen := range []string{
		"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", // stalemate
		"7k/6Q1/6K1/8/8/8/8/8 b - - 0 1", // mate
	} {
		_, err := e.StartSearch(context.Background(), board.MustParseFEN(fen), Limits{Depth: 3})
		if !errors.Is(err, ErrNoLegalMoves) {
			t.Errorf("%s: err = %v, want ErrNoLegalMoves", fen, err)
		}
	}
}

func TestMateInOne(t *testing.T) {
	e := newTestEngine(t, 1)
	res := search(t, e, "6k1/5ppp/8/8/8/8/5PPP/3R2K1 w - - 0 1", Limits{Depth: 4})
	if res.Move.String() != "d1d8" {
		t.Errorf("best move %s, want d1d8", res.Move)
	}
	if res.Score != MateIn(1) {
		t.Errorf("score %d (%s), want %d", res.Score, ScoreString(res.Score), MateIn(1))
	}
}

func TestDeterministicSingleThread(t *testing.T) {
	fen := "r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10"
	a := search(t, newTestEngine(t, 1), fen, Limits{Depth: 6})
	b := search(t, newTestEngine(t, 1), fen, Limits{Depth: 6})
	if a.Move != b.Move || a.Score != b.Score || a.Nodes != b.Nodes {
		t.Errorf("runs differ: %s/%d/%d vs %s/%d/%d", a.Move, a.Score, a.Nodes, b.Move, b.Score, b.Nodes)
	}
}

func TestBenchDeterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("bench in short mode")
	}
	a, err := newTestEngine(t, 1).Bench(4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestEngine(t, 1).Bench(4)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || a == 0 {
		t.Errorf("bench signatures %d and %d", a, b)
	}
}

func TestMultiThreadSearch(t *testing.T) {
	e := newTestEngine(t, 4)
	res := search(t, e, board.StartFEN, Limits{Depth: 6})
	var legal board.MoveList
	board.NewPosition().LegalMoves(&legal)
	if !legal.Contains(res.Move) {
		t.Errorf("illegal best move %s", res.Move)
	}
	if e.Nodes() < res.Nodes {
		t.Errorf("lifetime nodes %d below search nodes %d", e.Nodes(), res.Nodes)
	}
}

func TestStopAndCancel(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := e.StartSearch(ctx, board.NewPosition(), Limits{Infinite: true})
	if err != nil {
		t.Fatalf("StartSearch: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancellation took %v", time.Since(start))
	}
	if res.Move == board.NoMove {
		t.Error("no move after cancellation")
	}
}

func TestNodeLimit(t *testing.T) {
	e := newTestEngine(t, 1)
	res := search(t, e, board.StartFEN, Limits{Nodes: 5000})
	// Polling happens every 1024 nodes.
	if res.Nodes > 5000+2048 {
		t.Errorf("searched %d nodes with a limit of 5000", res.Nodes)
	}
}

func TestOnInfo(t *testing.T) {
	e := newTestEngine(t, 1)
	var infos []Info
	e.OnInfo = func(i Info) { infos = append(infos, i) }
	search(t, e, board.StartFEN, Limits{Depth: 4})
	if len(infos) != 4 {
		t.Fatalf("got %d info reports, want 4", len(infos))
	}
	for i, info := range infos {
		if info.Depth != i+1 {
			t.Errorf("report %d has depth %d", i, info.Depth)
		}
		if len(info.PV) == 0 {
			t.Errorf("report %d has no PV", i)
		}
	}
}

func TestMultiPV(t *testing.T) {
	opts := DefaultOptions()
	opts.Network = testNet
	opts.MultiPV = 3
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatal(err)
	}
	var infos []Info
	e.OnInfo = func(i Info) { infos = append(infos, i) }

	res := search(t, e, board.StartFEN, Limits{Depth: 5})
	if len(res.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(res.Lines))
	}
	if res.Lines[0].PV[0] != res.Move || res.Lines[0].Score != res.Score {
		t.Errorf("first line %v/%d does not match result %s/%d", res.Lines[0].PV, res.Lines[0].Score, res.Move, res.Score)
	}
	var legal board.MoveList
	board.NewPosition().LegalMoves(&legal)
	seen := map[board.Move]bool{}
	for i, l := range res.Lines {
		if len(l.PV) == 0 || !legal.Contains(l.PV[0]) {
			t.Fatalf("line %d: bad PV %v", i+1, l.PV)
		}
		if seen[l.PV[0]] {
			t.Errorf("line %d repeats %s", i+1, l.PV[0])
		}
		seen[l.PV[0]] = true
		if i > 0 && l.Score > res.Lines[i-1].Score {
			t.Errorf("line %d scores %d above line %d (%d)", i+1, l.Score, i, res.Lines[i-1].Score)
		}
	}

	if len(infos) != 5*3 {
		t.Fatalf("got %d info reports, want 15", len(infos))
	}
	for i, info := range infos {
		if info.MultiPV != i%3+1 || info.Depth != i/3+1 {
			t.Errorf("report %d: depth %d multipv %d", i, info.Depth, info.MultiPV)
		}
	}

	// Never more lines than legal moves.
	res = search(t, e, "7k/8/8/8/8/8/8/6RK b - - 0 1", Limits{Depth: 3})
	if len(res.Lines) != 1 {
		t.Errorf("got %d lines with one legal move", len(res.Lines))
	}
}

func TestStopBeforeSearch(t *testing.T) {
	e := newTestEngine(t, 1)
	e.Stop()
	start := time.Now()
	res, err := e.StartSearch(context.Background(), board.NewPosition(), Limits{Infinite: true})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("stopped search ran for %v", time.Since(start))
	}
	var legal board.MoveList
	board.NewPosition().LegalMoves(&legal)
	if !legal.Contains(res.Move) {
		t.Errorf("illegal move %s", res.Move)
	}

	// The request is consumed; the next search runs normally.
	if res := search(t, e, board.StartFEN, Limits{Depth: 3}); res.Depth != 3 {
		t.Errorf("search after a consumed stop reached depth %d", res.Depth)
	}
}

func TestNewEngineRejectsBadParams(t *testing.T) {
	opts := DefaultOptions()
	opts.Params.LMRDivision = 0
	if _, err := NewEngine(opts); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
	opts = DefaultOptions()
	opts.Threads = 0
	if _, err := NewEngine(opts); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}

func TestTranspositionTable(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(0xDEADBEEF12345678)
	m := board.NewMove(board.NewSquare(4, 1), board.NewSquare(4, 3))

	if r := tt.Probe(key, 0, -Infinity, Infinity, 1, false); r.Kind != ProbeMiss {
		t.Fatalf("empty table probe = %v", r.Kind)
	}

	tt.Store(key, 0, m, 50, 30, BoundExact, 5)
	r := tt.Probe(key, 0, -Infinity, Infinity, 5, false)
	if r.Kind != ProbeCutoff || r.Score != 50 || r.Entry.Move != m || r.Entry.Eval != 30 {
		t.Errorf("probe = %+v", r)
	}
	if r := tt.Probe(key, 0, -Infinity, Infinity, 6, false); r.Kind != ProbeHit {
		t.Errorf("deeper probe = %v, want hit", r.Kind)
	}
	if r := tt.Probe(key, 0, -Infinity, Infinity, 5, true); r.Kind != ProbeHit {
		t.Errorf("doNotCut probe = %v, want hit", r.Kind)
	}
	if r := tt.Probe(key^1, 0, -Infinity, Infinity, 1, false); r.Kind != ProbeMiss {
		t.Errorf("other key probe = %v, want miss", r.Kind)
	}

	// Storing without a move keeps the old one.
	tt.Store(key, 0, board.NoMove, 10, 30, BoundLower, 6)
	if r := tt.Probe(key, 0, -Infinity, Infinity, 1, true); r.Entry.Move != m {
		t.Errorf("move lost: %v", r.Entry.Move)
	}
}

func TestTranspositionBounds(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(42)

	tt.Store(key, 0, board.NoMove, 100, 0, BoundLower, 4)
	if r := tt.Probe(key, 0, 0, 90, 4, false); r.Kind != ProbeCutoff {
		t.Errorf("lower bound above beta: %v", r.Kind)
	}
	if r := tt.Probe(key, 0, 0, 200, 4, false); r.Kind != ProbeHit {
		t.Errorf("lower bound below beta: %v", r.Kind)
	}

	tt.Store(key, 0, board.NoMove, -100, 0, BoundUpper, 8)
	if r := tt.Probe(key, 0, -50, 50, 4, false); r.Kind != ProbeCutoff {
		t.Errorf("upper bound below alpha: %v", r.Kind)
	}
}

func TestTranspositionReplacement(t *testing.T) {
	tt := NewTranspositionTable(1)
	tt.NewSearch()
	// Keys sharing their low bits land in the same bucket.
	key := func(i int) uint64 { return 5 | uint64(i+1)<<40 }

	tt.Store(key(0), 0, board.NoMove, 77, 0, BoundExact, 30)
	tt.Store(key(1), 0, board.NoMove, -5, 0, BoundUpper, 0)
	if r := tt.Probe(key(0), 0, -Infinity, Infinity, 30, false); r.Kind != ProbeCutoff || r.Score != 77 {
		t.Errorf("deep entry after a shallow collision: %+v", r)
	}
	if r := tt.Probe(key(1), 0, -Infinity, Infinity, 0, true); r.Kind != ProbeHit || r.Entry.Depth != 0 {
		t.Errorf("shallow entry: %+v", r)
	}

	// A full bucket of deep current entries refuses a shallow newcomer.
	for i := 1; i < clusterSize; i++ {
		tt.Store(key(i), 0, board.NoMove, i, 0, BoundLower, 20+i)
	}
	tt.Store(key(clusterSize), 0, board.NoMove, 1, 0, BoundUpper, 2)
	if r := tt.Probe(key(clusterSize), 0, -Infinity, Infinity, 0, true); r.Kind != ProbeMiss {
		t.Errorf("shallow store evicted a deep entry: %+v", r)
	}
	for i := 0; i < clusterSize; i++ {
		if r := tt.Probe(key(i), 0, -Infinity, Infinity, 0, true); r.Kind == ProbeMiss {
			t.Errorf("entry %d lost", i)
		}
	}

	// Once the bucket is from an older search the shallowest old entry goes.
	tt.NewSearch()
	tt.Store(key(clusterSize), 0, board.NoMove, 1, 0, BoundUpper, 2)
	if r := tt.Probe(key(clusterSize), 0, -Infinity, Infinity, 0, true); r.Kind != ProbeHit {
		t.Errorf("store into an aged bucket: %+v", r)
	}
	if r := tt.Probe(key(0), 0, -Infinity, Infinity, 0, true); r.Kind == ProbeMiss {
		t.Error("deepest exact entry evicted before shallower ones")
	}
}

func TestTranspositionMateScores(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(7)

	// Mate scores are stored relative to the node and read back relative
	// to the probing ply.
	tt.Store(key, 3, board.NoMove, MateIn(8), 0, BoundExact, 4)
	if r := tt.Probe(key, 3, -Infinity, Infinity, 4, false); r.Score != MateIn(8) {
		t.Errorf("same ply: %d, want %d", r.Score, MateIn(8))
	}
	if r := tt.Probe(key, 1, -Infinity, Infinity, 4, false); r.Score != MateIn(6) {
		t.Errorf("shallower ply: %d, want %d", r.Score, MateIn(6))
	}

	tt.Store(key, 2, board.NoMove, MatedIn(4), 0, BoundExact, 4)
	if r := tt.Probe(key, 4, -Infinity, Infinity, 4, false); r.Score != MatedIn(6) {
		t.Errorf("mated: %d, want %d", r.Score, MatedIn(6))
	}
}

func TestTranspositionSnapshot(t *testing.T) {
	tt := NewTranspositionTable(1)
	tt.NewSearch()
	for i := uint64(1); i < 500; i++ {
		tt.Store(i*0x9E3779B97F4A7C15, 0, board.NoMove, int(i), 0, BoundExact, int(i%20))
	}
	snap := tt.Snapshot()

	other := NewTranspositionTable(1)
	if err := other.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for i := uint64(1); i < 500; i++ {
		key := i * 0x9E3779B97F4A7C15
		a := tt.Probe(key, 0, -Infinity, Infinity, 0, true)
		b := other.Probe(key, 0, -Infinity, Infinity, 0, true)
		if a != b {
			t.Fatalf("key %x: %+v vs %+v", key, a, b)
		}
	}
	if other.Hashfull() != tt.Hashfull() {
		t.Errorf("hashfull %d vs %d", other.Hashfull(), tt.Hashfull())
	}

	small := NewTranspositionTable(2)
	if err := small.Restore(snap); !errors.Is(err, ErrSnapshotSize) {
		t.Errorf("err = %v, want ErrSnapshotSize", err)
	}
}

func TestTranspositionConcurrent(t *testing.T) {
	tt := NewTranspositionTable(1)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20000; i++ {
				key := frand.Uint64n(4096) * 0x9E3779B97F4A7C15
				score := int(key>>48) % 1000
				tt.Store(key, 0, board.NoMove, score, score, BoundExact, 3)
				r := tt.Probe(key, 0, -Infinity, Infinity, 0, true)
				// A verified entry must belong to this key.
				if r.Kind != ProbeMiss && r.Entry.Eval != r.Entry.Score {
					t.Errorf("torn entry for %x: %+v", key, r)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMovePickerYieldsEveryLegalMoveOnce(t *testing.T) {
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	}
	h := NewHistories()
	for _, fen := range fens {
		pos := board.MustParseFEN(fen)
		var legal board.MoveList
		pos.LegalMoves(&legal)

		// Use a legal move as TT move and killers to exercise dedup.
		tm := legal.Moves[0]
		killers := [2]board.Move{legal.Moves[legal.N-1], legal.Moves[legal.N/2]}
		mp := NewMovePicker(pos, h, tm, killers, legal.Moves[1], 0)

		seen := map[board.Move]int{}
		for m := mp.Next(); m != board.NoMove; m = mp.Next() {
			seen[m]++
		}
		if len(seen) != legal.N {
			t.Errorf("%s: picker yielded %d distinct moves, want %d", fen, len(seen), legal.N)
		}
		for m, n := range seen {
			if n != 1 {
				t.Errorf("%s: %s yielded %d times", fen, m, n)
			}
			if !legal.Contains(m) {
				t.Errorf("%s: %s is not legal", fen, m)
			}
		}
	}
}

func TestCapturePickerYieldsOnlyTactical(t *testing.T) {
	pos := board.MustParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	mp := NewCapturePicker(pos, NewHistories(), board.NoMove, -1000)
	n := 0
	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		if !pos.IsTactical(m) {
			t.Errorf("quiet move %s from capture picker", m)
		}
		n++
	}
	if n == 0 {
		t.Error("no captures yielded")
	}
}

func TestMovePickerTTMoveFirst(t *testing.T) {
	pos := board.NewPosition()
	m, err := pos.ParseUCIMove("g1f3")
	if err != nil {
		t.Fatal(err)
	}
	mp := NewMovePicker(pos, NewHistories(), m, [2]board.Move{}, board.NoMove, 0)
	if got := mp.Next(); got != m {
		t.Errorf("first move %s, want %s", got, m)
	}

	// A TT move from another position is ignored.
	bogus := board.NewMove(board.NewSquare(0, 3), board.NewSquare(0, 4))
	mp = NewMovePicker(pos, NewHistories(), bogus, [2]board.Move{}, board.NoMove, 0)
	for mv := mp.Next(); mv != board.NoMove; mv = mp.Next() {
		if mv == bogus {
			t.Fatal("picker yielded a move that is not pseudo-legal")
		}
	}
}

func TestMovePickerSkipQuiets(t *testing.T) {
	pos := board.MustParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	var legal board.MoveList
	pos.LegalMoves(&legal)

	// Skip from the first move, and again after quiets were generated.
	for _, quietsFirst := range []int{0, 3} {
		mp := NewMovePicker(pos, NewHistories(), board.NoMove, [2]board.Move{}, board.NoMove, 0)
		for quiets := 0; quiets < quietsFirst; {
			m := mp.Next()
			if m == board.NoMove {
				t.Fatal("ran out of moves")
			}
			if !pos.IsTactical(m) {
				quiets++
			}
		}
		mp.SkipQuiets()
		for m := mp.Next(); m != board.NoMove; m = mp.Next() {
			if !pos.IsTactical(m) {
				t.Errorf("after %d quiets: quiet move %s yielded after SkipQuiets", quietsFirst, m)
			}
			if !legal.Contains(m) {
				t.Errorf("illegal move %s", m)
			}
		}
	}
}

func TestHistoryGravity(t *testing.T) {
	var v int16
	for i := 0; i < 1000; i++ {
		gravity(&v, 2500)
		if v > MaxHistory {
			t.Fatalf("history %d above max after %d updates", v, i)
		}
	}
	if v < MaxHistory*9/10 {
		t.Errorf("history %d did not saturate", v)
	}
	for i := 0; i < 1000; i++ {
		gravity(&v, -2500)
		if v < -MaxHistory {
			t.Fatalf("history %d below -max after %d updates", v, i)
		}
	}
}

func TestKillersAndCounters(t *testing.T) {
	h := NewHistories()
	a := board.NewMove(board.NewSquare(6, 0), board.NewSquare(5, 2))
	b := board.NewMove(board.NewSquare(1, 0), board.NewSquare(2, 2))
	h.insertKiller(3, a)
	h.insertKiller(3, a)
	h.insertKiller(3, b)
	if k := h.Killers(3); k[0] != b || k[1] != a {
		t.Errorf("killers %v", k)
	}

	prev := board.NewMove(board.NewSquare(4, 6), board.NewSquare(4, 4))
	h.setCounterMove(board.Piece(6), prev, a)
	if got := h.CounterMove(board.Piece(6), prev); got != a {
		t.Errorf("counter move %s", got)
	}
	if got := h.CounterMove(board.NoPiece, board.NullMove); got != board.NoMove {
		t.Errorf("counter after null move %s", got)
	}
}

func TestQuietHistoryByPieceAndSquare(t *testing.T) {
	h := NewHistories()
	pos := board.NewPosition()
	move := func(p *board.Position, s string) board.Move {
		m, err := p.ParseUCIMove(s)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	knight, pawn := move(pos, "g1f3"), move(pos, "f2f3")

	black := board.MustParseFEN("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	reply := move(black, "g8f6")
	conts := h.Continuations(board.MakePiece(board.Black, board.Knight), board.NoPiece, reply, board.NoMove)
	if conts[0] == nil || conts[1] != nil {
		t.Fatalf("continuations %v", conts)
	}

	h.updateQuiets(pos, knight, []board.Move{pawn, knight}, conts, 1000)

	// Same destination, different piece: separate entries.
	plain := h.QuietScore(pos, knight, [2]*continuation{})
	if plain <= 0 || h.QuietScore(pos, pawn, [2]*continuation{}) >= 0 {
		t.Errorf("knight %d, pawn %d", plain, h.QuietScore(pos, pawn, [2]*continuation{}))
	}
	if with := h.QuietScore(pos, knight, conts); with <= plain {
		t.Errorf("continuation did not add: %d vs %d", with, plain)
	}

	other := h.Continuations(board.MakePiece(board.Black, board.Pawn), board.NoPiece, move(black, "e7e5"), board.NoMove)
	if got := h.QuietScore(pos, knight, other); got != plain {
		t.Errorf("unrelated continuation changed the score: %d vs %d", got, plain)
	}
	if c := h.Continuations(board.NoPiece, board.NoPiece, board.NullMove, board.NoMove); c[0] != nil || c[1] != nil {
		t.Error("continuation after a null move")
	}
}

func TestCorrectionHistory(t *testing.T) {
	ch := NewCorrectionHistory()
	pos := board.NewPosition()
	for i := 0; i < 200; i++ {
		ch.Update(pos, 200, 0, 10)
	}
	got := ch.Get(pos)
	if got <= 0 || got > 200 {
		t.Errorf("correction %d, want in (0, 200]", got)
	}
	ch.Clear()
	if ch.Get(pos) != 0 {
		t.Error("correction survived Clear")
	}
}

func TestTimeManagerBudgets(t *testing.T) {
	var stop atomic.Bool
	tm := NewTimeManager(&stop, 0)

	tm.Start(Limits{MoveTime: 500 * time.Millisecond}, board.White, 20)
	if tm.SoftLimit() != 500*time.Millisecond || tm.HardLimit() != 500*time.Millisecond {
		t.Errorf("movetime budgets %v/%v", tm.SoftLimit(), tm.HardLimit())
	}

	tm.Start(Limits{Time: [2]time.Duration{60 * time.Second, 60 * time.Second}}, board.Black, 20)
	ideal := 2 * time.Second
	if tm.SoftLimit() != ideal*6/10 {
		t.Errorf("soft %v, want %v", tm.SoftLimit(), ideal*6/10)
	}
	if tm.HardLimit() != ideal*3 {
		t.Errorf("hard %v, want %v", tm.HardLimit(), ideal*3)
	}

	// Little time left caps the hard limit at 80% of it.
	tm.Start(Limits{Time: [2]time.Duration{time.Second, time.Second}, MovesToGo: 1}, board.White, 20)
	if tm.HardLimit() != 800*time.Millisecond {
		t.Errorf("hard %v, want 800ms", tm.HardLimit())
	}

	tm.Start(Limits{Depth: 5}, board.White, 0)
	if tm.UsesClock() || tm.ShouldStopIteration() {
		t.Error("depth limited search uses the clock")
	}
}

func TestTimeManagerStability(t *testing.T) {
	var stop atomic.Bool
	tm := NewTimeManager(&stop, 0)
	tm.Start(Limits{Time: [2]time.Duration{60 * time.Second, 60 * time.Second}}, board.White, 20)
	base := tm.SoftLimit()

	m := board.NewMove(board.NewSquare(4, 1), board.NewSquare(4, 3))
	for d := 1; d <= 6; d++ {
		tm.ReportIteration(d, m, 20)
	}
	if tm.SoftLimit() >= base {
		t.Errorf("stable best move kept soft limit at %v (base %v)", tm.SoftLimit(), base)
	}
	tm.ReportIteration(7, board.NewMove(board.NewSquare(3, 1), board.NewSquare(3, 3)), -200)
	if tm.SoftLimit() <= base {
		t.Errorf("unstable best move shrank soft limit to %v (base %v)", tm.SoftLimit(), base)
	}
}

func TestTimeManagerNodeLimit(t *testing.T) {
	var stop atomic.Bool
	tm := NewTimeManager(&stop, 0)
	tm.Start(Limits{Nodes: 1000}, board.White, 0)
	if tm.Check(999) {
		t.Error("stopped before the node limit")
	}
	if !tm.Check(1000) || !stop.Load() {
		t.Error("node limit did not raise stop")
	}
}

func TestScoreString(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{35, "cp 35"},
		{-120, "cp -120"},
		{MateIn(1), "mate 1"},
		{MateIn(5), "mate 3"},
		{MatedIn(2), "mate -1"},
	}
	for _, tc := range tests {
		if got := ScoreString(tc.score); got != tc.want {
			t.Errorf("ScoreString(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

// fakeProber answers every query with wdl after an optional delay.
type fakeProber struct {
	wdl    func(q tablebase.Query) (tablebase.Result, error)
	pieces int
	delay  time.Duration
	probes atomic.Int64
}

func (f *fakeProber) ProbeWDL(q tablebase.Query) (tablebase.Result, error) {
	f.probes.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.wdl(q)
}

func (f *fakeProber) MaxPieces() int  { return f.pieces }
func (f *fakeProber) Available() bool { return true }

func newTBEngine(t *testing.T, p tablebase.Prober, probeDepth int) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Network = testNet
	opts.Prober = p
	opts.Params.TBProbeDepth = probeDepth
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// rookSideWins scores KR vs K for the side holding the rook.
func rookSideWins(q tablebase.Query) (tablebase.Result, error) {
	if q.Pieces[q.Side][board.Rook] != 0 {
		return tablebase.Result{WDL: tablebase.WDLWin}, nil
	}
	return tablebase.Result{WDL: tablebase.WDLLoss}, nil
}

const krk = "8/8/8/4k3/8/8/8/R3K3"

func TestTablebaseScores(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		wdl   func(tablebase.Query) (tablebase.Result, error)
		check func(score int) bool
	}{
		{"win", krk + " w - - 0 1", rookSideWins, func(s int) bool { return s >= TBWinScore-1 && !IsMate(s) }},
		{"loss", krk + " b - - 0 1", rookSideWins, func(s int) bool { return s <= -TBWinScore+1 && !IsMate(s) }},
		{"draw", krk + " w - - 0 1", func(tablebase.Query) (tablebase.Result, error) {
			return tablebase.Result{WDL: tablebase.WDLDraw}, nil
		}, func(s int) bool { return s == 0 }},
		{"failure", krk + " w - - 0 1", func(tablebase.Query) (tablebase.Result, error) {
			return tablebase.Result{}, errors.New("offline")
		}, func(s int) bool { return !IsDecisive(s) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProber{wdl: tc.wdl, pieces: 5}
			e := newTBEngine(t, p, 1)
			res := search(t, e, tc.fen, Limits{Depth: 4})
			if !tc.check(res.Score) {
				t.Errorf("score %d (%s)", res.Score, ScoreString(res.Score))
			}
			var legal board.MoveList
			board.MustParseFEN(tc.fen).LegalMoves(&legal)
			if !legal.Contains(res.Move) {
				t.Errorf("illegal move %s", res.Move)
			}
			if p.probes.Load() == 0 {
				t.Error("prober never consulted")
			}
			if tc.name == "failure" && e.tbHits() != 0 {
				t.Errorf("%d hits from a failing prober", e.tbHits())
			}
		})
	}
}

func TestTablebaseResultStored(t *testing.T) {
	p := &fakeProber{pieces: 5, wdl: func(tablebase.Query) (tablebase.Result, error) {
		return tablebase.Result{WDL: tablebase.WDLDraw}, nil
	}}
	e := newTBEngine(t, p, 1)
	root := board.MustParseFEN(krk + " w - - 0 1")
	search(t, e, krk+" w - - 0 1", Limits{Depth: 3})

	var legal board.MoveList
	root.LegalMoves(&legal)
	for _, m := range legal.Slice() {
		child := root.Clone()
		child.MakeMove(m)
		r := e.TT().Probe(child.Hash(), 1, -Infinity, Infinity, 0, true)
		if r.Kind == ProbeMiss || r.Entry.Bound != BoundExact || r.Entry.Score != 0 {
			t.Errorf("after %s: %+v", m, r)
		}
	}
}

func TestTablebaseProbeRateLimit(t *testing.T) {
	p := &fakeProber{wdl: rookSideWins, pieces: 3}
	e := newTBEngine(t, p, 6)

	// Three pieces is the prober's maximum: only nodes at depth 6 probe.
	search(t, e, krk+" w - - 1 1", Limits{Depth: 5})
	if n := p.probes.Load(); n != 0 {
		t.Errorf("%d probes below the probe depth", n)
	}
	search(t, e, krk+" w - - 1 1", Limits{Depth: 7})
	if p.probes.Load() == 0 {
		t.Error("no probes at the probe depth")
	}
}

func TestSlowTablebaseHonorsTimeLimit(t *testing.T) {
	p := &fakeProber{pieces: 5, delay: 5 * time.Millisecond, wdl: func(tablebase.Query) (tablebase.Result, error) {
		return tablebase.Result{}, tablebase.ErrUnavailable
	}}
	e := newTBEngine(t, p, 1)
	start := time.Now()
	search(t, e, krk+" w - - 0 1", Limits{MoveTime: 100 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("100ms search took %v over %d probes", elapsed, p.probes.Load())
	}
}

func TestSingularExclusionIsLifted(t *testing.T) {
	opts := DefaultOptions()
	opts.Network = testNet
	opts.Params.SingularDepth = 4
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatal(err)
	}
	fen := "r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10"
	search(t, e, fen, Limits{Depth: 8})

	w := e.workers[0]
	for ply := range w.stack {
		if w.stack[ply].excluded != board.NoMove {
			t.Fatalf("ply %d still excludes %s", ply, w.stack[ply].excluded)
		}
	}

	pos := board.MustParseFEN(fen)
	var legal board.MoveList
	pos.LegalMoves(&legal)
	m := legal.Moves[0]

	w.prepare(pos)
	w.singular(m, 0, 3, 0)
	if w.stack[0].excluded != board.NoMove {
		t.Errorf("exclusion kept after a verification search")
	}

	// A search that unwinds on stop lifts it too.
	w.prepare(pos)
	e.stop.Store(true)
	w.nodes.Store(1023)
	w.singular(m, 0, 6, 0)
	e.stop.Store(false)
	if !w.stopped {
		t.Fatal("verification search did not see the stop")
	}
	if w.stack[0].excluded != board.NoMove {
		t.Errorf("exclusion kept after a stopped verification search")
	}
}
