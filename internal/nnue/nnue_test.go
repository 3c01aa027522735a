package nnue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/hailam/chesscore/internal/board"
	"lukechampine.com/frand"
)

var testNet = NewRandomNetwork(1)

var fens = []string{
	board.StartFEN,
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 1",
}

type played struct {
	m board.Move
	u board.Undo
}

func checkAgainstScratch(t *testing.T, e *Evaluator, pos *board.Position) {
	t.Helper()
	for _, c := range []board.Color{board.White, board.Black} {
		if got, want := e.Accumulator(pos, c), testNet.ComputeAccumulator(pos, c); got != want {
			t.Fatalf("%s: %v accumulator differs from full recompute", pos.FEN(), c)
		}
	}
	if got, want := e.Evaluate(pos), testNet.Evaluate(pos); got != want {
		t.Fatalf("%s: eval %d, full %d", pos.FEN(), got, want)
	}
}

// TestIncrementalMatchesFull plays random lines, sometimes backing up,
// and only materializes at some plies so diffs chain over several moves.
func TestIncrementalMatchesFull(t *testing.T) {
	for _, fen := range fens {
		pos := board.MustParseFEN(fen)
		e := NewEvaluator(testNet)
		e.Reset(pos)
		var line []played
		for step := 0; step < 300; step++ {
			var ml board.MoveList
			pos.LegalMoves(&ml)
			if ml.N == 0 || len(line) > 40 || (len(line) > 0 && frand.Intn(4) == 0) {
				if len(line) == 0 {
					break
				}
				last := line[len(line)-1]
				line = line[:len(line)-1]
				pos.UnmakeMove(last.m, last.u)
				e.Pop()
			} else {
				m := ml.Moves[frand.Intn(ml.N)]
				u := pos.MakeMove(m)
				e.Push(pos, m, u.Captured())
				line = append(line, played{m, u})
			}
			if frand.Intn(3) == 0 {
				checkAgainstScratch(t, e, pos)
			}
		}
		checkAgainstScratch(t, e, pos)
	}
}

func TestNullMoveCarriesAccumulator(t *testing.T) {
	pos := board.MustParseFEN(fens[1])
	e := NewEvaluator(testNet)
	e.Reset(pos)
	before := e.Accumulator(pos, board.White)

	u := pos.MakeNullMove()
	e.PushNull(pos)
	if got := e.Accumulator(pos, board.White); got != before {
		t.Errorf("null move changed the accumulator")
	}
	checkAgainstScratch(t, e, pos)
	pos.UnmakeNullMove(u)
	e.Pop()
}

func TestKingBucketChangeUsesCache(t *testing.T) {
	pos := board.MustParseFEN("r3k2r/pppq1ppp/2n2n2/3pp3/3PP3/2N2N2/PPPQ1PPP/R3K2R w KQkq - 0 1")
	e := NewEvaluator(testNet)
	e.Reset(pos)
	checkAgainstScratch(t, e, pos)

	// e1 and e2 sit in different buckets, so both moves refresh.
	var line []played
	for _, s := range []string{"e1e2", "e8e7", "e2e1", "e7e8"} {
		m, err := pos.ParseUCIMove(s)
		if err != nil {
			t.Fatal(err)
		}
		u := pos.MakeMove(m)
		e.Push(pos, m, u.Captured())
		line = append(line, played{m, u})
		checkAgainstScratch(t, e, pos)
	}

	st := e.Stats()
	if st.CacheRefresh == 0 {
		t.Errorf("returning the king to its first bucket did not use the cache: %+v", st)
	}
	if st.FullRefresh != 4 {
		t.Errorf("full refreshes = %d, want 4 (root twice, e2 and e7 once each)", st.FullRefresh)
	}

	for i := len(line) - 1; i >= 0; i-- {
		pos.UnmakeMove(line[i].m, line[i].u)
		e.Pop()
	}
	checkAgainstScratch(t, e, pos)
}

func TestSymmetricPositionIsZero(t *testing.T) {
	pos := board.NewPosition()
	e := NewEvaluator(testNet)
	e.Reset(pos)
	if got := e.Evaluate(pos); got != 0 {
		t.Errorf("start position eval = %d, want 0", got)
	}
}

func TestUpdateForMoveShapes(t *testing.T) {
	tests := []struct {
		fen, move string
		kind      UpdateKind
	}{
		{board.StartFEN, "e2e4", Quiet},
		{fens[1], "e5f7", Capture},
		{fens[1], "e1g1", Castle},
		{fens[1], "e1c1", Castle},
		{fens[4], "e5d6", Capture},
		{"4k3/8/8/8/8/8/1p6/R3K3 b - - 0 1", "b2a1q", Capture},
		{"4k3/1P6/8/8/8/8/8/4K3 w - - 0 1", "b7b8n", Quiet},
	}
	for _, tc := range tests {
		t.Run(tc.move, func(t *testing.T) {
			pos := board.MustParseFEN(tc.fen)
			m, err := pos.ParseUCIMove(tc.move)
			if err != nil {
				t.Fatal(err)
			}
			u := pos.MakeMove(m)
			if got := UpdateForMove(pos, m, u.Captured()); got.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", got.Kind, tc.kind)
			}
		})
	}
}

func TestBadUpdateShapePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for a 2a1s update")
		}
	}()
	NewFeatureUpdate(make([]Feature, 2), make([]Feature, 1))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	pos := board.MustParseFEN(fens[1])
	for _, compressed := range []bool{false, true} {
		var buf bytes.Buffer
		var err error
		if compressed {
			err = testNet.SaveCompressed(&buf)
		} else {
			err = testNet.Save(&buf)
		}
		if err != nil {
			t.Fatal(err)
		}
		n, err := LoadNetwork(&buf)
		if err != nil {
			t.Fatalf("compressed=%v: %v", compressed, err)
		}
		if got, want := n.Evaluate(pos), testNet.Evaluate(pos); got != want {
			t.Errorf("compressed=%v: loaded net evaluates %d, want %d", compressed, got, want)
		}
	}
}

func TestLoadRejectsBadBlobs(t *testing.T) {
	var good bytes.Buffer
	if err := testNet.Save(&good); err != nil {
		t.Fatal(err)
	}
	headerSize := binary.Size(FileHeader{})

	corrupt := func(f func(b []byte)) []byte {
		b := bytes.Clone(good.Bytes())
		f(b)
		return b
	}

	saved := func(edit func(n *Network)) []byte {
		n := NewRandomNetwork(2)
		edit(n)
		var buf bytes.Buffer
		if err := n.Save(&buf); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"magic", corrupt(func(b []byte) { b[0] ^= 0xFF }), ErrBadMagic},
		{"version", corrupt(func(b []byte) { b[4]++ }), ErrBadVersion},
		{"shape", corrupt(func(b []byte) { b[16]++ }), ErrShape},
		{"checksum", corrupt(func(b []byte) { b[headerSize+100] ^= 1 }), ErrChecksum},
		{"weight range", saved(func(n *Network) { n.L1Weights[3][2][1] = MaxL1Weight + 1 }), ErrWeightRange},
		{"l1 bias range", saved(func(n *Network) { n.L1Bias[0][5] = MaxDenseBias + 1 }), ErrWeightRange},
		{"l2 bias range", saved(func(n *Network) { n.L2Bias[7][0] = -MaxDenseBias - 1 }), ErrWeightRange},
		{"l3 bias range", saved(func(n *Network) { n.L3Bias[2] = 1 << 30 }), ErrWeightRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadNetwork(bytes.NewReader(tc.blob)); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := LoadNetwork(bytes.NewReader(good.Bytes()[:good.Len()/2])); err == nil {
		t.Errorf("truncated blob loaded")
	}
}
