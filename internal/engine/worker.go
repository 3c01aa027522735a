package engine

import (
	"cmp"
	"errors"
	"slices"
	"sync/atomic"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/nnue"
	"github.com/hailam/chesscore/internal/tablebase"
	"github.com/hailam/chesscore/internal/util"
)

// stackEntry is the per-ply search state of a worker.
type stackEntry struct {
	move      board.Move  // move made from this ply
	moved     board.Piece // piece that made it
	undo      board.Undo
	eval      int        // corrected static eval, -Infinity in check
	excluded  board.Move // singular verification excludes this move
	bestMove  board.Move
	doubleExt int // double extensions on the path to this ply
}

// iteration is the result of a completed iterative deepening step.
type iteration struct {
	depth    int
	seldepth int
	score    int
	pv       []board.Move
}

// Worker represents a search worker for parallel Lazy SMP search.
// Each worker has its own position, accumulators and heuristic tables;
// only the transposition table and network weights are shared.
type Worker struct {
	id  int
	eng *Engine

	pos  *board.Position
	eval *nnue.Evaluator
	hist *Histories
	corr *CorrectionHistory

	stack [MaxPly + 1]stackEntry
	pv    PVTable

	nodes    atomic.Uint64
	tbHits   atomic.Uint64
	seldepth int
	stopped  bool

	// Null move pruning is disabled for a side during verification.
	nmpBanned [2]bool

	rootDepth int
	completed iteration // best line of the deepest finished depth

	// MultiPV state: the lines of the depth in progress, the lines of the
	// last finished depth, and the index of the line being searched.
	cur   []iteration
	lines []iteration
	pvIdx int
}

func newWorker(id int, eng *Engine) *Worker {
	return &Worker{
		id:   id,
		eng:  eng,
		eval: nnue.NewEvaluator(eng.net),
		hist: NewHistories(),
		corr: NewCorrectionHistory(),
	}
}

// prepare copies the root position and resets per-search state.
func (w *Worker) prepare(pos *board.Position) {
	w.pos = pos.Clone()
	w.eval.Reset(w.pos)
	w.nodes.Store(0)
	w.tbHits.Store(0)
	w.seldepth = 0
	w.stopped = false
	w.nmpBanned = [2]bool{}
	w.completed = iteration{}
	w.cur = w.cur[:0]
	w.lines = w.lines[:0]
	w.pvIdx = 0
	w.stack = [MaxPly + 1]stackEntry{}
	w.hist.Age()
}

// clear forgets everything learned, as for a new game.
func (w *Worker) clear() {
	w.hist.Clear()
	w.corr.Clear()
}

// checkup polls the stop conditions. Only the main worker asks the time
// manager; helpers follow the shared flag.
func (w *Worker) checkup() bool {
	if w.id == 0 {
		w.eng.tm.Check(w.eng.searchNodes())
	}
	w.stopped = w.eng.stop.Load()
	return w.stopped
}

func (w *Worker) drawScore() int {
	return int(w.nodes.Load()&2) - 1
}

// evaluate returns the network's score clamped out of the decisive range.
func (w *Worker) evaluate() int {
	v := w.eval.Evaluate(w.pos)
	return util.Clamp(v, -TBWinBound+1, TBWinBound-1)
}

func (w *Worker) corrected(raw int) int {
	return util.Clamp(raw+w.corr.Get(w.pos), -TBWinBound+1, TBWinBound-1)
}

func (w *Worker) makeMove(ply int, m board.Move) {
	st := &w.stack[ply]
	st.move = m
	st.moved = w.pos.PieceOn(m.From())
	st.undo = w.pos.MakeMove(m)
	w.eval.Push(w.pos, m, st.undo.Captured())
}

func (w *Worker) unmakeMove(ply int) {
	st := &w.stack[ply]
	w.pos.UnmakeMove(st.move, st.undo)
	w.eval.Pop()
}

func (w *Worker) makeNullMove(ply int) {
	st := &w.stack[ply]
	st.move = board.NullMove
	st.moved = board.NoPiece
	st.undo = w.pos.MakeNullMove()
	w.eval.PushNull(w.pos)
}

func (w *Worker) unmakeNullMove(ply int) {
	w.pos.UnmakeNullMove(w.stack[ply].undo)
	w.eval.Pop()
}

// counterMove looks up the reply to the move that led to ply.
func (w *Worker) counterMove(ply int) board.Move {
	if ply == 0 {
		return board.NoMove
	}
	prev := &w.stack[ply-1]
	return w.hist.CounterMove(prev.moved, prev.move)
}

// continuations selects the continuation histories for moves at ply from
// the two moves played before it.
func (w *Worker) continuations(ply int) [2]*continuation {
	var m1, m2 board.Move
	p1, p2 := board.NoPiece, board.NoPiece
	if ply >= 1 {
		m1, p1 = w.stack[ply-1].move, w.stack[ply-1].moved
	}
	if ply >= 2 {
		m2, p2 = w.stack[ply-2].move, w.stack[ply-2].moved
	}
	return w.hist.Continuations(p1, p2, m1, m2)
}

// search is the principal variation search.
func (w *Worker) search(kind nodeKind, depth, ply, alpha, beta int) int {
	root := kind == nodeRoot
	pvNode := kind.isPV()
	inCheck := w.pos.InCheck()

	// Quiescence search at depth 0; in check the node is searched at
	// depth 1 so every evasion is tried.
	if depth <= 0 {
		if !inCheck {
			return w.qsearch(pvNode, ply, alpha, beta)
		}
		depth = 1
	}

	// Initialize PV length for this ply
	w.pv.clear(ply)

	// Check for stop signal periodically
	if w.nodes.Add(1)&1023 == 0 && w.checkup() {
		return 0
	}
	w.seldepth = max(w.seldepth, ply)

	if !root {
		// Repetition, 50-move rule or insufficient material
		if w.pos.IsDraw() {
			return w.drawScore()
		}
		// Bounds check: pv and stack are indexed at ply+1
		if ply >= MaxPly-1 {
			if inCheck {
				return 0
			}
			return w.evaluate()
		}

		// Mate distance pruning
		if a, b := max(alpha, MatedIn(ply)), min(beta, MateIn(ply+1)); a >= b {
			return a
		}
	}

	p := &w.eng.params
	st := &w.stack[ply]
	key := w.pos.Hash()
	us := w.pos.SideToMove()
	excluded := st.excluded

	// Probe transposition table. A verification search for a singular
	// move must not see the entry of the node it verifies.
	var tte TTEntry
	ttHit := false
	if excluded == board.NoMove {
		doNotCut := pvNode || w.pos.HalfMoveClock() >= 80
		r := w.eng.tt.Probe(key, ply, alpha, beta, depth, doNotCut)
		switch r.Kind {
		case ProbeCutoff:
			return r.Score
		case ProbeHit:
			tte, ttHit = r.Entry, true
		case ProbeMiss:
			// No move to try first: a PV node is cheaper one ply shallower.
			if pvNode && depth >= p.TTReductionDepth {
				depth--
			}
		}
	}

	// Tablebase probe. A probe may block, so the stop flag is rechecked
	// after it regardless of the node count.
	tbMin, tbMax := -Infinity, Infinity
	if !root && excluded == board.NoMove {
		score, bound, ok := w.probeTablebase(depth, ply)
		if w.stopped {
			return 0
		}
		if ok {
			// A bound that already decides the window ends the node;
			// otherwise PV nodes keep it as a floor or a ceiling.
			if bound == BoundExact ||
				(bound == BoundLower && score >= beta) ||
				(bound == BoundUpper && score <= alpha) {
				w.eng.tt.Store(key, ply, board.NoMove, score, -Infinity, bound, depth)
				return score
			}
			if pvNode && bound == BoundLower {
				alpha = max(alpha, score)
				tbMin = score
			}
			if pvNode && bound == BoundUpper {
				tbMax = score
			}
		}
	}

	// Static evaluation, adjusted by correction history. The raw value
	// is what goes into the TT.
	var rawEval, staticEval int
	switch {
	case inCheck:
		rawEval, staticEval = -Infinity, -Infinity
	case excluded != board.NoMove:
		rawEval, staticEval = w.evaluate(), st.eval
	default:
		rawEval = w.evaluate()
		staticEval = w.corrected(rawEval)
	}
	st.eval = staticEval

	// Improving heuristic: better than our eval two plies ago
	improving := !inCheck && ply >= 2 && staticEval >= w.stack[ply-2].eval

	if ply == 0 {
		st.doubleExt = 0
	} else {
		st.doubleExt = w.stack[ply-1].doubleExt
	}
	// Children start with fresh killers
	if ply+1 <= MaxPly {
		w.hist.clearKillers(ply + 1)
	}

	if !pvNode && !inCheck && excluded == board.NoMove {
		// Razoring
		if staticEval < alpha-p.RazorBase-p.RazorMul*depth*depth {
			v := w.qsearch(false, ply, alpha-1, alpha)
			if v < alpha {
				return v
			}
		}

		// Reverse Futility Pruning
		if depth <= p.RFPDepth && staticEval-p.rfpMargin(depth, improving) >= beta {
			return staticEval
		}

		// Null Move Pruning. Never twice in a row, and never without
		// pieces where zugzwang is likely. At high depth a fail high is
		// verified with null moves disabled for our side.
		lastWasNull := ply > 0 && w.stack[ply-1].move == board.NullMove
		nmpEval := staticEval
		if improving {
			nmpEval += p.NMPImprovingMargin
		}
		if !lastWasNull && depth >= 3 && nmpEval >= beta && !w.nmpBanned[us] && w.pos.HasNonPawnMaterial(us) {
			r := p.NMPBaseReduction + depth/3 + min((staticEval-beta)/200, 3)
			w.makeNullMove(ply)
			score := -w.search(nodeNonPV, depth-r, ply+1, -beta, -beta+1)
			w.unmakeNullMove(ply)
			if w.stopped {
				return 0
			}
			if score >= beta {
				// Unproven mates are not returned
				if IsDecisive(score) {
					score = beta
				}
				if depth < p.NMPVerificationDepth {
					return score
				}
				w.nmpBanned[us] = true
				v := w.search(nodeNonPV, depth-r, ply, beta-1, beta)
				w.nmpBanned[us] = false
				if w.stopped {
					return 0
				}
				if v >= beta {
					return score
				}
			}
		}
	}

	ttMove := board.NoMove
	if ttHit {
		ttMove = tte.Move
	}

	// Internal Iterative Deepening
	if pvNode && !ttHit && depth >= p.IIDDepth {
		w.search(kind, depth-2, ply, alpha, beta)
		if w.stopped {
			return 0
		}
		ttMove = st.bestMove
		w.pv.clear(ply)
	}

	// Probcut: a capture that beats beta by a margin in qsearch and at
	// reduced depth lets the node fail high.
	pcBeta := min(beta+p.ProbcutMargin, TBWinBound-1)
	if improving {
		pcBeta = min(beta+p.ProbcutMargin-p.ProbcutImprovingMargin, TBWinBound-1)
	}
	if !pvNode && !inCheck && excluded == board.NoMove && depth >= p.ProbcutMinDepth &&
		!IsDecisive(beta) && (!ttHit || tte.Score >= pcBeta || tte.Depth < depth-3) {
		var mp MovePicker
		mp.initCaptures(w.pos, w.hist, ttMove, pcBeta-staticEval)
		for m := mp.Next(); m != board.NoMove; m = mp.Next() {
			w.makeMove(ply, m)
			v := -w.qsearch(false, ply+1, -pcBeta, -pcBeta+1)
			if v >= pcBeta {
				v = -w.search(nodeNonPV, depth-p.ProbcutReduction, ply+1, -pcBeta, -pcBeta+1)
			}
			w.unmakeMove(ply)
			if w.stopped {
				return 0
			}
			if v >= pcBeta {
				w.eng.tt.Store(key, ply, m, v, rawEval, BoundLower, depth-3)
				return v
			}
		}
	}

	killers := w.hist.Killers(ply)
	conts := w.continuations(ply)
	var mp MovePicker
	mp.init(w.pos, w.hist, ttMove, killers, w.counterMove(ply), conts, 0)

	// Pruning thresholds for the move loop
	lmpLimit := w.eng.lm.lmpLimit(depth, improving)
	seeMargin := [2]int{p.SEETacticalMargin * depth * depth, p.SEEQuietMargin * depth}

	var quiets, tacticals board.MoveList
	originalAlpha := alpha
	bestScore := -Infinity
	bestMove := board.NoMove
	movesMade := 0

	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		// Singular verification and MultiPV: skip excluded moves
		if m == excluded || (root && w.rootExcluded(m)) {
			continue
		}
		isQuiet := !w.pos.IsTactical(m)
		winning := mp.LastScore() >= minWinningSEEScore
		histScore := 0
		if isQuiet {
			histScore = w.hist.QuietScore(w.pos, m, conts)
		}
		lmrDepth := max(depth-w.eng.lm.lmr(depth, movesMade), 0)

		if !root && !pvNode && !inCheck && bestScore > -TBWinBound {
			// Late Move Pruning
			if isQuiet && lmrDepth <= p.LMPDepth && movesMade >= lmpLimit {
				mp.SkipQuiets()
				continue
			}

			// Futility Pruning
			if isQuiet && lmrDepth < p.FutilityDepth && staticEval+lmrDepth*p.FutilityMul+p.FutilityBase <= alpha {
				mp.SkipQuiets()
				continue
			}
		}

		// SEE pruning
		if !root && bestScore > -TBWinBound && depth <= p.SEEDepth && mp.Stage() > stageGoodCaptures {
			i := 0
			if isQuiet {
				i = 1
			}
			if !w.pos.SeeGE(m, seeMargin[i]) {
				continue
			}
		}

		// Singular Extensions: if every other move fails low against a
		// margin below the TT score, the TT move is extended.
		ext := 0
		if !root && ttHit && m == ttMove && excluded == board.NoMove && depth >= p.SingularDepth &&
			tte.Depth >= depth-3 && (tte.Bound == BoundLower || tte.Bound == BoundExact) && !IsDecisive(tte.Score) {
			rBeta := max(tte.Score-2*depth, -MateScore)
			v := w.singular(m, ply, (depth-1)/2, rBeta)
			if w.stopped {
				return 0
			}
			switch {
			case v >= rBeta && rBeta >= beta:
				// Multi-cut: even without the TT move the node fails high.
				return rBeta
			case !pvNode && v < rBeta-p.DoubleExtMargin && st.doubleExt <= p.MaxDoubleExtensions:
				ext = 2
			case v < rBeta:
				ext = 1
			case tte.Score >= beta || tte.Score <= alpha:
				ext = -1
			}
		}

		// Make move
		w.makeMove(ply, m)
		movesMade++
		if isQuiet {
			quiets.Add(m)
		} else {
			tacticals.Add(m)
		}

		// Check extension
		if ext == 0 && !root && w.pos.InCheck() && (isQuiet || winning) && ply < 2*w.rootDepth {
			ext = 1
		}
		if ext >= 2 {
			st.doubleExt++
		}

		newDepth := depth - 1 + ext
		var score int
		// The first move gets the full window, later ones a null window
		// at reduced depth, re-searched when they beat alpha.
		if movesMade == 1 {
			score = -w.search(childKind(pvNode), newDepth, ply+1, -beta, -alpha)
		} else {
			// Late Move Reductions
			r := 1
			if depth >= 3 && movesMade >= 2+b2i(pvNode) && (isQuiet || !winning) {
				r = w.eng.lm.lmr(depth, movesMade)
				if !pvNode {
					r++
				}
				if isQuiet {
					// Quiet and continuation histories together span
					// three tables' worth of range.
					r -= util.Clamp(histScore/MaxHistory, -2, 2)
					if m == killers[0] || m == killers[1] {
						r--
					}
				}
				r = util.Clamp(r, 1, max(depth-1, 1))
			}

			score = -w.search(nodeNonPV, newDepth+1-r, ply+1, -alpha-1, -alpha)
			if score > alpha && r > 1 {
				score = -w.search(nodeNonPV, newDepth, ply+1, -alpha-1, -alpha)
			}
			if pvNode && score > alpha && score < beta {
				score = -w.search(nodePV, newDepth, ply+1, -beta, -alpha)
			}
		}

		w.unmakeMove(ply)
		if ext >= 2 {
			st.doubleExt--
		}
		if w.stopped {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m
			if score > alpha {
				alpha = score
				w.pv.update(ply, m)
			}
			// Beta cutoff
			if alpha >= beta {
				break
			}
		}
	}

	// Checkmate or stalemate, or every move excluded
	if movesMade == 0 {
		switch {
		case excluded != board.NoMove:
			return alpha
		case inCheck:
			return MatedIn(ply)
		}
		return 0
	}

	// Stay within the tablebase bounds found above
	bestScore = util.Clamp(bestScore, tbMin, tbMax)

	bound := BoundUpper
	switch {
	case bestScore >= beta:
		bound = BoundLower
	case bestScore > originalAlpha:
		bound = BoundExact
	}

	if bound == BoundLower {
		w.updateHistories(ply, depth, bestMove, quiets.Slice(), tacticals.Slice(), conts)
	}

	// Secondary root lines do not describe the position as a whole.
	if excluded == board.NoMove && !(root && w.pvIdx > 0) {
		w.eng.tt.Store(key, ply, bestMove, bestScore, rawEval, bound, depth)

		// Learn the eval error only when the bound says which way it went
		if !inCheck && !w.pos.IsTactical(bestMove) && !IsDecisive(bestScore) &&
			!(bound == BoundLower && bestScore <= staticEval) &&
			!(bound == BoundUpper && bestScore >= staticEval) {
			w.corr.Update(w.pos, bestScore, rawEval, depth)
		}
	}

	st.bestMove = bestMove
	return bestScore
}

// singular searches the node at reduced depth without m and returns the
// zero-window score against rBeta. The exclusion is lifted on every exit.
func (w *Worker) singular(m board.Move, ply, depth, rBeta int) int {
	w.stack[ply].excluded = m
	defer func() { w.stack[ply].excluded = board.NoMove }()
	return w.search(nodeNonPV, depth, ply, rBeta-1, rBeta)
}

// updateHistories rewards the move that failed high and penalizes the
// ones tried before it.
func (w *Worker) updateHistories(ply, depth int, best board.Move, quiets, tacticals []board.Move, conts [2]*continuation) {
	bonus := w.eng.params.historyBonus(depth)
	if w.pos.IsTactical(best) {
		w.hist.updateCaptures(w.pos, best, tacticals, bonus)
		return
	}
	w.hist.insertKiller(ply, best)
	if ply > 0 {
		prev := &w.stack[ply-1]
		w.hist.setCounterMove(prev.moved, prev.move, best)
	}
	w.hist.updateQuiets(w.pos, best, quiets, conts, bonus)
	w.hist.updateCaptures(w.pos, board.NoMove, tacticals, bonus)
}

// probeTablebase consults the prober for small positions. Below
// TBProbeDepth only positions with fewer pieces than the prober's maximum
// and a fresh halfmove clock are probed. Failures are misses. The stop
// conditions are polled after every probe.
func (w *Worker) probeTablebase(depth, ply int) (int, Bound, bool) {
	prober := w.eng.prober
	if !prober.Available() {
		return 0, BoundNone, false
	}
	pieces := w.pos.PieceCount()
	if pieces > prober.MaxPieces() || w.pos.Castling() != 0 {
		return 0, BoundNone, false
	}
	if depth < w.eng.params.TBProbeDepth &&
		(pieces == prober.MaxPieces() || w.pos.HalfMoveClock() != 0) {
		return 0, BoundNone, false
	}

	res, err := prober.ProbeWDL(tablebase.NewQuery(w.pos))
	w.checkup()
	if err != nil {
		if !errors.Is(err, tablebase.ErrUnavailable) {
			w.eng.log.Debug().Err(err).Msg("tablebase probe failed")
		}
		return 0, BoundNone, false
	}
	w.tbHits.Add(1)

	switch res.WDL {
	case tablebase.WDLWin:
		return TBWinScore - ply, BoundLower, true
	case tablebase.WDLLoss:
		return -TBWinScore + ply, BoundUpper, true
	}
	return 0, BoundExact, true
}

// qsearch resolves captures until the position is quiet.
func (w *Worker) qsearch(pvNode bool, ply, alpha, beta int) int {
	w.pv.clear(ply)
	if w.nodes.Add(1)&1023 == 0 && w.checkup() {
		return 0
	}
	w.seldepth = max(w.seldepth, ply)

	if w.pos.IsDraw() {
		return w.drawScore()
	}
	inCheck := w.pos.InCheck()
	if ply >= MaxPly-1 {
		if inCheck {
			return 0
		}
		return w.evaluate()
	}

	key := w.pos.Hash()
	doNotCut := pvNode || inCheck || w.pos.HalfMoveClock() >= 80
	ttMove := board.NoMove
	r := w.eng.tt.Probe(key, ply, alpha, beta, 0, doNotCut)
	switch r.Kind {
	case ProbeCutoff:
		return r.Score
	case ProbeHit:
		ttMove = r.Entry.Move
	}

	// Stand pat: the side to move may decline every capture
	rawEval, standPat := -Infinity, -Infinity
	if !inCheck {
		rawEval = w.evaluate()
		standPat = w.corrected(rawEval)
		if standPat >= beta {
			return standPat
		}
	}

	originalAlpha := alpha
	alpha = max(alpha, standPat)
	bestScore := standPat
	bestMove := board.NoMove
	movesMade := 0

	// In check every evasion is searched, otherwise captures that do not
	// lose material
	var mp MovePicker
	if inCheck {
		mp.init(w.pos, w.hist, ttMove, [2]board.Move{}, board.NoMove, w.continuations(ply), 0)
	} else {
		mp.initCaptures(w.pos, w.hist, ttMove, w.eng.params.QSearchSEEThreshold)
	}

	for m := mp.Next(); m != board.NoMove; m = mp.Next() {
		w.makeMove(ply, m)
		movesMade++
		score := -w.qsearch(pvNode, ply+1, -beta, -alpha)
		w.unmakeMove(ply)
		if w.stopped {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = m
			if score > alpha {
				alpha = score
				w.pv.update(ply, m)
			}
			if alpha >= beta {
				break
			}
		}
	}

	if movesMade == 0 && inCheck {
		return MatedIn(ply)
	}

	bound := BoundUpper
	switch {
	case bestScore >= beta:
		bound = BoundLower
	case bestScore > originalAlpha:
		bound = BoundExact
	}
	w.eng.tt.Store(key, ply, bestMove, bestScore, rawEval, bound, 0)

	return bestScore
}

// iterate is the iterative deepening driver. Helpers start at staggered
// depths so they fill the table ahead of the main worker. Each depth
// searches lines principal variations, every one excluding the root moves
// of the lines before it.
func (w *Worker) iterate(maxDepth, lines int) {
	start := 1 + w.id%4
	if start > maxDepth {
		start = 1
	}

	for depth := start; depth <= maxDepth; depth++ {
		// A stop raised before the search began ends it here.
		if w.checkup() {
			return
		}
		w.rootDepth = depth
		w.cur = w.cur[:0]

		for w.pvIdx = 0; w.pvIdx < lines; w.pvIdx++ {
			w.seldepth = 0
			prev, ok := 0, false
			if w.pvIdx < len(w.lines) {
				prev, ok = w.lines[w.pvIdx].score, true
			}
			it, done := w.aspirate(depth, prev, ok)
			if !done {
				return
			}
			w.cur = append(w.cur, it)
			if w.pvIdx == 0 {
				w.completed = it
			}
		}

		// Later lines can outscore earlier ones after a re-search.
		slices.SortStableFunc(w.cur, func(a, b iteration) int { return cmp.Compare(b.score, a.score) })
		w.lines = append(w.lines[:0], w.cur...)
		w.completed = w.lines[0]

		if w.id != 0 {
			continue
		}
		w.eng.reportIteration(w)
		if w.eng.tm.ShouldStopIteration() {
			return
		}
	}
}

// aspirate searches the root to depth in a window around the previous
// score of the line, widening it until the score falls inside. It reports
// false when the search was stopped.
func (w *Worker) aspirate(depth, prev int, hasPrev bool) (iteration, bool) {
	p := &w.eng.params
	delta := p.AspirationWindow
	alpha, beta := -Infinity, Infinity
	if depth >= p.AspirationMinDepth && hasPrev && !IsDecisive(prev) {
		alpha = max(prev-delta, -Infinity)
		beta = min(prev+delta, Infinity)
	}

	for {
		score := w.search(nodeRoot, depth, 0, alpha, beta)
		if w.stopped {
			return iteration{}, false
		}

		switch {
		case score <= alpha:
			// Fail low: pull beta in as well, the best move may change.
			beta = (alpha + beta) / 2
			alpha = max(score-delta, -Infinity)
		case score >= beta:
			beta = min(score+delta, Infinity)
		default:
			return iteration{
				depth:    depth,
				seldepth: w.seldepth,
				score:    score,
				pv:       w.pv.line(0),
			}, true
		}
		delta += delta
		if IsDecisive(score) {
			alpha, beta = -Infinity, Infinity
		}
	}
}

// rootExcluded reports whether m heads a line already found at this
// depth.
func (w *Worker) rootExcluded(m board.Move) bool {
	for _, it := range w.cur[:w.pvIdx] {
		if len(it.pv) > 0 && it.pv[0] == m {
			return true
		}
	}
	return false
}

func childKind(pvNode bool) nodeKind {
	if pvNode {
		return nodePV
	}
	return nodeNonPV
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
