package engine

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned for search parameters the search cannot run
// with.
var ErrInvalidParams = errors.New("invalid search parameters")

// SearchParams holds every margin, reduction and threshold of the search.
// Depths are in whole plies, margins in centipawns.
type SearchParams struct {
	// Aspiration windows
	AspirationWindow   int
	AspirationMinDepth int

	// Reverse futility pruning
	RFPMargin          int
	RFPImprovingMargin int
	RFPDepth           int

	// Razoring: eval < alpha - RazorBase - RazorMul*depth^2
	RazorBase int
	RazorMul  int

	// Null move pruning
	NMPImprovingMargin   int
	NMPBaseReduction     int
	NMPVerificationDepth int

	// Probcut
	ProbcutMargin          int
	ProbcutImprovingMargin int
	ProbcutMinDepth        int
	ProbcutReduction       int

	// Move loop pruning
	LMPDepth          int
	FutilityBase      int
	FutilityMul       int
	FutilityDepth     int
	SEEQuietMargin    int // per ply
	SEETacticalMargin int // per ply squared
	SEEDepth          int

	// Depth adjustments
	TTReductionDepth    int
	IIDDepth            int
	SingularDepth       int
	DoubleExtMargin     int
	MaxDoubleExtensions int

	// Late move reductions: LMRBase + ln(depth)*ln(moves)/LMRDivision
	LMRBase     float64
	LMRDivision float64

	// History gravity bonus: min(HistoryBonusMul*depth, HistoryBonusMax)
	HistoryBonusMul int
	HistoryBonusMax int

	// Quiescence captures must win at least this much exchange material.
	QSearchSEEThreshold int

	// Tablebases are probed when the halfmove clock was just reset or the
	// remaining depth reaches TBProbeDepth.
	TBProbeDepth int
}

// DefaultSearchParams returns the tuned defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		AspirationWindow:   20,
		AspirationMinDepth: 5,

		RFPMargin:          70,
		RFPImprovingMargin: 57,
		RFPDepth:           8,

		RazorBase: 394,
		RazorMul:  290,

		NMPImprovingMargin:   76,
		NMPBaseReduction:     3,
		NMPVerificationDepth: 12,

		ProbcutMargin:          200,
		ProbcutImprovingMargin: 50,
		ProbcutMinDepth:        5,
		ProbcutReduction:       4,

		LMPDepth:          8,
		FutilityBase:      76,
		FutilityMul:       90,
		FutilityDepth:     6,
		SEEQuietMargin:    -59,
		SEETacticalMargin: -19,
		SEEDepth:          9,

		TTReductionDepth:    4,
		IIDDepth:            4,
		SingularDepth:       8,
		DoubleExtMargin:     15,
		MaxDoubleExtensions: 6,

		LMRBase:     0.77,
		LMRDivision: 2.36,

		HistoryBonusMul: 300,
		HistoryBonusMax: 2500,

		QSearchSEEThreshold: 0,

		TBProbeDepth: 1,
	}
}

// Validate rejects parameters that would break the search.
func (p SearchParams) Validate() error {
	switch {
	case p.LMRDivision <= 0:
		return fmt.Errorf("%w: LMRDivision must be positive", ErrInvalidParams)
	case p.AspirationWindow <= 0:
		return fmt.Errorf("%w: AspirationWindow must be positive", ErrInvalidParams)
	case p.NMPBaseReduction < 1:
		return fmt.Errorf("%w: NMPBaseReduction must be at least 1", ErrInvalidParams)
	case p.HistoryBonusMax <= 0 || p.HistoryBonusMax > MaxHistory:
		return fmt.Errorf("%w: HistoryBonusMax must be in (0, %d]", ErrInvalidParams, MaxHistory)
	}
	return nil
}

func (p SearchParams) rfpMargin(depth int, improving bool) int {
	m := p.RFPMargin * depth
	if improving {
		m -= p.RFPImprovingMargin
	}
	return m
}

func (p SearchParams) historyBonus(depth int) int {
	return min(p.HistoryBonusMul*depth, p.HistoryBonusMax)
}

// lmTables are the late move reduction and pruning tables derived from
// the parameters.
type lmTables struct {
	reduction [64][64]int
	lmp       [2][12]int // [improving][depth]
}

func newLMTables(p SearchParams) *lmTables {
	t := &lmTables{}
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			t.reduction[d][m] = int(p.LMRBase + math.Log(float64(d))*math.Log(float64(m))/p.LMRDivision)
		}
	}
	for d := 1; d < 12; d++ {
		fd := float64(d)
		t.lmp[0][d] = int(2.5 + 2*fd*fd/4.5)
		t.lmp[1][d] = int(4 + 4*fd*fd/4.5)
	}
	return t
}

func (t *lmTables) lmr(depth, moves int) int {
	return t.reduction[min(depth, 63)][min(moves, 63)]
}

func (t *lmTables) lmpLimit(depth int, improving bool) int {
	i := 0
	if improving {
		i = 1
	}
	return t.lmp[i][min(depth, 11)]
}
