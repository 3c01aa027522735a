package tablebase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultLichessURL is the public endpoint for standard chess tables.
const DefaultLichessURL = "https://tablebase.lichess.ovh/standard"

// LichessProber uses the Lichess tablebase API for online lookups.
// It needs network access and is rate limited upstream, so it should sit
// behind a CachedProber.
type LichessProber struct {
	client    *http.Client
	baseURL   string
	maxPieces int
}

// NewLichessProber creates a new Lichess-based tablebase prober.
func NewLichessProber() *LichessProber {
	return NewLichessProberURL(DefaultLichessURL)
}

// NewLichessProberURL points the prober at a different endpoint.
func NewLichessProberURL(baseURL string) *LichessProber {
	return &LichessProber{
		client:    &http.Client{Timeout: 5 * time.Second},
		baseURL:   baseURL,
		maxPieces: 7,
	}
}

type lichessResponse struct {
	Category string `json:"category"` // "win", "draw", "maybe-win", "maybe-draw", "loss", ...
	DTZ      *int   `json:"dtz"`
}

func (lp *LichessProber) ProbeWDL(q Query) (Result, error) {
	if q.Castling || q.PieceCount() > lp.maxPieces {
		return Result{}, ErrUnavailable
	}

	resp, err := lp.client.Get(lp.baseURL + "?fen=" + url.QueryEscape(q.FEN()))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: lichess returned %s", ErrUnavailable, resp.Status)
	}

	var body lichessResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode lichess response: %w", err)
	}
	wdl, ok := categoryToWDL(body.Category)
	if !ok {
		return Result{}, fmt.Errorf("%w: category %q", ErrUnavailable, body.Category)
	}
	r := Result{WDL: wdl}
	if body.DTZ != nil {
		r.DTZ = *body.DTZ
	}
	return r, nil
}

func (lp *LichessProber) MaxPieces() int { return lp.maxPieces }

// Available is always true; failures surface per probe.
func (lp *LichessProber) Available() bool { return true }

func categoryToWDL(category string) (WDL, bool) {
	switch category {
	case "win":
		return WDLWin, true
	case "cursed-win", "maybe-win":
		return WDLCursedWin, true
	case "draw":
		return WDLDraw, true
	case "blessed-loss", "maybe-loss":
		return WDLBlessedLoss, true
	case "loss":
		return WDLLoss, true
	}
	return WDLDraw, false
}
