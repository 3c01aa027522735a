// Package tablebase defines the narrow contract through which the search
// consults endgame tablebases, plus a caching wrapper and an online prober.
package tablebase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hailam/chesscore/internal/board"
)

// ErrUnavailable reports that a position cannot be answered: too many
// pieces, castling rights, no tables or no network. Callers fall back to
// search.
var ErrUnavailable = errors.New("tablebase unavailable")

// WDL represents Win/Draw/Loss result from the side to move's view.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // Loss, but the 50-move rule saves it
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // Win, but the 50-move rule spoils it
	WDLWin         WDL = 2
)

func (w WDL) String() string {
	switch w {
	case WDLLoss:
		return "loss"
	case WDLBlessedLoss:
		return "blessed-loss"
	case WDLDraw:
		return "draw"
	case WDLCursedWin:
		return "cursed-win"
	case WDLWin:
		return "win"
	}
	return fmt.Sprintf("WDL(%d)", int(w))
}

// Result of a successful probe. DTZ is the distance to the next zeroing
// move when the prober knows it, otherwise 0.
type Result struct {
	WDL WDL
	DTZ int
}

// Query is the bitboard decomposition of a position handed to a prober.
type Query struct {
	Pieces    [2][6]board.Bitboard
	Side      board.Color
	EnPassant board.Square
	HalfMove  int
	Castling  bool
	Key       uint64 // position hash, used only for caching
}

// NewQuery decomposes pos.
func NewQuery(pos *board.Position) Query {
	q := Query{
		Side:      pos.SideToMove(),
		EnPassant: pos.EnPassant(),
		HalfMove:  pos.HalfMoveClock(),
		Castling:  pos.Castling() != 0,
		Key:       pos.Hash(),
	}
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			q.Pieces[c][pt] = pos.Pieces(c, pt)
		}
	}
	return q
}

// PieceCount counts every piece, kings included.
func (q *Query) PieceCount() int {
	n := 0
	for c := range q.Pieces {
		for _, bb := range q.Pieces[c] {
			n += bb.Count()
		}
	}
	return n
}

// FEN renders the query; castling rights are never set for a probe.
func (q *Query) FEN() string {
	const chars = "PNBRQKpnbrqk"
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			sq := board.NewSquare(file, rank)
			ch := byte(0)
			for c := range q.Pieces {
				for pt, bb := range q.Pieces[c] {
					if bb.Has(sq) {
						ch = chars[c*6+pt]
					}
				}
			}
			if ch == 0 {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(ch)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	side := "w"
	if q.Side == board.Black {
		side = "b"
	}
	fmt.Fprintf(&sb, " %s - %s %d 1", side, q.EnPassant, q.HalfMove)
	return sb.String()
}

// Prober is the interface for tablebase probing. Implementations must be
// safe for concurrent use by several search workers.
type Prober interface {
	// ProbeWDL looks up a position. Any error, ErrUnavailable included,
	// means the search should carry on without tablebase information.
	ProbeWDL(q Query) (Result, error)

	// MaxPieces returns the maximum number of pieces supported.
	MaxPieces() int

	// Available returns true if tablebases are loaded and available.
	Available() bool
}

// NoopProber is a prober that always returns ErrUnavailable.
type NoopProber struct{}

func (NoopProber) ProbeWDL(Query) (Result, error) { return Result{}, ErrUnavailable }
func (NoopProber) MaxPieces() int                 { return 0 }
func (NoopProber) Available() bool                { return false }
