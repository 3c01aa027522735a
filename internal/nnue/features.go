package nnue

import (
	"fmt"

	"github.com/hailam/chesscore/internal/board"
)

// Feature is one (piece, square) input of the network.
type Feature struct {
	Piece  board.Piece
	Square board.Square
}

// FeatureIndex returns the input index of a feature seen from perspective,
// whose king stands on ksq.
func FeatureIndex(perspective board.Color, ksq board.Square, f Feature) int {
	side := 0
	if f.Piece.Color() != perspective {
		side = 1
	}
	sq := f.Square.Relative(perspective)
	if mirrored(ksq) {
		sq = sq.FlipFile()
	}
	return KingBucket(perspective, ksq)*InputSize + (side*6+int(f.Piece.Type()))*64 + int(sq)
}

// UpdateKind tags the shape of a FeatureUpdate.
type UpdateKind uint8

const (
	// Null is a passed turn; the accumulator carries over unchanged.
	Null UpdateKind = iota
	// Quiet moves one piece: one add, one sub.
	Quiet
	// Capture moves one piece and removes another: one add, two subs.
	Capture
	// Castle moves king and rook: two adds, two subs.
	Castle
)

func (k UpdateKind) String() string {
	switch k {
	case Null:
		return "null"
	case Quiet:
		return "quiet"
	case Capture:
		return "capture"
	case Castle:
		return "castle"
	}
	return fmt.Sprintf("UpdateKind(%d)", uint8(k))
}

// FeatureUpdate records the inputs that change between a ply and its
// parent. Promotions are quiet or capture shaped: the pawn is subtracted
// and the promoted piece added.
type FeatureUpdate struct {
	Kind UpdateKind
	Add  [2]Feature
	Sub  [2]Feature
}

// NewFeatureUpdate classifies add/sub lists. Any shape other than quiet
// (1a1s), capture (1a2s) or castle (2a2s) is an internal invariant
// violation and panics.
func NewFeatureUpdate(adds, subs []Feature) FeatureUpdate {
	var u FeatureUpdate
	switch {
	case len(adds) == 1 && len(subs) == 1:
		u.Kind = Quiet
	case len(adds) == 1 && len(subs) == 2:
		u.Kind = Capture
	case len(adds) == 2 && len(subs) == 2:
		u.Kind = Castle
	default:
		panic(fmt.Sprintf("nnue: unsupported feature update shape %da%ds", len(adds), len(subs)))
	}
	copy(u.Add[:], adds)
	copy(u.Sub[:], subs)
	return u
}

// UpdateForMove derives the feature diff of m. pos is the position after
// m was made and captured the piece it removed, if any.
func UpdateForMove(pos *board.Position, m board.Move, captured board.Piece) FeatureUpdate {
	us := pos.SideToMove().Other()
	from, to := m.From(), m.To()
	moved := pos.PieceOn(to)

	if m.IsCastle() {
		rf, rt := board.CastleRook(to)
		rook := board.MakePiece(us, board.Rook)
		return NewFeatureUpdate(
			[]Feature{{moved, to}, {rook, rt}},
			[]Feature{{moved, from}, {rook, rf}},
		)
	}

	origin := moved
	if m.IsPromotion() {
		origin = board.MakePiece(us, board.Pawn)
	}
	if captured == board.NoPiece {
		return NewFeatureUpdate([]Feature{{moved, to}}, []Feature{{origin, from}})
	}

	capSq := to
	if m.IsEnPassant() {
		capSq = board.NewSquare(to.File(), from.Rank())
	}
	return NewFeatureUpdate(
		[]Feature{{moved, to}},
		[]Feature{{origin, from}, {captured, capSq}},
	)
}

// activeFeatures lists every piece on the board as a feature.
func activeFeatures(pos *board.Position) []Feature {
	out := make([]Feature, 0, 32)
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			for bb := pos.Pieces(c, pt); bb != 0; {
				out = append(out, Feature{board.MakePiece(c, pt), bb.Pop()})
			}
		}
	}
	return out
}
