package board

// Move packs a move into 16 bits:
//
//	bits 0-5   from
//	bits 6-11  to
//	bits 12-13 promotion piece, Knight..Queen
//	bits 14-15 kind
type Move uint16

const (
	kindNormal uint16 = iota << 14
	kindPromotion
	kindEnPassant
	kindCastle
)

const (
	NoMove Move = 0
	// NullMove marks a passed turn in the search stack.
	NullMove Move = 65
)

func NewMove(from, to Square) Move { return Move(from) | Move(to)<<6 }

func NewPromotion(from, to Square, pt PieceType) Move {
	return Move(from) | Move(to)<<6 | Move(pt-Knight)<<12 | Move(kindPromotion)
}

func newEnPassant(from, to Square) Move { return Move(from) | Move(to)<<6 | Move(kindEnPassant) }

// newCastle encodes castling as the king's two-square move.
func newCastle(from, to Square) Move { return Move(from) | Move(to)<<6 | Move(kindCastle) }

func (m Move) From() Square { return Square(m & 63) }
func (m Move) To() Square   { return Square(m >> 6 & 63) }
func (m Move) kind() uint16 { return uint16(m) & 0xC000 }

func (m Move) IsPromotion() bool { return m.kind() == kindPromotion }
func (m Move) IsEnPassant() bool { return m.kind() == kindEnPassant }
func (m Move) IsCastle() bool    { return m.kind() == kindCastle }

// Promotion returns the promoted piece type, or NoPieceType.
func (m Move) Promotion() PieceType {
	if !m.IsPromotion() {
		return NoPieceType
	}
	return PieceType(m>>12&3) + Knight
}

// String renders the move in UCI long algebraic notation.
func (m Move) String() string {
	switch m {
	case NoMove, NullMove:
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(" nbrq"[m.Promotion()])
	}
	return s
}

// MoveList is a fixed-capacity move buffer; no position has more than 218
// legal moves.
type MoveList struct {
	Moves [256]Move
	N     int
}

func (ml *MoveList) Add(m Move) {
	ml.Moves[ml.N] = m
	ml.N++
}

func (ml *MoveList) Slice() []Move { return ml.Moves[:ml.N] }

func (ml *MoveList) Contains(m Move) bool {
	for _, x := range ml.Moves[:ml.N] {
		if x == m {
			return true
		}
	}
	return false
}
