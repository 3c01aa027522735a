package board

import (
	"errors"
	"fmt"
)

// ErrIllegalMove is returned when a move string does not name a legal
// move in the position.
var ErrIllegalMove = errors.New("illegal move")

const allSquares = ^Bitboard(0)

// GenerateNoisy appends pseudo-legal captures, en passant and all
// promotions.
func (p *Position) GenerateNoisy(ml *MoveList) { p.generate(ml, true, false, allSquares) }

// GenerateQuiets appends pseudo-legal non-capturing, non-promoting moves,
// castling included.
func (p *Position) GenerateQuiets(ml *MoveList) { p.generate(ml, false, true, allSquares) }

// GeneratePseudo appends every pseudo-legal move.
func (p *Position) GeneratePseudo(ml *MoveList) { p.generate(ml, true, true, allSquares) }

// LegalMoves appends only legal moves.
func (p *Position) LegalMoves(ml *MoveList) {
	var pseudo MoveList
	p.GeneratePseudo(&pseudo)
	for _, m := range pseudo.Slice() {
		if p.IsLegal(m) {
			ml.Add(m)
		}
	}
}

func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.GeneratePseudo(&ml)
	for _, m := range ml.Slice() {
		if p.IsLegal(m) {
			return true
		}
	}
	return false
}

func (p *Position) generate(ml *MoveList, noisy, quiet bool, origins Bitboard) {
	us, them := p.side, p.side.Other()
	occ := p.Occupied()
	var targets Bitboard
	if noisy {
		targets |= p.colors[them]
	}
	if quiet {
		targets |= ^occ
	}

	p.generatePawns(ml, noisy, quiet, origins)

	for pt := Knight; pt <= King; pt++ {
		for from := p.pieces[us][pt] & origins; from != 0; {
			sq := from.Pop()
			var att Bitboard
			switch pt {
			case Knight:
				att = knightAttacks[sq]
			case Bishop:
				att = BishopAttacks(sq, occ)
			case Rook:
				att = RookAttacks(sq, occ)
			case Queen:
				att = QueenAttacks(sq, occ)
			case King:
				att = kingAttacks[sq]
			}
			for to := att & targets; to != 0; {
				ml.Add(NewMove(sq, to.Pop()))
			}
		}
	}

	if quiet && p.checkers == 0 && p.pieces[us][King]&origins != 0 {
		p.generateCastles(ml)
	}
}

func (p *Position) generatePawns(ml *MoveList, noisy, quiet bool, origins Bitboard) {
	us, them := p.side, p.side.Other()
	pawns := p.pieces[us][Pawn] & origins
	empty := ^p.Occupied()
	promoRank, doubleRank, back := Rank8, Rank3, -8
	if us == Black {
		promoRank, doubleRank, back = Rank1, Rank6, 8
	}

	single := pawns.forward(us) & empty
	if quiet {
		for to := single &^ promoRank; to != 0; {
			sq := to.Pop()
			ml.Add(NewMove(Square(int(sq)+back), sq))
		}
		for to := (single & doubleRank).forward(us) & empty; to != 0; {
			sq := to.Pop()
			ml.Add(NewMove(Square(int(sq)+2*back), sq))
		}
	}
	if !noisy {
		return
	}
	for to := single & promoRank; to != 0; {
		sq := to.Pop()
		addPromotions(ml, Square(int(sq)+back), sq)
	}
	for from := pawns; from != 0; {
		sq := from.Pop()
		for to := pawnAttacks[us][sq] & p.colors[them]; to != 0; {
			dst := to.Pop()
			if promoRank.Has(dst) {
				addPromotions(ml, sq, dst)
			} else {
				ml.Add(NewMove(sq, dst))
			}
		}
		if p.ep != NoSquare && pawnAttacks[us][sq].Has(p.ep) {
			ml.Add(newEnPassant(sq, p.ep))
		}
	}
}

func addPromotions(ml *MoveList, from, to Square) {
	for pt := Queen; pt >= Knight; pt-- {
		ml.Add(NewPromotion(from, to, pt))
	}
}

type castle struct {
	right          CastlingRights
	king, to       Square
	empty, transit Bitboard
}

var castles = [2][2]castle{
	{
		{WhiteOO, E1, G1, F1.BB() | G1.BB(), F1.BB() | G1.BB()},
		{WhiteOOO, E1, C1, B1.BB() | C1.BB() | D1.BB(), C1.BB() | D1.BB()},
	},
	{
		{BlackOO, E8, G8, F8.BB() | G8.BB(), F8.BB() | G8.BB()},
		{BlackOOO, E8, C8, B8.BB() | C8.BB() | D8.BB(), C8.BB() | D8.BB()},
	},
}

func (p *Position) generateCastles(ml *MoveList) {
	occ := p.Occupied()
	them := p.side.Other()
	for _, c := range castles[p.side] {
		if p.castling&c.right == 0 || occ&c.empty != 0 {
			continue
		}
		safe := true
		for t := c.transit; t != 0 && safe; {
			safe = !p.Attacked(t.Pop(), them, occ)
		}
		if safe {
			ml.Add(newCastle(c.king, c.to))
		}
	}
}

// IsLegal checks a pseudo-legal move against checks and pins.
func (p *Position) IsLegal(m Move) bool {
	us, them := p.side, p.side.Other()
	from, to := m.From(), m.To()
	ksq := p.King(us)
	occ := p.Occupied()

	if m.IsEnPassant() {
		capSq := NewSquare(to.File(), from.Rank())
		after := occ ^ from.BB() ^ to.BB() ^ capSq.BB()
		return p.AttackersTo(ksq, after)&p.colors[them]&^capSq.BB() == 0
	}
	if from == ksq {
		if m.IsCastle() {
			return true
		}
		return !p.Attacked(to, them, occ^from.BB())
	}
	if p.checkers != 0 {
		if p.checkers.Many() {
			return false
		}
		chk := p.checkers.First()
		if !(Between(ksq, chk) | chk.BB()).Has(to) {
			return false
		}
	}
	return !p.pinned.Has(from) || Line(ksq, from).Has(to)
}

// IsPseudoLegal validates a move from an untrusted source such as the
// transposition table or a killer slot.
func (p *Position) IsPseudoLegal(m Move) bool {
	if m == NoMove || m == NullMove {
		return false
	}
	pc := p.squares[m.From()]
	if pc == NoPiece || pc.Color() != p.side {
		return false
	}
	var ml MoveList
	p.generate(&ml, true, true, m.From().BB())
	return ml.Contains(m)
}

// IsTactical reports captures and promotions.
func (p *Position) IsTactical(m Move) bool {
	return m.IsPromotion() || m.IsEnPassant() || (!m.IsCastle() && p.squares[m.To()] != NoPiece)
}

// IsCapture reports whether m removes an enemy piece.
func (p *Position) IsCapture(m Move) bool {
	return m.IsEnPassant() || (!m.IsCastle() && p.squares[m.To()] != NoPiece)
}

// CapturedType returns the type of the piece m captures, or NoPieceType.
func (p *Position) CapturedType(m Move) PieceType {
	if m.IsEnPassant() {
		return Pawn
	}
	if m.IsCastle() {
		return NoPieceType
	}
	return p.squares[m.To()].Type()
}

// ParseUCIMove resolves a UCI move string against the legal moves.
func (p *Position) ParseUCIMove(s string) (Move, error) {
	var ml MoveList
	p.LegalMoves(&ml)
	for _, m := range ml.Slice() {
		if m.String() == s {
			return m, nil
		}
	}
	return NoMove, fmt.Errorf("%w: %q in %s", ErrIllegalMove, s, p.FEN())
}
