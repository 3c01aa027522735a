package board

// Undo carries the irreversible state a move destroys.
type Undo struct {
	captured Piece
	castling CastlingRights
	ep       Square
	halfmove int
	hash     uint64
	pawnKey  uint64
	checkers Bitboard
	pinned   Bitboard
}

// Captured returns the piece removed by the move, or NoPiece.
func (u *Undo) Captured() Piece { return u.captured }

func (p *Position) snapshot() Undo {
	return Undo{
		captured: NoPiece,
		castling: p.castling,
		ep:       p.ep,
		halfmove: p.halfmove,
		hash:     p.hash,
		pawnKey:  p.pawnKey,
		checkers: p.checkers,
		pinned:   p.pinned,
	}
}

func (p *Position) restore(u *Undo) {
	p.castling = u.castling
	p.ep = u.ep
	p.halfmove = u.halfmove
	p.hash = u.hash
	p.pawnKey = u.pawnKey
	p.checkers = u.checkers
	p.pinned = u.pinned
	p.history = p.history[:len(p.history)-1]
}

// CastleRook returns the rook squares for a castling king move landing on kingTo.
func CastleRook(kingTo Square) (from, to Square) {
	if kingTo.File() == 6 {
		return kingTo + 1, kingTo - 1
	}
	return kingTo - 2, kingTo + 1
}

// MakeMove plays a legal move. The returned Undo must be handed back to
// UnmakeMove in LIFO order.
func (p *Position) MakeMove(m Move) Undo {
	u := p.snapshot()
	p.history = append(p.history, p.hash)

	us := p.side
	from, to := m.From(), m.To()

	if p.ep != NoSquare {
		p.hash ^= zobristEP[p.ep.File()]
		p.ep = NoSquare
	}
	p.hash ^= zobristCastling[p.castling]
	p.halfmove++

	switch {
	case m.IsCastle():
		p.relocate(from, to)
		rf, rt := CastleRook(to)
		p.relocate(rf, rt)
	case m.IsEnPassant():
		u.captured = p.remove(NewSquare(to.File(), from.Rank()))
		p.relocate(from, to)
		p.halfmove = 0
	default:
		if p.squares[to] != NoPiece {
			u.captured = p.remove(to)
			p.halfmove = 0
		}
		p.relocate(from, to)
		if p.squares[to].Type() == Pawn {
			p.halfmove = 0
			if m.IsPromotion() {
				p.remove(to)
				p.put(MakePiece(us, m.Promotion()), to)
			} else if d := int(to) - int(from); d == 16 || d == -16 {
				p.ep = (from + to) / 2
				p.hash ^= zobristEP[p.ep.File()]
			}
		}
	}

	p.castling &= castleMask[from] & castleMask[to]
	p.hash ^= zobristCastling[p.castling]
	if us == Black {
		p.fullmove++
	}
	p.side = us.Other()
	p.hash ^= zobristSide
	p.updateState()
	return u
}

// UnmakeMove reverts m, restoring the exact prior state and hash.
func (p *Position) UnmakeMove(m Move, u Undo) {
	p.side = p.side.Other()
	us := p.side
	from, to := m.From(), m.To()

	switch {
	case m.IsCastle():
		rf, rt := CastleRook(to)
		p.relocate(rt, rf)
		p.relocate(to, from)
	case m.IsEnPassant():
		p.relocate(to, from)
		p.put(u.captured, NewSquare(to.File(), from.Rank()))
	default:
		if m.IsPromotion() {
			p.remove(to)
			p.put(MakePiece(us, Pawn), to)
		}
		p.relocate(to, from)
		if u.captured != NoPiece {
			p.put(u.captured, to)
		}
	}
	if us == Black {
		p.fullmove--
	}
	p.restore(&u)
}

// MakeNullMove passes the turn. Not valid while in check.
func (p *Position) MakeNullMove() Undo {
	u := p.snapshot()
	p.history = append(p.history, p.hash)
	if p.ep != NoSquare {
		p.hash ^= zobristEP[p.ep.File()]
		p.ep = NoSquare
	}
	p.halfmove++
	p.side = p.side.Other()
	p.hash ^= zobristSide
	p.updateState()
	return u
}

func (p *Position) UnmakeNullMove(u Undo) {
	p.side = p.side.Other()
	p.restore(&u)
}
