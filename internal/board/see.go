package board

// SeeGE reports whether the static exchange on m's destination gains at
// least threshold for the side to move. Swap-list walk, least valuable
// attacker first, x-rays revealed as pieces leave.
func (p *Position) SeeGE(m Move, threshold int) bool {
	if m.IsCastle() {
		return threshold <= 0
	}
	from, to := m.From(), m.To()

	next := p.squares[from].Type()
	balance := SEEValue[p.CapturedType(m)] - threshold
	if m.IsPromotion() {
		next = m.Promotion()
		balance += SEEValue[next] - SEEValue[Pawn]
	}
	if balance < 0 {
		return false
	}
	balance -= SEEValue[next]
	if balance >= 0 {
		return true
	}

	occ := p.Occupied() &^ from.BB() | to.BB()
	if m.IsEnPassant() {
		occ &^= NewSquare(to.File(), from.Rank()).BB()
	}
	bishops := p.pieces[White][Bishop] | p.pieces[Black][Bishop] | p.pieces[White][Queen] | p.pieces[Black][Queen]
	rooks := p.pieces[White][Rook] | p.pieces[Black][Rook] | p.pieces[White][Queen] | p.pieces[Black][Queen]
	attackers := p.AttackersTo(to, occ) & occ

	side := p.side.Other()
	for {
		mine := attackers & p.colors[side]
		if mine == 0 {
			break
		}
		var pt PieceType
		for pt = Pawn; pt < King; pt++ {
			if mine&p.pieces[side][pt] != 0 {
				break
			}
		}
		occ &^= (mine & p.pieces[side][pt]).First().BB()
		if pt == Pawn || pt == Bishop || pt == Queen {
			attackers |= BishopAttacks(to, occ) & bishops
		}
		if pt == Rook || pt == Queen {
			attackers |= RookAttacks(to, occ) & rooks
		}
		attackers &= occ

		side = side.Other()
		balance = -balance - 1 - SEEValue[pt]
		if balance >= 0 {
			// A king may not recapture into a defended square.
			if pt == King && attackers&p.colors[side] != 0 {
				side = side.Other()
			}
			break
		}
	}
	return side != p.side
}
