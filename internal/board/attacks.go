package board

var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard
	betweenBB     [64][64]Bitboard
	lineBB        [64][64]Bitboard
)

type magic struct {
	mask    Bitboard
	factor  uint64
	shift   uint8
	attacks []Bitboard
}

var (
	rookMagics   [64]magic
	bishopMagics [64]magic
)

var (
	rookDirs   = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func init() {
	for sq := A1; sq <= H8; sq++ {
		knightAttacks[sq] = leaper(sq, [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}})
		kingAttacks[sq] = leaper(sq, [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}})
		pawnAttacks[White][sq] = leaper(sq, [][2]int{{1, 1}, {-1, 1}})
		pawnAttacks[Black][sq] = leaper(sq, [][2]int{{1, -1}, {-1, -1}})
	}
	rng := prng{state: 0x5DEECE66D2B4C3A1}
	for sq := A1; sq <= H8; sq++ {
		initMagic(&rookMagics[sq], sq, rookDirs, &rng)
		initMagic(&bishopMagics[sq], sq, bishopDirs, &rng)
	}
	for a := A1; a <= H8; a++ {
		for _, dirs := range [2][4][2]int{rookDirs, bishopDirs} {
			full := slide(a, 0, dirs)
			for b := A1; b <= H8; b++ {
				if a == b || !full.Has(b) {
					continue
				}
				betweenBB[a][b] = slide(a, b.BB(), dirs) & slide(b, a.BB(), dirs)
				lineBB[a][b] = (full&slide(b, 0, dirs))|a.BB()|b.BB()
			}
		}
	}
}

func leaper(sq Square, deltas [][2]int) Bitboard {
	var bb Bitboard
	for _, d := range deltas {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		if f >= 0 && f < 8 && r >= 0 && r < 8 {
			bb |= NewSquare(f, r).BB()
		}
	}
	return bb
}

// slide walks each ray from sq until it leaves the board or hits a blocker.
func slide(sq Square, occ Bitboard, dirs [4][2]int) Bitboard {
	var bb Bitboard
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for f >= 0 && f < 8 && r >= 0 && r < 8 {
			s := NewSquare(f, r)
			bb |= s.BB()
			if occ.Has(s) {
				break
			}
			f, r = f+d[0], r+d[1]
		}
	}
	return bb
}

// relevantMask drops the last square of every ray, which never affects
// the attack set.
func relevantMask(sq Square, dirs [4][2]int) Bitboard {
	var bb Bitboard
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for {
			nf, nr := f+d[0], r+d[1]
			if nf < 0 || nf > 7 || nr < 0 || nr > 7 {
				break
			}
			bb |= NewSquare(f, r).BB()
			f, r = nf, nr
		}
	}
	return bb
}

func initMagic(m *magic, sq Square, dirs [4][2]int, rng *prng) {
	m.mask = relevantMask(sq, dirs)
	n := m.mask.Count()
	m.shift = uint8(64 - n)
	size := 1 << n

	occs := make([]Bitboard, size)
	refs := make([]Bitboard, size)
	// Carry-Rippler enumeration of every subset of the mask.
	var sub Bitboard
	for i := 0; i < size; i++ {
		occs[i] = sub
		refs[i] = slide(sq, sub, dirs)
		sub = (sub - m.mask) & m.mask
	}

	m.attacks = make([]Bitboard, size)
	epoch := make([]int, size)
	for attempt := 1; ; attempt++ {
		factor := rng.next() & rng.next() & rng.next()
		if Bitboard((uint64(m.mask)*factor)>>56).Count() < 6 {
			continue
		}
		ok := true
		for i := 0; i < size && ok; i++ {
			idx := (uint64(occs[i]) * factor) >> m.shift
			switch {
			case epoch[idx] < attempt:
				epoch[idx] = attempt
				m.attacks[idx] = refs[i]
			case m.attacks[idx] != refs[i]:
				ok = false
			}
		}
		if ok {
			m.factor = factor
			return
		}
	}
}

func (m *magic) lookup(occ Bitboard) Bitboard {
	return m.attacks[(uint64(occ&m.mask)*m.factor)>>m.shift]
}

func RookAttacks(sq Square, occ Bitboard) Bitboard   { return rookMagics[sq].lookup(occ) }
func BishopAttacks(sq Square, occ Bitboard) Bitboard { return bishopMagics[sq].lookup(occ) }
func QueenAttacks(sq Square, occ Bitboard) Bitboard {
	return rookMagics[sq].lookup(occ) | bishopMagics[sq].lookup(occ)
}
func KnightAttacks(sq Square) Bitboard          { return knightAttacks[sq] }
func KingAttacks(sq Square) Bitboard            { return kingAttacks[sq] }
func PawnAttacks(c Color, sq Square) Bitboard   { return pawnAttacks[c][sq] }

// Between returns the squares strictly between a and b on a shared line.
func Between(a, b Square) Bitboard { return betweenBB[a][b] }

// Line returns the full board line through a and b, or 0 if unaligned.
func Line(a, b Square) Bitboard { return lineBB[a][b] }

// AttackersTo returns pieces of both colors attacking sq under occupancy occ.
func (p *Position) AttackersTo(sq Square, occ Bitboard) Bitboard {
	bishops := p.pieces[White][Bishop] | p.pieces[Black][Bishop] | p.pieces[White][Queen] | p.pieces[Black][Queen]
	rooks := p.pieces[White][Rook] | p.pieces[Black][Rook] | p.pieces[White][Queen] | p.pieces[Black][Queen]
	return pawnAttacks[Black][sq]&p.pieces[White][Pawn] |
		pawnAttacks[White][sq]&p.pieces[Black][Pawn] |
		knightAttacks[sq]&(p.pieces[White][Knight]|p.pieces[Black][Knight]) |
		kingAttacks[sq]&(p.pieces[White][King]|p.pieces[Black][King]) |
		BishopAttacks(sq, occ)&bishops |
		RookAttacks(sq, occ)&rooks
}

// Attacked reports whether side by attacks sq with the current occupancy.
func (p *Position) Attacked(sq Square, by Color, occ Bitboard) bool {
	them := &p.pieces[by]
	return pawnAttacks[by.Other()][sq]&them[Pawn] != 0 ||
		knightAttacks[sq]&them[Knight] != 0 ||
		kingAttacks[sq]&them[King] != 0 ||
		BishopAttacks(sq, occ)&(them[Bishop]|them[Queen]) != 0 ||
		RookAttacks(sq, occ)&(them[Rook]|them[Queen]) != 0
}
