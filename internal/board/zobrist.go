package board

var (
	zobristPiece    [12][64]uint64
	zobristEP       [8]uint64
	zobristCastling [16]uint64
	zobristSide     uint64
)

// prng is xorshift64*, seeded with fixed constants so hashes and magics are
// identical across runs.
type prng struct{ state uint64 }

func (r *prng) next() uint64 {
	r.state ^= r.state >> 12
	r.state ^= r.state << 25
	r.state ^= r.state >> 27
	return r.state * 0x2545F4914F6CDD1D
}

func init() {
	rng := prng{state: 0x98F107A2BEEF1234}
	for p := range zobristPiece {
		for sq := range zobristPiece[p] {
			zobristPiece[p][sq] = rng.next()
		}
	}
	for f := range zobristEP {
		zobristEP[f] = rng.next()
	}
	for cr := range zobristCastling {
		zobristCastling[cr] = rng.next()
	}
	zobristSide = rng.next()
}

// computeHash derives the key from scratch; make/unmake keep it
// incrementally and tests compare the two.
func (p *Position) computeHash() (hash, pawnKey uint64) {
	for sq := A1; sq <= H8; sq++ {
		pc := p.squares[sq]
		if pc == NoPiece {
			continue
		}
		hash ^= zobristPiece[pc][sq]
		if pc.Type() == Pawn {
			pawnKey ^= zobristPiece[pc][sq]
		}
	}
	if p.ep != NoSquare {
		hash ^= zobristEP[p.ep.File()]
	}
	hash ^= zobristCastling[p.castling]
	if p.side == Black {
		hash ^= zobristSide
	}
	return hash, pawnKey
}
