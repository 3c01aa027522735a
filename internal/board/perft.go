package board

// Perft counts leaf nodes of the legal move tree to the given depth.
func (p *Position) Perft(depth int) uint64 {
	var ml MoveList
	p.LegalMoves(&ml)
	if depth <= 1 {
		if depth <= 0 {
			return 1
		}
		return uint64(ml.N)
	}
	var nodes uint64
	for _, m := range ml.Slice() {
		u := p.MakeMove(m)
		nodes += p.Perft(depth - 1)
		p.UnmakeMove(m, u)
	}
	return nodes
}

// Divide returns the perft count below each root move.
func (p *Position) Divide(depth int) map[Move]uint64 {
	var ml MoveList
	p.LegalMoves(&ml)
	out := make(map[Move]uint64, ml.N)
	for _, m := range ml.Slice() {
		u := p.MakeMove(m)
		out[m] = p.Perft(depth - 1)
		p.UnmakeMove(m, u)
	}
	return out
}
