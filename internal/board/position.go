package board

import (
	"fmt"
	"strings"
)

type CastlingRights uint8

const (
	WhiteOO CastlingRights = 1 << iota
	WhiteOOO
	BlackOO
	BlackOOO
)

func (cr CastlingRights) String() string {
	if cr == 0 {
		return "-"
	}
	var sb strings.Builder
	for i, ch := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// castleMask[sq] holds the rights that survive a move touching sq.
var castleMask [64]CastlingRights

func init() {
	for sq := range castleMask {
		castleMask[sq] = WhiteOO | WhiteOOO | BlackOO | BlackOOO
	}
	castleMask[E1] &^= WhiteOO | WhiteOOO
	castleMask[H1] &^= WhiteOO
	castleMask[A1] &^= WhiteOOO
	castleMask[E8] &^= BlackOO | BlackOOO
	castleMask[H8] &^= BlackOO
	castleMask[A8] &^= BlackOOO
}

// Position is a chess position plus the hash history needed for
// repetition detection.
type Position struct {
	pieces  [2][6]Bitboard
	colors  [2]Bitboard
	squares [64]Piece

	side     Color
	castling CastlingRights
	ep       Square
	halfmove int
	fullmove int

	hash     uint64
	pawnKey  uint64
	checkers Bitboard
	pinned   Bitboard

	history []uint64
}

func (p *Position) Pieces(c Color, pt PieceType) Bitboard { return p.pieces[c][pt] }
func (p *Position) Color(c Color) Bitboard                { return p.colors[c] }
func (p *Position) Occupied() Bitboard                    { return p.colors[White] | p.colors[Black] }
func (p *Position) PieceOn(sq Square) Piece               { return p.squares[sq] }
func (p *Position) SideToMove() Color                     { return p.side }
func (p *Position) Castling() CastlingRights              { return p.castling }
func (p *Position) EnPassant() Square                     { return p.ep }
func (p *Position) HalfMoveClock() int                    { return p.halfmove }
func (p *Position) FullMoveNumber() int                   { return p.fullmove }
func (p *Position) Hash() uint64                          { return p.hash }
func (p *Position) PawnKey() uint64                       { return p.pawnKey }
func (p *Position) Checkers() Bitboard                    { return p.checkers }
func (p *Position) InCheck() bool                         { return p.checkers != 0 }
func (p *Position) King(c Color) Square                   { return p.pieces[c][King].First() }

// PieceCount counts every piece on the board, kings included.
func (p *Position) PieceCount() int { return p.Occupied().Count() }

// Clone returns an independent copy, history included.
func (p *Position) Clone() *Position {
	c := *p
	c.history = append(make([]uint64, 0, len(p.history)+256), p.history...)
	return &c
}

// HasNonPawnMaterial reports whether c has a knight, bishop, rook or queen.
func (p *Position) HasNonPawnMaterial(c Color) bool {
	return p.colors[c]&^(p.pieces[c][Pawn]|p.pieces[c][King]) != 0
}

func (p *Position) put(pc Piece, sq Square) {
	bb := sq.BB()
	p.pieces[pc.Color()][pc.Type()] |= bb
	p.colors[pc.Color()] |= bb
	p.squares[sq] = pc
	p.hash ^= zobristPiece[pc][sq]
	if pc.Type() == Pawn {
		p.pawnKey ^= zobristPiece[pc][sq]
	}
}

func (p *Position) remove(sq Square) Piece {
	pc := p.squares[sq]
	bb := sq.BB()
	p.pieces[pc.Color()][pc.Type()] &^= bb
	p.colors[pc.Color()] &^= bb
	p.squares[sq] = NoPiece
	p.hash ^= zobristPiece[pc][sq]
	if pc.Type() == Pawn {
		p.pawnKey ^= zobristPiece[pc][sq]
	}
	return pc
}

func (p *Position) relocate(from, to Square) {
	p.put(p.remove(from), to)
}

// updateState refreshes checkers and pins for the side to move.
func (p *Position) updateState() {
	us, them := p.side, p.side.Other()
	ksq := p.King(us)
	occ := p.Occupied()
	p.checkers = p.AttackersTo(ksq, occ) & p.colors[them]

	p.pinned = 0
	snipers := RookAttacks(ksq, 0)&(p.pieces[them][Rook]|p.pieces[them][Queen]) |
		BishopAttacks(ksq, 0)&(p.pieces[them][Bishop]|p.pieces[them][Queen])
	for snipers != 0 {
		sq := snipers.Pop()
		blockers := Between(ksq, sq) & occ
		if blockers != 0 && !blockers.Many() && blockers&p.colors[us] != 0 {
			p.pinned |= blockers
		}
	}
}

// IsRepetition reports whether the current position occurred before since
// the last irreversible move.
func (p *Position) IsRepetition() bool {
	n := len(p.history)
	for i := n - 2; i >= 0 && i >= n-p.halfmove; i -= 2 {
		if p.history[i] == p.hash {
			return true
		}
	}
	return false
}

// IsInsufficientMaterial covers K vs K and K+minor vs K.
func (p *Position) IsInsufficientMaterial() bool {
	for c := White; c <= Black; c++ {
		if p.pieces[c][Pawn]|p.pieces[c][Rook]|p.pieces[c][Queen] != 0 {
			return false
		}
	}
	return (p.Occupied() &^ (p.pieces[White][King] | p.pieces[Black][King])).Count() <= 1
}

// IsDraw folds the fifty-move rule, repetition and dead material together.
func (p *Position) IsDraw() bool {
	return p.halfmove >= 100 || p.IsRepetition() || p.IsInsufficientMaterial()
}

func (p *Position) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d ", rank+1)
		for file := 0; file < 8; file++ {
			sb.WriteString(p.squares[NewSquare(file, rank)].String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	fmt.Fprintf(&sb, "fen: %s\nkey: %016x\n", p.FEN(), p.hash)
	return sb.String()
}
