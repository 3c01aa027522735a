package board

import (
	"math/bits"
	"strings"
)

// Bitboard is a set of squares, bit i for square i.
type Bitboard uint64

const (
	FileA Bitboard = 0x0101010101010101
	FileH Bitboard = FileA << 7
	Rank1 Bitboard = 0xFF
	Rank2 Bitboard = Rank1 << 8
	Rank3 Bitboard = Rank1 << 16
	Rank6 Bitboard = Rank1 << 40
	Rank7 Bitboard = Rank1 << 48
	Rank8 Bitboard = Rank1 << 56
)

func (sq Square) BB() Bitboard { return 1 << sq }

func (b Bitboard) Has(sq Square) bool { return b&(1<<sq) != 0 }
func (b Bitboard) Count() int          { return bits.OnesCount64(uint64(b)) }
func (b Bitboard) Many() bool          { return b&(b-1) != 0 }

// First returns the lowest set square; the board must not be empty.
func (b Bitboard) First() Square { return Square(bits.TrailingZeros64(uint64(b))) }

// Pop removes and returns the lowest set square.
func (b *Bitboard) Pop() Square {
	sq := Square(bits.TrailingZeros64(uint64(*b)))
	*b &= *b - 1
	return sq
}

func (b Bitboard) north() Bitboard { return b << 8 }
func (b Bitboard) south() Bitboard { return b >> 8 }
func (b Bitboard) east() Bitboard  { return (b &^ FileH) << 1 }
func (b Bitboard) west() Bitboard  { return (b &^ FileA) >> 1 }

// forward shifts one rank toward the opponent of c.
func (b Bitboard) forward(c Color) Bitboard {
	if c == White {
		return b.north()
	}
	return b.south()
}

func (b Bitboard) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			if b.Has(NewSquare(file, rank)) {
				sb.WriteString("x ")
			} else {
				sb.WriteString(". ")
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
