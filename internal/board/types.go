// Package board holds the bitboard position, legal move generation and the
// make/unmake machinery the search is built on.
package board

import "fmt"

// Square indexes the board little-endian rank-file: A1=0, H1=7, A8=56, H8=63.
type Square uint8

const (
	A1, B1, C1, D1, E1, F1, G1, H1 Square = 0, 1, 2, 3, 4, 5, 6, 7
	A2, B2, C2, D2, E2, F2, G2, H2 Square = 8, 9, 10, 11, 12, 13, 14, 15
	A3, B3, C3, D3, E3, F3, G3, H3 Square = 16, 17, 18, 19, 20, 21, 22, 23
	A4, B4, C4, D4, E4, F4, G4, H4 Square = 24, 25, 26, 27, 28, 29, 30, 31
	A5, B5, C5, D5, E5, F5, G5, H5 Square = 32, 33, 34, 35, 36, 37, 38, 39
	A6, B6, C6, D6, E6, F6, G6, H6 Square = 40, 41, 42, 43, 44, 45, 46, 47
	A7, B7, C7, D7, E7, F7, G7, H7 Square = 48, 49, 50, 51, 52, 53, 54, 55
	A8, B8, C8, D8, E8, F8, G8, H8 Square = 56, 57, 58, 59, 60, 61, 62, 63

	NoSquare Square = 64
)

// NewSquare builds a square from a 0-based file and rank.
func NewSquare(file, rank int) Square { return Square(rank<<3 | file) }

func (sq Square) File() int { return int(sq & 7) }
func (sq Square) Rank() int { return int(sq >> 3) }

// FlipRank mirrors the square top to bottom (a1 <-> a8).
func (sq Square) FlipRank() Square { return sq ^ 56 }

// FlipFile mirrors the square left to right (a1 <-> h1).
func (sq Square) FlipFile() Square { return sq ^ 7 }

// Relative returns the square as seen from c's side of the board.
func (sq Square) Relative(c Color) Square {
	if c == Black {
		return sq ^ 56
	}
	return sq
}

func (sq Square) String() string {
	if sq >= NoSquare {
		return "-"
	}
	return string([]byte{byte('a' + sq.File()), byte('1' + sq.Rank())})
}

// ParseSquare reads algebraic notation such as "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color { return c ^ 1 }

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

type PieceType uint8

const (
	Pawn PieceType = iota
	Knight
	Bishop
	Rook
	Queen
	King
	NoPieceType
)

// Piece packs color and type as color*6 + type.
type Piece uint8

const NoPiece Piece = 12

func MakePiece(c Color, pt PieceType) Piece { return Piece(c)*6 + Piece(pt) }

func (p Piece) Type() PieceType {
	if p >= NoPiece {
		return NoPieceType
	}
	return PieceType(p % 6)
}

func (p Piece) Color() Color { return Color(p / 6) }

const pieceChars = "PNBRQKpnbrqk"

func (p Piece) String() string {
	if p >= NoPiece {
		return "."
	}
	return pieceChars[p : p+1]
}

func pieceFromChar(ch byte) Piece {
	for i := 0; i < len(pieceChars); i++ {
		if pieceChars[i] == ch {
			return Piece(i)
		}
	}
	return NoPiece
}

// SEEValue is the material scale used by static exchange evaluation.
var SEEValue = [7]int{100, 450, 450, 650, 1250, 0, 0}
