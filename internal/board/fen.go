package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrInvalidFEN = errors.New("invalid fen")

// ParseFEN builds a position from Forsyth-Edwards notation. The halfmove
// and fullmove fields are optional.
func ParseFEN(fen string) (*Position, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 fields, got %d", ErrInvalidFEN, len(fields))
	}

	p := &Position{ep: NoSquare, fullmove: 1, history: make([]uint64, 0, 512)}
	for i := range p.squares {
		p.squares[i] = NoPiece
	}

	rank, file := 7, 0
	for _, ch := range []byte(fields[0]) {
		switch {
		case ch == '/':
			if file != 8 {
				return nil, fmt.Errorf("%w: short rank %d", ErrInvalidFEN, rank+1)
			}
			rank, file = rank-1, 0
		case ch >= '1' && ch <= '8':
			file += int(ch - '0')
		default:
			pc := pieceFromChar(ch)
			if pc == NoPiece || file > 7 || rank < 0 {
				return nil, fmt.Errorf("%w: bad placement %q", ErrInvalidFEN, fields[0])
			}
			p.put(pc, NewSquare(file, rank))
			file++
		}
		if file > 8 || rank < 0 {
			return nil, fmt.Errorf("%w: bad placement %q", ErrInvalidFEN, fields[0])
		}
	}
	if rank != 0 || file != 8 {
		return nil, fmt.Errorf("%w: bad placement %q", ErrInvalidFEN, fields[0])
	}
	if p.pieces[White][King].Count() != 1 || p.pieces[Black][King].Count() != 1 {
		return nil, fmt.Errorf("%w: each side needs exactly one king", ErrInvalidFEN)
	}
	if (p.pieces[White][Pawn]|p.pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return nil, fmt.Errorf("%w: pawn on back rank", ErrInvalidFEN)
	}

	switch fields[1] {
	case "w":
		p.side = White
	case "b":
		p.side = Black
	default:
		return nil, fmt.Errorf("%w: side to move %q", ErrInvalidFEN, fields[1])
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			i := strings.IndexRune("KQkq", ch)
			if i < 0 {
				return nil, fmt.Errorf("%w: castling %q", ErrInvalidFEN, fields[2])
			}
			p.castling |= 1 << i
		}
	}
	// Drop rights whose king or rook is not home.
	for _, sq := range []Square{E1, H1, A1, E8, H8, A8} {
		want := MakePiece(White, Rook)
		if sq == E1 || sq == E8 {
			want = MakePiece(White, King)
		}
		if sq >= A8 {
			want += 6
		}
		if p.squares[sq] != want {
			p.castling &= castleMask[sq]
		}
	}

	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
		}
		p.ep = sq
	}

	if len(fields) > 4 {
		n, err := strconv.Atoi(fields[4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: halfmove clock %q", ErrInvalidFEN, fields[4])
		}
		p.halfmove = n
	}
	if len(fields) > 5 {
		n, err := strconv.Atoi(fields[5])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: fullmove number %q", ErrInvalidFEN, fields[5])
		}
		p.fullmove = n
	}

	p.hash, p.pawnKey = p.computeHash()
	if p.Attacked(p.King(p.side.Other()), p.side, p.Occupied()) {
		return nil, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}
	p.updateState()
	return p, nil
}

// MustParseFEN panics on malformed input; meant for constants and tests.
func MustParseFEN(fen string) *Position {
	p, err := ParseFEN(fen)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPosition returns the standard starting position.
func NewPosition() *Position { return MustParseFEN(StartFEN) }

func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.squares[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	side := "w"
	if p.side == Black {
		side = "b"
	}
	fmt.Fprintf(&sb, " %s %s %s %d %d", side, p.castling, p.ep, p.halfmove, p.fullmove)
	return sb.String()
}
