package console

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/termchess/internal/domain"
)

var pieceLetters = map[nchess.PieceType]byte{
	nchess.King:   'k',
	nchess.Queen:  'q',
	nchess.Rook:   'r',
	nchess.Bishop: 'b',
	nchess.Knight: 'n',
	nchess.Pawn:   'p',
}

// Diagram draws the position as text with the given side at the bottom.
// White pieces are upper case, empty squares are dots.
func Diagram(pos *nchess.Position, bottom domain.Color) string {
	if pos == nil {
		return ""
	}
	squares := pos.Board().SquareMap()
	ranks := []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	files := []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
	if bottom == domain.Black {
		reverse(ranks)
		reverse(files)
	}

	var sb strings.Builder
	for _, r := range ranks {
		sb.WriteString(r.String())
		for _, f := range files {
			sb.WriteByte(' ')
			sb.WriteByte(squareChar(squares[nchess.NewSquare(f, r)]))
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte(' ')
	for _, f := range files {
		sb.WriteByte(' ')
		sb.WriteString(f.String())
	}
	return sb.String()
}

func squareChar(p nchess.Piece) byte {
	if p == nchess.NoPiece {
		return '.'
	}
	c, ok := pieceLetters[p.Type()]
	if !ok {
		return '?'
	}
	if p.Color() == nchess.White {
		return c - 'a' + 'A'
	}
	return c
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// MoveList numbers SAN moves in pairs: "1. e4 e5 2. Nf3".
func MoveList(san []string) string {
	var sb strings.Builder
	for i, mv := range san {
		if i%2 == 0 {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%d. ", i/2+1)
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(mv)
	}
	return sb.String()
}

// FormatClock renders m:ss, or h:mm:ss from one hour up. Negative values clamp to zero.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
