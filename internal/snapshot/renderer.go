// Package snapshot renders a board position to PNG.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/termchess/internal/domain"
)

type Highlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	// Orientation is the side drawn at the bottom. Defaults to white.
	Orientation domain.Color
	Highlight   *Highlight
	// Arrow draws the highlight as an arrow on top of the square overlays.
	Arrow  bool
	Header string
}

// HighlightMove converts a move into a highlight; nil stays nil.
func HighlightMove(mv *nchess.Move) *Highlight {
	if mv == nil {
		return nil
	}
	return &Highlight{From: mv.S1(), To: mv.S2()}
}

type Renderer struct {
	SquareSize int
	Margin     int
}

func NewRenderer() *Renderer {
	return &Renderer{SquareSize: 64, Margin: 24}
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	backgroundColor     = color.RGBA{28, 31, 46, 255}
	moveHighlightFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	moveHighlightArrow  = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	headerTextColor     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

const headerHeight = 28

// layout maps squares to pixels for one orientation.
type layout struct {
	size    int
	origin  image.Point
	flipped bool
}

func (l layout) squareRect(sq nchess.Square) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if l.flipped {
		col, row = 7-col, int(sq.Rank())
	}
	x := l.origin.X + col*l.size
	y := l.origin.Y + row*l.size
	return image.Rect(x, y, x+l.size, y+l.size)
}

func (l layout) center(sq nchess.Square) image.Point {
	r := l.squareRect(sq)
	return image.Point{X: r.Min.X + l.size/2, Y: r.Min.Y + l.size/2}
}

// Size returns the image dimensions for the given options.
func (r *Renderer) Size(opts Options) image.Point {
	w := r.SquareSize*8 + r.Margin*2
	h := w
	if strings.TrimSpace(opts.Header) != "" {
		h += headerHeight
	}
	return image.Point{X: w, Y: h}
}

func (r *Renderer) RenderPNG(ctx context.Context, pos *nchess.Position, opts Options) ([]byte, error) {
	if pos == nil {
		return nil, fmt.Errorf("position is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := r.Size(opts)
	top := r.Margin
	if strings.TrimSpace(opts.Header) != "" {
		top += headerHeight
	}
	l := layout{size: r.SquareSize, origin: image.Point{X: r.Margin, Y: top}, flipped: opts.Orientation == domain.Black}

	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHeader(img, opts.Header, size.X)
	drawSquares(img, l)
	if h := opts.Highlight; h != nil {
		drawSquareOverlay(img, l.squareRect(h.From), moveHighlightFill)
		drawSquareOverlay(img, l.squareRect(h.To), moveHighlightFill)
	}
	if err := drawPieces(img, pos.Board(), l); err != nil {
		return nil, err
	}
	if h := opts.Highlight; h != nil && opts.Arrow {
		drawArrow(img, l.center(h.From), l.center(h.To), l.size, moveHighlightArrow)
	}
	drawCoordinates(img, l, r.Margin)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			out = append(out, nchess.NewSquare(file, rank))
		}
	}
	return out
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawSquares(dst imagedraw.Image, l layout) {
	for _, sq := range allSquares() {
		imagedraw.Draw(dst, l.squareRect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, l layout) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, l.size)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, l.squareRect(sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawHeader(img *image.RGBA, text string, width int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(headerTextColor), Face: basicfont.Face7x13}
	drawCenteredText(d, text, width/2, headerHeight-6)
}

func drawCoordinates(dst imagedraw.Image, l layout, margin int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(coordinateTextColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for _, sq := range allSquares() {
		c := l.center(sq)
		if sq.File() == nchess.FileA {
			drawCenteredText(d, sq.Rank().String(), l.origin.X-margin/2, c.Y+ascent/2)
		}
		if sq.Rank() == nchess.Rank1 && !l.flipped || sq.Rank() == nchess.Rank8 && l.flipped {
			drawCenteredText(d, sq.File().String(), c.X, l.origin.Y+8*l.size+ascent+4)
		}
	}
}

func drawCenteredText(d *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}

// Save writes png into dir as <name>.png and returns the path.
func Save(dir, name string, png []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, sanitizeName(name)+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "board"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
