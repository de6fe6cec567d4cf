package snapshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/termchess/internal/domain"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func startPosition() *nchess.Position {
	return nchess.NewGame().Position()
}

func pixel(img image.Image, p image.Point) color.RGBA {
	r, g, b, a := img.At(p.X, p.Y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func TestRenderPNGDimensions(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(context.Background(), startPosition(), Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	want := r.SquareSize*8 + r.Margin*2
	if b := img.Bounds(); b.Dx() != want || b.Dy() != want {
		t.Fatalf("unexpected size %v, want %dx%d", b, want, want)
	}

	data, err = r.RenderPNG(context.Background(), startPosition(), Options{Header: "white vs black"})
	if err != nil {
		t.Fatalf("render with header: %v", err)
	}
	if got := decode(t, data).Bounds().Dy(); got != want+headerHeight {
		t.Fatalf("header height not added: %d", got)
	}
}

func TestEmptySquareColors(t *testing.T) {
	r := NewRenderer()
	data, err := r.RenderPNG(context.Background(), startPosition(), Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	l := layout{size: r.SquareSize, origin: image.Point{X: r.Margin, Y: r.Margin}}

	// e4 is light, d4 is dark; both empty at the start.
	if got := pixel(img, l.center(nchess.E4)); got != lightSquare {
		t.Fatalf("e4 color = %v, want %v", got, lightSquare)
	}
	if got := pixel(img, l.center(nchess.D4)); got != darkSquare {
		t.Fatalf("d4 color = %v, want %v", got, darkSquare)
	}
}

func TestOrientationFlipsBoard(t *testing.T) {
	r := NewRenderer()
	white, err := r.RenderPNG(context.Background(), startPosition(), Options{Orientation: domain.White})
	if err != nil {
		t.Fatalf("render white: %v", err)
	}
	black, err := r.RenderPNG(context.Background(), startPosition(), Options{Orientation: domain.Black})
	if err != nil {
		t.Fatalf("render black: %v", err)
	}
	wi, bi := decode(t, white), decode(t, black)

	l := layout{size: r.SquareSize, origin: image.Point{X: r.Margin, Y: r.Margin}}
	flipped := l
	flipped.flipped = true

	// Rank 1 is the bottom row for white and the top row for black.
	if l.squareRect(nchess.A1).Min.Y <= l.squareRect(nchess.A8).Min.Y {
		t.Fatalf("white orientation should put a1 below a8")
	}
	if flipped.squareRect(nchess.A1).Min.Y >= flipped.squareRect(nchess.A8).Min.Y {
		t.Fatalf("black orientation should put a1 above a8")
	}

	bottomLeft := image.Point{X: r.Margin + r.SquareSize/2, Y: r.Margin + 7*r.SquareSize + r.SquareSize/2}
	if pixel(wi, bottomLeft) == pixel(bi, bottomLeft) {
		// a1 (white rook) vs h8 (black rook) centres differ in fill
		t.Fatalf("bottom-left square identical in both orientations")
	}
}

func TestHighlightChangesSquare(t *testing.T) {
	r := NewRenderer()
	plain, err := r.RenderPNG(context.Background(), startPosition(), Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	lit, err := r.RenderPNG(context.Background(), startPosition(), Options{
		Highlight: &Highlight{From: nchess.E2, To: nchess.E4},
		Arrow:     true,
	})
	if err != nil {
		t.Fatalf("render highlight: %v", err)
	}
	l := layout{size: r.SquareSize, origin: image.Point{X: r.Margin, Y: r.Margin}}
	corner := l.squareRect(nchess.E4).Min.Add(image.Point{X: 2, Y: 2})
	if pixel(decode(t, plain), corner) == pixel(decode(t, lit), corner) {
		t.Fatalf("highlight left e4 unchanged")
	}
}

func TestRenderRejectsNilAndCanceled(t *testing.T) {
	r := NewRenderer()
	if _, err := r.RenderPNG(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("expected error for nil position")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, startPosition(), Options{}); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestSaveWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	path, err := Save(dir, "game/1 ply 3", []byte("png"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "game_1_ply_3.png" {
		t.Fatalf("unexpected file name %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png" {
		t.Fatalf("read back: %q %v", data, err)
	}
}
