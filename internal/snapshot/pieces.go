package snapshot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// piece outlines on a 45x45 canvas; FILL and STROKE are replaced per side.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M17 21 L28 21 L31 33 L35 37 L10 37 L14 33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M11 9 L15 9 L15 12 L20 12 L20 9 L25 9 L25 12 L30 12 L30 9 L34 9 L34 15 L31 18 L31 31 L34 34 L34 38 L11 38 L11 34 L14 31 L14 18 L11 15 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M22 10 C32 11 37 19 36 38 L14 38 C14 31 22 28 20 23 C17 25 14 27 12 27 C9 26 8 23 10 20 C14 16 16 12 22 10 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="19" cy="16" r="1.5" fill="STROKE"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<ellipse cx="22.5" cy="20" rx="7" ry="9" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M15 30 L30 30 L33 38 L12 38 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M22.5 15 L22.5 24 M18 19.5 L27 19.5" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Queen: `<path d="M9 14 L14 29 L17 12 L22.5 28 L28 12 L31 29 L36 14 L33 33 L12 33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="9" cy="12" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="17" cy="10" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="28" cy="10" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="36" cy="12" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<rect x="11" y="33" width="23" height="5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.King: `<path d="M22.5 5 L22.5 13 M18.5 9 L26.5 9" stroke="STROKE" stroke-width="2"/>
<path d="M22.5 14 C30 14 36 18 35 24 C34 28 30 31 30 31 L15 31 C15 31 11 28 10 24 C9 18 15 14 22.5 14 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<rect x="13" y="31" width="19" height="7" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
}

func pieceSVG(p nchess.Piece) (string, error) {
	shape, ok := pieceShapes[p.Type()]
	if !ok {
		return "", fmt.Errorf("no outline for piece %v", p)
	}
	fill, stroke := "#f8f8f8", "#1e1e1e"
	if p.Color() == nchess.Black {
		fill, stroke = "#2b2b2b", "#0a0a0a"
	}
	body := strings.NewReplacer("FILL", fill, "STROKE", stroke).Replace(shape)
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` + body + `</svg>`, nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}
