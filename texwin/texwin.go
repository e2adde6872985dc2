// Package texwin maps map tiles onto windows of a single source frame.
//
// A video (or any single image covering the whole globe in plate carrée) is shown on the
// two tiles of tile matrix 0 of a global geodetic tiling: the western hemisphere tile samples
// the left half of the frame, the eastern hemisphere tile the right half. A TextureWindow
// holds a reference to the live frame and the transform from tile texture coordinates into
// frame texture coordinates. It never copies pixels, so it stays valid while a decoder keeps
// replacing the frame's content.
package texwin

import (
	"image"

	"github.com/go-spatial/geom/slippy"
	"golang.org/x/image/math/f64"
)

// Origin is the corner where the rows of a frame's pixel buffer start
type Origin int

const (
	// TopLeft: the first row is the top of the picture (Go's image convention)
	TopLeft Origin = iota
	// BottomLeft: the first row is the bottom of the picture (OpenGL's convention)
	BottomLeft
)

func (o Origin) String() string {
	if o == BottomLeft {
		return "bottomLeft"
	}
	return "topLeft"
}

// Frame is a read-only view on the current frame of an image or stream.
// Implementations that are fed by a decoder must make Image safe for concurrent use.
type Frame interface {
	Image() image.Image
	Origin() Origin
}

// Transform is an affine transform in normalized [0,1] texture space without rotation or shear:
//
//	u' = ScaleX*u + TranslateX
//	v' = ScaleY*v + TranslateY
type Transform struct {
	ScaleX, ScaleY         float64
	TranslateX, TranslateY float64
}

// Identity maps every texture coordinate onto itself
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Scale returns a transform scaling around the origin
func Scale(x, y float64) Transform {
	return Transform{ScaleX: x, ScaleY: y}
}

// Translate returns a transform that moves by (x, y)
func Translate(x, y float64) Transform {
	return Transform{ScaleX: 1, ScaleY: 1, TranslateX: x, TranslateY: y}
}

// Then returns the transform that applies t first and next after it
func (t Transform) Then(next Transform) Transform {
	return Transform{
		ScaleX:     next.ScaleX * t.ScaleX,
		ScaleY:     next.ScaleY * t.ScaleY,
		TranslateX: next.ScaleX*t.TranslateX + next.TranslateX,
		TranslateY: next.ScaleY*t.TranslateY + next.TranslateY,
	}
}

// Apply maps texture coordinate (u, v)
func (t Transform) Apply(u, v float64) (float64, float64) {
	return t.ScaleX*u + t.TranslateX, t.ScaleY*v + t.TranslateY
}

// Aff3 returns the transform as a row-major 2x3 matrix, as used by golang.org/x/image/draw
func (t Transform) Aff3() f64.Aff3 {
	return f64.Aff3{
		t.ScaleX, 0, t.TranslateX,
		0, t.ScaleY, t.TranslateY,
	}
}

// TextureWindow is the part of a frame that covers one tile.
// The zero value is the empty window: no data for the tile.
type TextureWindow struct {
	frame     Frame
	transform Transform
	valid     bool
}

// NewTextureWindow returns a valid window on frame
func NewTextureWindow(frame Frame, transform Transform) TextureWindow {
	return TextureWindow{frame: frame, transform: transform, valid: frame != nil}
}

func (w TextureWindow) Valid() bool {
	return w.valid
}

func (w TextureWindow) Frame() Frame {
	return w.frame
}

func (w TextureWindow) Transform() Transform {
	return w.transform
}

// Window returns the texture window of frame for tile.
// Only the two tiles of tile matrix 0 (columns 0 and 1, row 0) have data,
// any other tile gets the empty window.
func Window(tile slippy.Tile, frame Frame) TextureWindow {
	if tile.Z > 0 || tile.Y != 0 || frame == nil {
		return TextureWindow{}
	}

	// the rows of a top-left frame run against the tiling's texture coordinates
	scaleY := 1.0
	if frame.Origin() == TopLeft {
		scaleY = -1.0
	}
	base := Scale(0.5, scaleY)

	switch tile.X {
	case 0:
		return NewTextureWindow(frame, base)
	case 1:
		return NewTextureWindow(frame, base.Then(Translate(0.5, 0)))
	default:
		return TextureWindow{}
	}
}
