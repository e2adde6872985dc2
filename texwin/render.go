package texwin

import (
	"errors"
	"image"

	"github.com/pdok/videolayer/mathhelp"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrNoData is returned when rendering an empty texture window
var ErrNoData = errors.New("no data for this tile")

// Render samples the window out of its frame into dst, with the top of dst to the north.
//
// Tile texture coordinates follow the tiling's convention: t runs from 0 at the south edge
// to 1 at the north edge. Frame texture coordinates run along the frame's pixel rows from its
// origin. Coordinates outside [0,1) wrap around, like a REPEAT texture.
func Render(dst draw.Image, w TextureWindow, interp draw.Transformer) error {
	if !w.Valid() {
		return ErrNoData
	}
	src := w.frame.Image()
	if src == nil {
		return ErrNoData
	}
	sr := src.Bounds()
	dr := dst.Bounds()
	if sr.Empty() || dr.Empty() {
		return ErrNoData
	}
	if interp == nil {
		interp = draw.ApproxBiLinear
	}

	interp.Transform(dst, s2d(w.transform, sr, dr), src, sr, draw.Src, nil)
	return nil
}

// s2d builds the source-to-destination pixel matrix for the window.
//
// Destination pixel (x, y) has tile texture coordinates s = x/W and t = 1 - y/H. The window
// maps those to u = sx*s + tx and v = sy*t + ty. Frame pixel coordinates are (u*w, v*h).
// The wrap is resolved once, at the centre of the tile, which is exact for a window that
// spans at most one period (every window produced by Window does).
func s2d(t Transform, sr, dr image.Rectangle) f64.Aff3 {
	srcW, srcH := float64(sr.Dx()), float64(sr.Dy())
	dstW, dstH := float64(dr.Dx()), float64(dr.Dy())

	centreU, centreV := t.Apply(0.5, 0.5)
	shiftU := mathhelp.WrapShift(centreU)
	shiftV := mathhelp.WrapShift(centreV)

	// destination to source
	a := srcW * t.ScaleX / dstW
	c := srcW*(t.TranslateX+shiftU) - a*float64(dr.Min.X) + float64(sr.Min.X)
	e := -srcH * t.ScaleY / dstH
	f := srcH*(t.ScaleY+t.TranslateY+shiftV) - e*float64(dr.Min.Y) + float64(sr.Min.Y)

	// and its inverse, there is no shear to take care of
	return f64.Aff3{
		1 / a, 0, -c / a,
		0, 1 / e, -f / e,
	}
}
