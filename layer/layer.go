// Package layer opens image and video sources as map layers and renders their tiles.
package layer

import (
	"context"
	"image"

	"github.com/pdok/videolayer/config"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
)

// Layer is a source of tile images
type Layer interface {
	Name() string
	Open(ctx context.Context) Status
	Status() Status
	// Profile is the tile matrix set the layer's tiles are laid out in, nil before open
	Profile() *tms20.TileMatrixSet
	CreateImage(ctx context.Context, tile slippy.Tile) (GeoImage, error)
	Config() *config.Config
	Close() error
}

// GeoImage is a tile image together with its extent in the CRS of the layer's profile
type GeoImage struct {
	Image  *image.RGBA
	Extent geom.Extent
	Tile   slippy.Tile
}

func (g GeoImage) Valid() bool {
	return g.Image != nil
}
