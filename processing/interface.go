package processing

import (
	"image"

	"github.com/go-spatial/geom/slippy"
)

// Tile is a rendered tile image
type Tile interface {
	Address() slippy.Tile
	Image() image.Image
}

// Source emits the addresses of the tiles to render. It closes the channel when done.
type Source interface {
	ReadTiles(chan<- slippy.Tile)
}

// Target writes the tiles of one tile matrix
type Target interface {
	WriteTiles(<-chan Tile)
}
