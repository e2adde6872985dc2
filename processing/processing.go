// Package processing takes care of the logistics around rendering tiles and writing them to a Target.
// Not the rendering itself.
package processing

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/pdok/videolayer/texwin"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom/slippy"
)

// RenderTileFunc renders one tile. It returns texwin.ErrNoData for a tile without content.
type RenderTileFunc func(tile slippy.Tile) (image.Image, error)

// Stats counts what happened to the tiles of a run
type Stats struct {
	Read     uint64
	Rendered uint64
	Empty    uint64
	Failed   uint64
	// Skipped counts tiles of a tile matrix without target
	Skipped uint64
}

// ProcessTiles renders every tile of the source and writes it to the target of its tile matrix
func ProcessTiles(source Source, targets map[tms20.TMID]Target, f RenderTileFunc) Stats {
	tilesBefore := make(chan slippy.Tile)
	tilesAfter := make(chan Tile)
	var stats Stats

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats.Skipped = writeTilesToTargets(tilesAfter, targets)
	}()
	go func() {
		defer wg.Done()
		renderTiles(tilesBefore, tilesAfter, f, &stats)
	}()
	go source.ReadTiles(tilesBefore)

	wg.Wait()
	return stats
}

// renderTiles renders the incoming tile addresses with the given function
func renderTiles(tilesIn <-chan slippy.Tile, tilesOut chan<- Tile, f RenderTileFunc, stats *Stats) {
	for {
		address, hasMore := <-tilesIn
		if !hasMore {
			break
		}
		stats.Read++
		img, err := f(address)
		switch {
		case errors.Is(err, texwin.ErrNoData):
			stats.Empty++
			continue
		case err != nil:
			stats.Failed++
			log.Printf("    could not render tile %d/%d/%d: %v", address.Z, address.X, address.Y, err)
			continue
		}
		stats.Rendered++
		tilesOut <- &renderedTile{address: address, img: img}
	}
	close(tilesOut)

	log.Printf("    total tiles: %d", stats.Read)
	log.Printf("          empty: %d", stats.Empty)
	if stats.Failed > 0 {
		log.Printf("         failed: %d", stats.Failed)
	}
	log.Printf("       rendered: %d", stats.Rendered)
}

// writeTilesToTargets distributes the rendered tiles over the targets, one goroutine per tile matrix
func writeTilesToTargets(tiles <-chan Tile, targets map[tms20.TMID]Target) (skipped uint64) {
	targetChannels := make(map[tms20.TMID]chan<- Tile)
	wg := sync.WaitGroup{}

	for tmID, target := range targets {
		targetChannel := make(chan Tile)
		targetChannels[tmID] = targetChannel
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			target.WriteTiles(targetChannel)
		}(target)
	}

	for {
		tile, ok := <-tiles
		if !ok {
			break
		}
		channel, ok := targetChannels[tms20.TMID(tile.Address().Z)]
		if !ok {
			skipped++
			continue
		}
		channel <- tile
	}

	// close the channels, the targets will do their last writing
	for _, targetChannel := range targetChannels {
		close(targetChannel)
	}

	wg.Wait()
	return skipped
}

type renderedTile struct {
	address slippy.Tile
	img     image.Image
}

func (t *renderedTile) Address() slippy.Tile {
	return t.address
}

func (t *renderedTile) Image() image.Image {
	return t.img
}

// NewTile wraps a tile image
func NewTile(address slippy.Tile, img image.Image) Tile {
	return &renderedTile{address: address, img: img}
}

type matrixSource struct {
	tms   *tms20.TileMatrixSet
	tmIDs []tms20.TMID
}

// NewMatrixSource returns a source of all tiles of the given tile matrices, matrix by matrix and row by row
func NewMatrixSource(tms *tms20.TileMatrixSet, tmIDs []tms20.TMID) (Source, error) {
	for _, tmID := range tmIDs {
		if tmID < 0 {
			return nil, fmt.Errorf("invalid tile matrix %d", tmID)
		}
		if _, ok := tms.Size(uint(tmID)); !ok {
			return nil, fmt.Errorf("tile matrix %d not in tile matrix set %s", tmID, tms.ID)
		}
	}
	return &matrixSource{tms: tms, tmIDs: tmIDs}, nil
}

func (s *matrixSource) ReadTiles(tiles chan<- slippy.Tile) {
	defer close(tiles)
	for _, tmID := range s.tmIDs {
		size, _ := s.tms.Size(uint(tmID))
		for y := uint(0); y < size.Y; y++ {
			for x := uint(0); x < size.X; x++ {
				tiles <- slippy.Tile{Z: uint(tmID), X: x, Y: y}
			}
		}
	}
}
