// Package dir writes rendered tiles to a {z}/{x}/{y} directory tree.
package dir

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdok/videolayer/processing"
)

// TargetDirectory writes tiles as files
type TargetDirectory struct {
	root   string
	format processing.Format

	written uint64
	errs    []error
}

func NewTargetDirectory(root string, format processing.Format) (*TargetDirectory, error) {
	if _, err := processing.ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &TargetDirectory{root: root, format: format}, nil
}

// Path returns where a tile is written
func (target *TargetDirectory) Path(z, x, y uint) string {
	return filepath.Join(target.root, strconv.FormatUint(uint64(z), 10), strconv.FormatUint(uint64(x), 10),
		strconv.FormatUint(uint64(y), 10)+"."+target.format.Extension())
}

func (target *TargetDirectory) WriteTiles(tiles <-chan processing.Tile) {
	for tile := range tiles {
		if err := target.writeTile(tile); err != nil {
			target.errs = append(target.errs, err)
			continue
		}
		target.written++
	}
	log.Printf("    wrote %d tiles to %s", target.written, target.root)
}

func (target *TargetDirectory) writeTile(tile processing.Tile) (err error) {
	a := tile.Address()
	p := target.Path(a.Z, a.X, a.Y)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err = target.format.Encode(f, tile.Image()); err != nil {
		return fmt.Errorf("could not encode tile %d/%d/%d: %w", a.Z, a.X, a.Y, err)
	}
	return nil
}

func (target *TargetDirectory) Written() uint64 {
	return target.written
}

// Err returns the errors of all tiles that could not be written
func (target *TargetDirectory) Err() error {
	return errors.Join(target.errs...)
}
