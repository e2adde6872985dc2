package gpkg

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/pdok/videolayer/processing"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/go-spatial/geom/slippy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTMS(t *testing.T, id string) *tms20.TileMatrixSet {
	tms, err := tms20.LoadEmbeddedTileMatrixSet(id)
	require.NoError(t, err)
	return &tms
}

func tileImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 16; i++ {
		img.Set(i%4, i/4, c)
	}
	return img
}

func TestSpatialReferenceSystem(t *testing.T) {
	tests := []struct {
		id       string
		wantID   int
		wantName string
	}{
		{id: tms20.GlobalGeodetic, wantID: 4326, wantName: "WGS 84 geodetic"},
		{id: tms20.SphericalMercator, wantID: 3857, wantName: "WGS 84 / Pseudo-Mercator"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			srs, err := SpatialReferenceSystem(loadTMS(t, tt.id))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, srs.ID)
			assert.Equal(t, tt.wantID, srs.OrganizationCoordsysID)
			assert.Equal(t, "EPSG", srs.Organization)
			assert.Equal(t, tt.wantName, srs.Name)
		})
	}
}

func TestNewTargetGeopackage_format(t *testing.T) {
	_, err := NewTargetGeopackage(filepath.Join(t.TempDir(), "tiles.gpkg"), loadTMS(t, tms20.GlobalGeodetic), 0,
		Options{Table: "world", Format: processing.TIFF})
	assert.Error(t, err)
}

func TestTargetGeopackage_WriteTiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tiles_0.gpkg")
	tms := loadTMS(t, tms20.GlobalGeodetic)
	target, err := NewTargetGeopackage(file, tms, 0, Options{Table: "world", Pagesize: 1, Format: processing.PNG, TileSize: 4})
	require.NoError(t, err)

	tiles := make(chan processing.Tile)
	go func() {
		tiles <- processing.NewTile(slippy.Tile{Z: 0, X: 0, Y: 0}, tileImage(color.RGBA{R: 0xff, A: 0xff}))
		tiles <- processing.NewTile(slippy.Tile{Z: 0, X: 1, Y: 0}, tileImage(color.RGBA{B: 0xff, A: 0xff}))
		close(tiles)
	}()
	target.WriteTiles(tiles)
	assert.Equal(t, uint64(2), target.Written())
	require.NoError(t, target.Close())

	h, err := gpkg.Open(file)
	require.NoError(t, err)
	defer h.Close()

	var count int
	require.NoError(t, h.QueryRow(`SELECT count(*) FROM "world"`).Scan(&count))
	assert.Equal(t, 2, count)

	var data []byte
	require.NoError(t, h.QueryRow(`SELECT tile_data FROM "world" WHERE zoom_level = 0 AND tile_column = 1 AND tile_row = 0`).Scan(&data))
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, _, b, _ := img.At(2, 2).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), b)

	var dataType string
	var srsID int
	var minX, maxY float64
	require.NoError(t, h.QueryRow(`SELECT data_type, srs_id, min_x, max_y FROM gpkg_contents WHERE table_name = 'world'`).Scan(&dataType, &srsID, &minX, &maxY))
	assert.Equal(t, "tiles", dataType)
	assert.Equal(t, 4326, srsID)
	assert.Equal(t, -180.0, minX)
	assert.Equal(t, 90.0, maxY)

	var matrixWidth, matrixHeight, tileWidth int
	var pixelXSize float64
	require.NoError(t, h.QueryRow(`SELECT matrix_width, matrix_height, tile_width, pixel_x_size FROM gpkg_tile_matrix WHERE table_name = 'world' AND zoom_level = 0`).
		Scan(&matrixWidth, &matrixHeight, &tileWidth, &pixelXSize))
	assert.Equal(t, 2, matrixWidth)
	assert.Equal(t, 1, matrixHeight)
	assert.Equal(t, 4, tileWidth)
	assert.Equal(t, 45.0, pixelXSize)
}
