// Package tms20 implements the OGC Tile Matrix Set standard (v2.0), used as the tiling profile of layers.
// See https://www.ogc.org/standard/tms/
package tms20

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/slippy"
	"github.com/perimeterx/marshmallow"
)

// TMID is the (integer) identifier of a tile matrix, usually the zoom level
type TMID = int

const (
	// GlobalGeodetic is the whole-globe geodetic profile: two columns and one row at tile matrix 0
	GlobalGeodetic = "WorldCRS84Quad"
	// SphericalMercator is the whole-globe web mercator profile
	SphericalMercator = "WebMercatorQuad"
)

var (
	//go:embed tilematrixsets/*.json
	embeddedTileMatrixSetsJSONFS embed.FS
	embeddedTileMatrixSetsCache  = make(map[string]TileMatrixSet)
	embeddedTileMatrixSetsMu     sync.Mutex

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// LoadJSONTileMatrixSet reads a tile matrix set from a JSON file on disk
func LoadJSONTileMatrixSet(path string) (TileMatrixSet, error) {
	var tms TileMatrixSet
	tmsJSON, err := os.ReadFile(path)
	if err != nil {
		return tms, err
	}
	err = json.Unmarshal(tmsJSON, &tms)
	return tms, err
}

// LoadEmbeddedTileMatrixSet returns one of the built-in tile matrix sets by ID
func LoadEmbeddedTileMatrixSet(id string) (TileMatrixSet, error) {
	embeddedTileMatrixSetsMu.Lock()
	defer embeddedTileMatrixSetsMu.Unlock()

	if cached, ok := embeddedTileMatrixSetsCache[id]; ok {
		return cached, nil
	}
	var tms TileMatrixSet
	tmsJSON, err := embeddedTileMatrixSetsJSONFS.ReadFile("tilematrixsets/" + id + ".json")
	if err != nil {
		return tms, fmt.Errorf("unknown tile matrix set %q: %w", id, err)
	}
	if err = json.Unmarshal(tmsJSON, &tms); err != nil {
		return tms, err
	}
	embeddedTileMatrixSetsCache[id] = tms
	return tms, nil
}

// EmbeddedTileMatrixSetIDs lists the IDs of the built-in tile matrix sets
func EmbeddedTileMatrixSetIDs() []string {
	entries, err := embeddedTileMatrixSetsJSONFS.ReadDir("tilematrixsets")
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		ids = append(ids, name[:len(name)-len(".json")])
	}
	sort.Strings(ids)
	return ids
}

// TileMatrixSet is a definition of a tile matrix set following the Tile Matrix Set standard.
type TileMatrixSet struct {
	// Tile matrix set identifier. Implementation of 'identifier'
	ID string `json:"id,omitempty"`
	// Title of this tile matrix set, normally used for display to a human
	Title string `json:"title,omitempty"`
	// Brief narrative description of this tile matrix set, normally available for display to a human
	Description string `json:"description,omitempty"`
	// Unordered list of one or more commonly used or formalized word(s) or phrase(s) used to describe this tile matrix set
	Keywords []string `json:"keywords,omitempty"`
	// Reference to an official source for this TileMatrixSet
	URI         string   `validate:"omitempty,uri" json:"uri,omitempty"`
	OrderedAxes []string `validate:"omitnil,min=1" json:"orderedAxes"`
	// Coordinate Reference System (CRS)
	CRS CRS `validate:"required" json:"-"`
	// Reference to a well-known scale set
	WellKnownScaleSet string `validate:"omitempty,uri" json:"wellKnownScaleSet,omitempty"`
	// Minimum bounding rectangle surrounding the tile matrix set, in the supported CRS
	BoundingBox *TwoDBoundingBox `json:"boundingBox,omitempty"`
	// Describes scale levels and its tile matrices
	TileMatrices map[TMID]TileMatrix `validate:"required,min=1" json:"-"`
}

func (tms *TileMatrixSet) MarshalJSON() ([]byte, error) {
	tileMatrices := make([]*TileMatrix, 0, len(tms.TileMatrices))
	for _, tmID := range tms.TileMatrixIDs() {
		tm := tms.TileMatrices[tmID]
		tileMatrices = append(tileMatrices, &tm)
	}
	return json.Marshal(struct {
		TileMatrixSet                     // not a pointer, because it would cause recursion to this function
		SpecialCRS          *CRS          `json:"crs"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
		SpecialTileMatrices []*TileMatrix `json:"tileMatrices"`
	}{
		TileMatrixSet:       *tms,
		SpecialCRS:          &tms.CRS,
		SpecialTileMatrices: tileMatrices,
	})
}

func (tms *TileMatrixSet) UnmarshalJSON(data []byte) error {
	err := defaults.Set(tms)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, tms, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	tms.CRS, err = unmarshalCRS(rawCrs)
	if err != nil {
		return err
	}

	rawTileMatrices, ok := specials["tileMatrices"]
	if !ok {
		return fmt.Errorf(`missing key "tileMatrices"`)
	}
	tms.TileMatrices, err = unmarshalTileMatrices(rawTileMatrices)
	if err != nil {
		return err
	}

	return validate.Struct(tms)
}

func unmarshalTileMatrices(rawTileMatrices interface{}) (map[TMID]TileMatrix, error) {
	rawTileMatricesList, ok := rawTileMatrices.([]interface{})
	if !ok {
		return nil, fmt.Errorf(`"tileMatrices" should be an array`)
	}
	tileMatrices := make(map[TMID]TileMatrix, len(rawTileMatricesList))
	for _, rawTileMatrix := range rawTileMatricesList {
		var tileMatrix TileMatrix
		if err := tileMatrix.UnmarshalJSONFromMap(rawTileMatrix); err != nil {
			return nil, err
		}
		tileMatrixID, err := strconv.ParseInt(tileMatrix.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("only integer-like ids are supported for tile matrices: %w", err)
		}
		tileMatrices[TMID(tileMatrixID)] = tileMatrix
	}
	return tileMatrices, nil
}

// TileMatrixIDs returns the IDs of the tile matrices, shallowest first
func (tms *TileMatrixSet) TileMatrixIDs() []TMID {
	tmIDs := make([]TMID, 0, len(tms.TileMatrices))
	for tmID := range tms.TileMatrices {
		tmIDs = append(tmIDs, tmID)
	}
	sort.Ints(tmIDs)
	return tmIDs
}

// SRID returns the numeric authority code of the CRS. OGC:CRS84 has no numeric code and maps to 4326,
// which has the same datum with the axes swapped.
func (tms *TileMatrixSet) SRID() (uint, error) {
	authority, code := tms.CRS.AuthorityName(), tms.CRS.AuthorityCode()
	if authority == "OGC" && code == "CRS84" {
		return 4326, nil
	}
	srid, err := strconv.ParseUint(code, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("no numeric SRID for %s:%s: %w", authority, code, err)
	}
	return uint(srid), nil
}

// IsEquivalentTo reports whether two tile matrix sets lay out the same grid:
// same CRS and the same root tile matrix.
func (tms *TileMatrixSet) IsEquivalentTo(other *TileMatrixSet) bool {
	if other == nil || !sameCRS(tms.CRS, other.CRS) {
		return false
	}
	root, ok := tms.TileMatrices[0]
	otherRoot, otherOk := other.TileMatrices[0]
	if !ok || !otherOk {
		return false
	}
	return root.sameGrid(otherRoot)
}

// Size returns the number of tiles (in X and Y) of a tile matrix, as a tile
func (tms *TileMatrixSet) Size(zoom uint) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[TMID(zoom)]
	if !ok {
		return nil, false
	}
	return slippy.NewTile(zoom, tm.MatrixWidth, tm.MatrixHeight), true
}

// Contains reports whether the tile is a valid address in this tile matrix set
func (tms *TileMatrixSet) Contains(tile slippy.Tile) bool {
	tm, ok := tms.TileMatrices[TMID(tile.Z)]
	if !ok {
		return false
	}
	return tile.X < tm.MatrixWidth && tile.Y < tm.MatrixHeight
}

// FromNative returns the tile containing the point at the given zoom
func (tms *TileMatrixSet) FromNative(zoom uint, pt geom.Point) (*slippy.Tile, bool) {
	tm, ok := tms.TileMatrices[TMID(zoom)]
	if !ok {
		return nil, false
	}
	if tm.VariableMatrixWidths != nil {
		return nil, false
	}

	tileSizeX, tileSizeY := tm.TileSpan()
	minX := tm.PointOfOrigin.XY()[0]
	x := int((pt.X() - minX) / tileSizeX)
	if x < 0 || uint(x) >= tm.MatrixWidth {
		return nil, false
	}

	var y int
	switch tm.CornerOfOrigin {
	case BottomLeft:
		minY := tm.PointOfOrigin.XY()[1]
		y = int((pt.Y() - minY) / tileSizeY)
	default:
		maxY := tm.PointOfOrigin.XY()[1]
		y = int((maxY - pt.Y()) / tileSizeY)
	}
	if y < 0 || uint(y) >= tm.MatrixHeight {
		return nil, false
	}

	return slippy.NewTile(zoom, uint(x), uint(y)), true
}

// ToNative returns the top left point of the tile
func (tms *TileMatrixSet) ToNative(tile *slippy.Tile) (geom.Point, bool) {
	topLeftPt := geom.Point{}
	tm, ok := tms.TileMatrices[TMID(tile.Z)]
	if !ok {
		return topLeftPt, false
	}
	if tile.X > tm.MatrixWidth || tile.Y > tm.MatrixHeight {
		// >, not >= because "should be able to take tiles with x and y values 1 higher than the max"
		return topLeftPt, false
	}

	tileSizeX, tileSizeY := tm.TileSpan()
	topLeftPt[0] = tm.PointOfOrigin.XY()[0] + float64(tile.X)*tileSizeX
	switch tm.CornerOfOrigin {
	case BottomLeft:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] + float64(tile.Y+1)*tileSizeY
	default:
		topLeftPt[1] = tm.PointOfOrigin.XY()[1] - float64(tile.Y)*tileSizeY
	}
	return topLeftPt, true
}

// TileExtent returns the extent of a tile in the CRS of the tile matrix set
func (tms *TileMatrixSet) TileExtent(tile slippy.Tile) (geom.Extent, bool) {
	if !tms.Contains(tile) {
		return geom.Extent{}, false
	}
	topLeft, ok := tms.ToNative(&tile)
	if !ok {
		return geom.Extent{}, false
	}
	tileSizeX, tileSizeY := tms.TileMatrices[TMID(tile.Z)].TileSpan()
	return geom.Extent{topLeft.X(), topLeft.Y() - tileSizeY, topLeft.X() + tileSizeX, topLeft.Y()}, true
}

// MatrixBoundingBox returns the bottom left and top right corners of a whole tile matrix
func (tms *TileMatrixSet) MatrixBoundingBox(tmID TMID) (bottomLeft, topRight geom.Point, err error) {
	tm, ok := tms.TileMatrices[tmID]
	if !ok {
		return bottomLeft, topRight, fmt.Errorf("tile matrix %d not in tile matrix set %s", tmID, tms.ID)
	}
	width := float64(tm.MatrixWidth) * float64(tm.TileWidth) * tm.CellSize
	height := float64(tm.MatrixHeight) * float64(tm.TileHeight) * tm.CellSize
	origin := tm.PointOfOrigin.XY()
	switch tm.CornerOfOrigin {
	case BottomLeft:
		bottomLeft = geom.Point{origin[0], origin[1]}
	default:
		bottomLeft = geom.Point{origin[0], origin[1] - height}
	}
	topRight = geom.Point{bottomLeft[0] + width, bottomLeft[1] + height}
	return bottomLeft, topRight, nil
}

// Minimum bounding rectangle surrounding a 2D resource in the CRS indicated elsewhere
type TwoDBoundingBox struct {
	LowerLeft   TwoDPoint `validate:"required" json:"lowerLeft"`
	UpperRight  TwoDPoint `validate:"required" json:"upperRight"`
	CRS         CRS       `json:"-"`
	OrderedAxes []string  `validate:"omitempty,len=2" json:"orderedAxes,omitempty"`
}

func (bb *TwoDBoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TwoDBoundingBox      // not a pointer, because it would cause recursion to this function
		SpecialCRS      *CRS `json:"crs"` // pointer, because crs' structs' MarshalJSON funcs are on pointer
	}{
		TwoDBoundingBox: *bb,
		SpecialCRS:      &bb.CRS,
	})
}

func (bb *TwoDBoundingBox) UnmarshalJSON(data []byte) error {
	err := defaults.Set(bb)
	if err != nil {
		return err
	}

	specials, err := marshmallow.Unmarshal(data, bb, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}

	rawCrs, ok := specials["crs"]
	if !ok {
		return fmt.Errorf(`missing key "crs"`)
	}
	bb.CRS, err = unmarshalCRS(rawCrs)
	if err != nil {
		return err
	}

	return validate.Struct(bb)
}

// Extent returns the bounding box as a geom.Extent
func (bb *TwoDBoundingBox) Extent() geom.Extent {
	return geom.Extent{bb.LowerLeft[0], bb.LowerLeft[1], bb.UpperRight[0], bb.UpperRight[1]}
}

// A 2D Point in the CRS indicated elsewhere
type TwoDPoint [2]float64

func (p TwoDPoint) XY() [2]float64 {
	return p
}
