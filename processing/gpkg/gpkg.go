// Package gpkg writes rendered tiles to a GeoPackage tiles table.
package gpkg

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/pdok/videolayer/processing"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom/encoding/gpkg"
)

const (
	wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
	pseudoMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`
)

// TargetGeopackage writes the tiles of one tile matrix to a tiles table
type TargetGeopackage struct {
	Table    string
	pagesize int
	format   processing.Format
	tileSize uint
	tms      *tms20.TileMatrixSet
	tmID     tms20.TMID
	handle   *gpkg.Handle

	written uint64
	err     error
}

// Options of a GeoPackage target
type Options struct {
	Table    string
	Pagesize int
	Format   processing.Format
	TileSize uint
}

// NewTargetGeopackage opens (or creates) file and prepares the tiles table for tile matrix tmID
func NewTargetGeopackage(file string, tms *tms20.TileMatrixSet, tmID tms20.TMID, options Options) (*TargetGeopackage, error) {
	if options.Format != processing.PNG && options.Format != processing.JPEG {
		return nil, fmt.Errorf("a GeoPackage can not hold %q tiles", string(options.Format))
	}
	if options.Pagesize < 1 {
		options.Pagesize = 1
	}
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage: %w", err)
	}
	target := &TargetGeopackage{
		Table:    options.Table,
		pagesize: options.Pagesize,
		format:   options.Format,
		tileSize: options.TileSize,
		tms:      tms,
		tmID:     tmID,
		handle:   handle,
	}
	if err = target.createTables(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("error initializing the target GeoPackage: %w", err)
	}
	return target, nil
}

func (target *TargetGeopackage) Close() error {
	closeErr := target.handle.Close()
	return errors.Join(target.err, closeErr)
}

// Written is the number of tiles written so far
func (target *TargetGeopackage) Written() uint64 {
	return target.written
}

// SpatialReferenceSystem returns the GeoPackage SRS of a tile matrix set. CRS84 is stored as EPSG:4326.
func SpatialReferenceSystem(tms *tms20.TileMatrixSet) (gpkg.SpatialReferenceSystem, error) {
	srid, err := tms.SRID()
	if err != nil {
		return gpkg.SpatialReferenceSystem{}, fmt.Errorf("no GeoPackage SRS: %w", err)
	}
	id := int(srid)
	authority, code := tms.CRS.AuthorityName(), tms.CRS.AuthorityCode()
	if id == 4326 {
		authority, code = "EPSG", "4326"
	}
	srs := gpkg.SpatialReferenceSystem{
		Name:                   tms.CRS.Description(),
		ID:                     id,
		Organization:           authority,
		OrganizationCoordsysID: id,
		Definition:             "undefined",
	}
	switch id {
	case 4326:
		srs.Name = "WGS 84 geodetic"
		srs.Definition = wgs84WKT
	case 3857:
		srs.Name = "WGS 84 / Pseudo-Mercator"
		srs.Definition = pseudoMercatorWKT
	}
	if srs.Name == "" {
		srs.Name = authority + ":" + code
	}
	return srs, nil
}

func (target *TargetGeopackage) createTables() error {
	srs, err := SpatialReferenceSystem(target.tms)
	if err != nil {
		return err
	}
	if err = target.handle.UpdateSRS(srs); err != nil {
		return err
	}
	tm, ok := target.tms.TileMatrices[target.tmID]
	if !ok {
		return fmt.Errorf("tile matrix %d not in tile matrix set %s", target.tmID, target.tms.ID)
	}
	bottomLeft, topRight, err := target.tms.MatrixBoundingBox(target.tmID)
	if err != nil {
		return err
	}
	spanX, spanY := tm.TileSpan()
	tileSize := target.tileSize
	if tileSize == 0 {
		tileSize = tm.TileWidth
	}

	statements := []struct {
		query string
		args  []interface{}
	}{
		{query: createTileMatrixSetSQL},
		{query: createTileMatrixSQL},
		{query: target.createSQL()},
		{
			query: `INSERT OR REPLACE INTO gpkg_contents(table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id) VALUES(?, 'tiles', ?, ?, ?, ?, ?, ?, ?)`,
			args:  []interface{}{target.Table, target.Table, target.tms.Title, bottomLeft.X(), bottomLeft.Y(), topRight.X(), topRight.Y(), srs.ID},
		},
		{
			query: `INSERT OR REPLACE INTO gpkg_tile_matrix_set(table_name, srs_id, min_x, min_y, max_x, max_y) VALUES(?, ?, ?, ?, ?, ?)`,
			args:  []interface{}{target.Table, srs.ID, bottomLeft.X(), bottomLeft.Y(), topRight.X(), topRight.Y()},
		},
		{
			query: `INSERT OR REPLACE INTO gpkg_tile_matrix(table_name, zoom_level, matrix_width, matrix_height, tile_width, tile_height, pixel_x_size, pixel_y_size) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			args: []interface{}{target.Table, target.tmID, tm.MatrixWidth, tm.MatrixHeight, tileSize, tileSize,
				spanX / float64(tileSize), spanY / float64(tileSize)},
		},
	}
	for _, s := range statements {
		if _, err = target.handle.Exec(s.query, s.args...); err != nil {
			return fmt.Errorf("%s: %w", s.query, err)
		}
	}
	return nil
}

const createTileMatrixSetSQL = `CREATE TABLE IF NOT EXISTS gpkg_tile_matrix_set (
	table_name TEXT NOT NULL PRIMARY KEY,
	srs_id INTEGER NOT NULL,
	min_x DOUBLE NOT NULL,
	min_y DOUBLE NOT NULL,
	max_x DOUBLE NOT NULL,
	max_y DOUBLE NOT NULL,
	CONSTRAINT fk_gtms_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gtms_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id));`

const createTileMatrixSQL = `CREATE TABLE IF NOT EXISTS gpkg_tile_matrix (
	table_name TEXT NOT NULL,
	zoom_level INTEGER NOT NULL,
	matrix_width INTEGER NOT NULL,
	matrix_height INTEGER NOT NULL,
	tile_width INTEGER NOT NULL,
	tile_height INTEGER NOT NULL,
	pixel_x_size DOUBLE NOT NULL,
	pixel_y_size DOUBLE NOT NULL,
	CONSTRAINT pk_ttm PRIMARY KEY (table_name, zoom_level),
	CONSTRAINT fk_tmm_table_name FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name));`

// createSQL creates the CREATE statement of the tiles table
func (target *TargetGeopackage) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v" (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zoom_level INTEGER NOT NULL,
	tile_column INTEGER NOT NULL,
	tile_row INTEGER NOT NULL,
	tile_data BLOB NOT NULL,
	UNIQUE (zoom_level, tile_column, tile_row));`, target.Table)
}

// insertSQL used for writing the tiles, a tile written twice replaces the first one
func (target *TargetGeopackage) insertSQL() string {
	return `INSERT OR REPLACE INTO "` + target.Table + `"(zoom_level, tile_column, tile_row, tile_data) VALUES(?, ?, ?, ?)`
}

// WriteTiles collects the tiles and writes them per page in one transaction.
// After the first error the remaining tiles are drained and Close reports the error.
func (target *TargetGeopackage) WriteTiles(tiles <-chan processing.Tile) {
	var page []processing.Tile

	for {
		tile, hasMore := <-tiles
		if !hasMore {
			target.writeTiles(page)
			break
		}
		if target.err != nil {
			continue
		}
		page = append(page, tile)
		if len(page)%target.pagesize == 0 {
			target.writeTiles(page)
			page = nil
		}
	}
	log.Printf("    wrote %d tiles to %s", target.written, target.Table)
}

func (target *TargetGeopackage) writeTiles(page []processing.Tile) {
	if len(page) == 0 || target.err != nil {
		return
	}
	tx, err := target.handle.Begin()
	if err != nil {
		target.err = fmt.Errorf("could not start a transaction: %w", err)
		return
	}
	stmt, err := tx.Prepare(target.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		target.err = fmt.Errorf("could not prepare a statement: %w", err)
		return
	}
	defer stmt.Close()

	var buf bytes.Buffer
	for _, tile := range page {
		address := tile.Address()
		buf.Reset()
		if err = target.format.Encode(&buf, tile.Image()); err != nil {
			_ = tx.Rollback()
			target.err = fmt.Errorf("could not encode tile %d/%d/%d: %w", address.Z, address.X, address.Y, err)
			return
		}
		row := address.Y
		if tm := target.tms.TileMatrices[target.tmID]; tm.CornerOfOrigin == tms20.BottomLeft {
			// tile rows in a GeoPackage count from the top
			row = tm.MatrixHeight - 1 - address.Y
		}
		if _, err = stmt.Exec(address.Z, address.X, row, buf.Bytes()); err != nil {
			_ = tx.Rollback()
			target.err = fmt.Errorf("could not write tile %d/%d/%d: %w", address.Z, address.X, address.Y, err)
			return
		}
	}
	if err = tx.Commit(); err != nil {
		target.err = fmt.Errorf("could not commit: %w", err)
		return
	}
	target.written += uint64(len(page))
}
