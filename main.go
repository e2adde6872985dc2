package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"

	"github.com/pdok/videolayer/config"
	"github.com/pdok/videolayer/layer"
	"github.com/pdok/videolayer/processing"
	"github.com/pdok/videolayer/processing/dir"
	"github.com/pdok/videolayer/processing/gpkg"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom/slippy"
	"github.com/icza/mjpeg"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/urfave/cli/v2"
)

const URL string = `url`
const LAYERCONFIG string = `layerConfig`
const TARGET string = `target`
const FORMAT string = `format`
const OVERWRITE string = `overwrite`
const TILEMATRICES string = `tilematrices`
const PAGESIZE string = `pagesize`
const TILESIZE string = `tileSize`
const TILE string = `tile`
const FRAMES string = `frames`
const FPS string = `fps`
const WIDTH string = `width`
const TILEMATRIXSET string = `tilematrixset`

func layerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    URL,
			Aliases: []string{"u"},
			Usage:   "URL (or path) of the video or image to drape over the globe",
			EnvVars: []string{strcase.ToScreamingSnake(URL)},
		},
		&cli.StringFlag{
			Name:    LAYERCONFIG,
			Aliases: []string{"l"},
			Usage:   "YAML or JSON layer config, instead of --url. E.g. {video: {name: world, url: world.gif}}",
			EnvVars: []string{strcase.ToScreamingSnake(LAYERCONFIG)},
		},
		&cli.UintFlag{
			Name:    TILESIZE,
			Usage:   "Width and height in pixels of the rendered tiles, when not in the layer config",
			Value:   256,
			EnvVars: []string{strcase.ToScreamingSnake(TILESIZE)},
		},
	}
}

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "videolayer"
	app.Usage = "Drape a video (or image) over the globe and render it as map tiles"
	app.Version = versioninfo.Short()

	app.Commands = []*cli.Command{
		{
			Name:  "export",
			Usage: "Render all tiles of the layer into GeoPackages (target ending in .gpkg) or a directory",
			Flags: append(layerFlags(),
				&cli.StringFlag{
					Name:     TARGET,
					Aliases:  []string{"t"},
					Usage:    "Target GPKG (prefix) or directory. One GPKG per tile matrix will be created and the filename will be suffixed. E.g. target_0.gpkg",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(TARGET)},
				},
				&cli.StringFlag{
					Name:    FORMAT,
					Aliases: []string{"f"},
					Usage:   "Tile format: png, jpg or tif (directory only)",
					Value:   "png",
					EnvVars: []string{strcase.ToScreamingSnake(FORMAT)},
				},
				&cli.BoolFlag{
					Name:    OVERWRITE,
					Aliases: []string{"o"},
					Usage:   "Overwrite a target GPKG if it exists",
					EnvVars: []string{strcase.ToScreamingSnake(OVERWRITE)},
				},
				&cli.StringFlag{
					Name:    TILEMATRICES,
					Aliases: []string{"z"},
					Usage:   `IDs of the tile matrices (zoom levels) to render. JSON array of integers. Only level 0 has data. E.g.: [0,1]`,
					Value:   "[0]",
					EnvVars: []string{strcase.ToScreamingSnake(TILEMATRICES)},
				},
				&cli.IntFlag{
					Name:    PAGESIZE,
					Aliases: []string{"p"},
					Usage:   "Page Size, how many tiles are written per transaction to a target GPKG",
					Value:   100,
					EnvVars: []string{strcase.ToScreamingSnake(PAGESIZE)},
				},
			),
			Action: export,
		},
		{
			Name:  "record",
			Usage: "Play the layer and record one tile as an MJPEG AVI",
			Flags: append(layerFlags(),
				&cli.StringFlag{
					Name:     TARGET,
					Aliases:  []string{"t"},
					Usage:    "Target AVI file",
					Required: true,
					EnvVars:  []string{strcase.ToScreamingSnake(TARGET)},
				},
				&cli.StringFlag{
					Name:    TILE,
					Usage:   "Tile to record as z/x/y",
					Value:   "0/0/0",
					EnvVars: []string{strcase.ToScreamingSnake(TILE)},
				},
				&cli.IntFlag{
					Name:    FRAMES,
					Usage:   "Number of frames to record",
					Value:   100,
					EnvVars: []string{strcase.ToScreamingSnake(FRAMES)},
				},
				&cli.IntFlag{
					Name:    FPS,
					Usage:   "Frames per second",
					Value:   10,
					EnvVars: []string{strcase.ToScreamingSnake(FPS)},
				},
			),
			Action: record,
		},
		{
			Name:  "info",
			Usage: "Open the layer and print its status, profile and config",
			Flags: append(layerFlags(),
				&cli.IntFlag{
					Name:    WIDTH,
					Usage:   "Wrap output at this width",
					Value:   80,
					EnvVars: []string{strcase.ToScreamingSnake(WIDTH)},
				},
			),
			Action: info,
		},
		{
			Name:  "tms",
			Usage: "Print a built-in tile matrix set as JSON",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    TILEMATRIXSET,
					Aliases: []string{"tms"},
					Usage:   fmt.Sprintf("ID of a built-in tile matrix set. One of: %s", strings.Join(tms20.EmbeddedTileMatrixSetIDs(), ", ")),
					Value:   tms20.GlobalGeodetic,
					EnvVars: []string{strcase.ToScreamingSnake(TILEMATRIXSET)},
				},
			},
			Action: func(c *cli.Context) error {
				tileMatrixSet, err := tms20.LoadEmbeddedTileMatrixSet(c.String(TILEMATRIXSET))
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(&tileMatrixSet, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// openLayer creates and opens the layer described by the flags
func openLayer(c *cli.Context) (layer.Layer, error) {
	var l layer.Layer
	if file := c.String(LAYERCONFIG); file != "" {
		conf, err := readLayerConfig(file)
		if err != nil {
			return nil, err
		}
		if l, err = layer.Create(conf); err != nil {
			return nil, err
		}
	} else {
		options := layer.NewVideoLayerOptions()
		options.URL = c.String(URL)
		options.TileSize = c.Uint(TILESIZE)
		l = layer.NewVideoLayer(options, nil)
	}

	status := l.Open(c.Context)
	if !status.OK() {
		_ = l.Close()
		return nil, status.Err()
	}
	return l, nil
}

// readLayerConfig reads the first layer of a YAML or JSON file
func readLayerConfig(file string) (*config.Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var root *config.Config
	if strings.EqualFold(filepath.Ext(file), ".json") {
		root, err = config.ParseJSON(data)
	} else {
		root, err = config.ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read layer config %s: %w", file, err)
	}
	children := root.Children()
	if len(children) == 0 {
		return nil, fmt.Errorf("no layer in %s", file)
	}
	return children[0], nil
}

func export(c *cli.Context) error {
	format, err := processing.ParseFormat(c.String(FORMAT))
	if err != nil {
		return err
	}
	var tileMatrixIDs []tms20.TMID
	err = json.Unmarshal([]byte(c.String(TILEMATRICES)), &tileMatrixIDs)
	if err != nil {
		return err
	}

	l, err := openLayer(c)
	if err != nil {
		return err
	}
	defer l.Close()

	profile := l.Profile()
	source, err := processing.NewMatrixSource(profile, tileMatrixIDs)
	if err != nil {
		return err
	}

	targets := make(map[tms20.TMID]processing.Target, len(tileMatrixIDs))
	var closers []func() error
	defer func() {
		for _, closeTarget := range closers {
			if err := closeTarget(); err != nil {
				log.Printf("error closing target: %v", err)
			}
		}
	}()

	target := c.String(TARGET)
	if strings.EqualFold(path.Ext(target), ".gpkg") {
		targetPathFmt := injectSuffixIntoPath(target)
		var tileSize uint
		if err = config.Lookup(l.Config(), "tileSize", &tileSize); err != nil {
			return err
		}
		for _, tmID := range tileMatrixIDs {
			gpkgTarget, err := initGPKGTarget(targetPathFmt, tmID, c.Bool(OVERWRITE), gpkg.Options{
				Table:    tableName(l.Name()),
				Pagesize: c.Int(PAGESIZE),
				Format:   format,
				TileSize: tileSize,
			}, profile)
			if err != nil {
				return err
			}
			targets[tmID] = gpkgTarget
			closers = append(closers, gpkgTarget.Close)
		}
	} else {
		for _, tmID := range tileMatrixIDs {
			dirTarget, err := dir.NewTargetDirectory(target, format)
			if err != nil {
				return err
			}
			targets[tmID] = dirTarget
			closers = append(closers, dirTarget.Err)
		}
	}

	log.Println("=== start rendering ===")
	stats := processing.ProcessTiles(source, targets, func(tile slippy.Tile) (image.Image, error) {
		geoImage, err := l.CreateImage(c.Context, tile)
		if err != nil {
			return nil, err
		}
		return geoImage.Image, nil
	})
	log.Println("=== done rendering ===")

	if stats.Failed > 0 {
		return fmt.Errorf("%d tiles could not be rendered", stats.Failed)
	}
	return nil
}

func record(c *cli.Context) error {
	tile, err := parseTile(c.String(TILE))
	if err != nil {
		return err
	}
	fps := c.Int(FPS)
	if fps < 1 {
		return fmt.Errorf("invalid fps %d", fps)
	}
	l, err := openLayer(c)
	if err != nil {
		return err
	}
	defer l.Close()

	var tileSize uint
	if err = config.Lookup(l.Config(), "tileSize", &tileSize); err != nil {
		return err
	}
	writer, err := mjpeg.New(c.String(TARGET), int32(tileSize), int32(tileSize), int32(fps))
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	frames := c.Int(FRAMES)
	var buf bytes.Buffer
	for i := 0; i < frames; i++ {
		geoImage, err := l.CreateImage(c.Context, tile)
		if err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to render frame %d: %w", i, err)
		}
		buf.Reset()
		if err = jpeg.Encode(&buf, geoImage.Image, &jpeg.Options{Quality: 90}); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to encode frame %d as JPEG: %w", i, err)
		}
		if err = writer.AddFrame(buf.Bytes()); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to add frame %d: %w", i, err)
		}
		select {
		case <-c.Context.Done():
			_ = writer.Close()
			return c.Context.Err()
		case <-ticker.C:
		}
	}
	if err = writer.Close(); err != nil {
		return err
	}
	log.Printf("recorded %d frames of tile %s to %s", frames, c.String(TILE), c.String(TARGET))
	return nil
}

func info(c *cli.Context) error {
	width := c.Int(WIDTH)
	if width < 20 {
		width = 20
	}
	l, err := openLayer(c)
	if err != nil {
		return err
	}
	defer l.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\n", l.Name())
	fmt.Fprintf(&b, "status: %s\n", l.Status())
	if profile := l.Profile(); profile != nil {
		fmt.Fprintf(&b, "profile: %s (%s)\n", profile.ID, profile.Title)
		// only level 0 has data
		if size, ok := profile.Size(0); ok {
			fmt.Fprintf(&b, "  level 0: %dx%d tiles\n", size.X, size.Y)
			for x := uint(0); x < size.X; x++ {
				extent, _ := profile.TileExtent(slippy.Tile{Z: 0, X: x})
				fmt.Fprintf(&b, "  tile 0/%d/0: %v\n", x, extent)
			}
		}
	}
	if videoLayer, ok := l.(*layer.VideoLayer); ok {
		fmt.Fprintf(&b, "source: %v\n", videoLayer.Resource())
		if attribution := videoLayer.Attribution(); attribution != "" {
			fmt.Fprintf(&b, "attribution: %s\n", attribution)
		}
	}
	fmt.Fprintf(&b, "drivers: %s\n", strings.Join(layer.Drivers(), ", "))
	fmt.Print(wordwrap.String(b.String(), width))

	fmt.Println("config:")
	conf, err := l.Config().MarshalYAMLBytes()
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(string(conf), "\n"), "\n") {
		fmt.Println("  " + truncate.StringWithTail(line, uint(width-2), "..."))
	}
	return nil
}

func initGPKGTarget(targetPathFmt string, tmID int, overwrite bool, options gpkg.Options, profile *tms20.TileMatrixSet) (*gpkg.TargetGeopackage, error) {
	targetPath := fmt.Sprintf(targetPathFmt, tmID)
	if overwrite {
		err := os.Remove(targetPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not remove target file: %w", err)
		}
	}
	return gpkg.NewTargetGeopackage(targetPath, profile, tmID, options)
}

func injectSuffixIntoPath(p string) string {
	parent, file := path.Split(p)
	ext := path.Ext(file)
	name := file[:len(file)-len(ext)]
	return path.Join(parent, name+"_%v"+ext)
}

// tableName turns a layer name into a table name, "tiles" for a layer without name
func tableName(layerName string) string {
	if layerName == "" {
		return "tiles"
	}
	return strcase.ToSnake(layerName)
}

// parseTile parses z/x/y
func parseTile(s string) (slippy.Tile, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return slippy.Tile{}, fmt.Errorf("invalid tile %q, expected z/x/y", s)
	}
	var zxy [3]uint
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 0)
		if err != nil {
			return slippy.Tile{}, fmt.Errorf("invalid tile %q: %w", s, err)
		}
		zxy[i] = uint(v)
	}
	return slippy.Tile{Z: zxy[0], X: zxy[1], Y: zxy[2]}, nil
}
