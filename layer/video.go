package layer

import (
	"context"
	"image"
	"image/color"
	"log"
	"sync"

	"github.com/pdok/videolayer/config"
	"github.com/pdok/videolayer/mathhelp"
	"github.com/pdok/videolayer/media"
	"github.com/pdok/videolayer/texwin"
	"github.com/pdok/videolayer/tms20"

	"github.com/go-spatial/geom/slippy"
	"golang.org/x/image/draw"
)

// Driver is the name the video layer is registered under
const Driver = "video"

func init() {
	Register(Driver, func(conf *config.Config) (Layer, error) {
		options := NewVideoLayerOptions()
		if err := options.FromConfig(conf); err != nil {
			return nil, err
		}
		l := NewVideoLayer(options, nil)
		track(l.Name(), l)
		return l, nil
	})
}

// Resolver turns a URL into an image or a stream
type Resolver interface {
	Resolve(ctx context.Context, url string) (media.Resource, error)
}

// VideoLayer drapes one video frame (or still image) over the two tiles of the global geodetic profile at level 0
type VideoLayer struct {
	resolver Resolver

	mu         sync.RWMutex
	options    VideoLayerOptions
	openCalled bool
	status     Status
	resource   media.Resource
	profile    *tms20.TileMatrixSet
}

// NewVideoLayer returns an unopened layer. A nil resolver reads files and http(s) URLs.
func NewVideoLayer(options VideoLayerOptions, resolver Resolver) *VideoLayer {
	if resolver == nil {
		resolver = &media.Resolver{}
	}
	return &VideoLayer{
		resolver: resolver,
		options:  options,
		status:   StatusError(ResourceUnavailable, "Layer not open"),
	}
}

// Open loads the source and sets the profile. Only the first call does work, later calls return the same status.
func (l *VideoLayer) Open(ctx context.Context) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openCalled {
		return l.status
	}
	l.openCalled = true

	url := l.options.URL
	if url == "" {
		l.status = StatusError(ConfigurationError, "Missing required url")
		return l.status
	}

	resource, err := l.resolver.Resolve(ctx, url)
	if err != nil {
		log.Printf("failed to load %s: %v", url, err)
		l.status = StatusError(ServiceUnavailable, "Failed to load "+url)
		return l.status
	}
	profile, err := tms20.LoadEmbeddedTileMatrixSet(tms20.GlobalGeodetic)
	if err != nil {
		l.status = StatusError(ConfigurationError, err.Error())
	} else {
		l.profile = &profile
		l.status = l.openImageLayer()
	}
	if !l.status.OK() {
		// open is not retried, nothing will ever read this resource
		if err = resource.Close(); err != nil {
			log.Printf("failed to close %s: %v", url, err)
		}
		return l.status
	}
	l.resource = resource

	if stream, ok := resource.(media.Stream); ok && l.options.Enabled {
		stream.SetLooping(media.Looping)
		// playback outlives the open call, it stops on Close
		stream.Play(context.Background())
	}
	return l.status
}

// openImageLayer runs the checks every image layer does once its profile is known.
// A disabled layer opens fine but has no data.
func (l *VideoLayer) openImageLayer() Status {
	if err := l.options.Validate(); err != nil {
		return StatusError(ConfigurationError, err.Error())
	}
	if err := profileIsGlobalGeodetic(l.options.ProfileID, l.profile); err != nil {
		return StatusError(ConfigurationError, err.Error())
	}
	return StatusOK()
}

func (l *VideoLayer) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *VideoLayer) Profile() *tms20.TileMatrixSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.profile
}

func (l *VideoLayer) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.options.Name
}

func (l *VideoLayer) Attribution() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.options.Attribution
}

func (l *VideoLayer) SetAttribution(attribution string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.options.Attribution = attribution
}

func (l *VideoLayer) Opacity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.options.Opacity
}

// SetOpacity sets the opacity, clamped to [0, 1]
func (l *VideoLayer) SetOpacity(opacity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.options.Opacity = mathhelp.Clamp(opacity, 0, 1)
}

// Resource returns the loaded image or stream, nil before open
func (l *VideoLayer) Resource() media.Resource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resource
}

// Config returns the options of the layer as a config
func (l *VideoLayer) Config() *config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.options.GetConfig()
}

// CreateTexture returns the window on the current frame for tile.
// The window is empty above level 0, for tiles outside the two level 0 tiles and for a disabled layer.
// ctx is only checked for cancellation.
func (l *VideoLayer) CreateTexture(ctx context.Context, tile slippy.Tile) (texwin.TextureWindow, error) {
	if err := ctx.Err(); err != nil {
		return texwin.TextureWindow{}, err
	}
	l.mu.RLock()
	status, resource, enabled := l.status, l.resource, l.options.Enabled
	l.mu.RUnlock()
	if !status.OK() {
		return texwin.TextureWindow{}, status.Err()
	}
	if !enabled {
		return texwin.TextureWindow{}, nil
	}
	return texwin.Window(tile, resource), nil
}

// CreateImage renders the texture window of tile into a tile sized image. It returns texwin.ErrNoData for an empty window.
func (l *VideoLayer) CreateImage(ctx context.Context, tile slippy.Tile) (GeoImage, error) {
	window, err := l.CreateTexture(ctx, tile)
	if err != nil {
		return GeoImage{}, err
	}
	l.mu.RLock()
	size := int(l.options.TileSize)
	opacity := l.options.Opacity
	profile := l.profile
	l.mu.RUnlock()

	extent, ok := profile.TileExtent(tile)
	if !ok {
		return GeoImage{}, texwin.ErrNoData
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if err = texwin.Render(img, window, draw.ApproxBiLinear); err != nil {
		return GeoImage{}, err
	}
	if opacity < 1 {
		img = fade(img, opacity)
	}
	return GeoImage{Image: img, Extent: extent, Tile: tile}, nil
}

func fade(img *image.RGBA, opacity float64) *image.RGBA {
	faded := image.NewRGBA(img.Bounds())
	mask := image.NewUniform(color.Alpha16{A: uint16(opacity * 0xffff)})
	draw.DrawMask(faded, faded.Bounds(), img, img.Bounds().Min, mask, image.Point{}, draw.Src)
	return faded
}

// Close stops playback and releases the source. The layer can not be opened again.
func (l *VideoLayer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = StatusError(ResourceUnavailable, "Layer closed")
	if l.resource == nil {
		return nil
	}
	err := l.resource.Close()
	l.resource = nil
	return err
}

var _ Layer = (*VideoLayer)(nil)
