// Package media resolves a URL to an image or a playing stream, to be used as the source frame of a layer.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	// decoders, registered with image.Decode
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdok/videolayer/texwin"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrEmpty             = errors.New("resource contains no image")
)

// Resource is a resolved image or stream
type Resource interface {
	texwin.Frame
	Close() error
}

// Still is a single, unchanging image
type Still struct {
	img    image.Image
	origin texwin.Origin
}

func NewStill(img image.Image, origin texwin.Origin) *Still {
	return &Still{img: img, origin: origin}
}

func (s *Still) Image() image.Image {
	return s.img
}

func (s *Still) Origin() texwin.Origin {
	return s.origin
}

func (s *Still) Close() error {
	return nil
}

// Resolver reads images and streams from files and http(s) URLs
type Resolver struct {
	Client *http.Client
}

// Resolve reads the resource at rawURL. Multi-frame GIFs become a (paused) *GIFStream,
// everything else a *Still.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (Resource, error) {
	data, err := r.read(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode turns encoded image data into a resource
func Decode(data []byte) (Resource, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if bytes.HasPrefix(data, []byte("GIF8")) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("could not decode gif: %w", err)
		}
		if len(g.Image) > 1 {
			return NewGIFStream(g)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	return NewStill(img, texwin.TopLeft), nil
}

func (r *Resolver) read(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return os.ReadFile(filepath.FromSlash(rawURL))
	case "file":
		p := u.Path
		if u.Opaque != "" {
			p = u.Opaque
		}
		return os.ReadFile(filepath.FromSlash(p))
	case "http", "https":
		return r.get(ctx, u.String())
	default:
		// a windows drive letter parses as a scheme
		if len(u.Scheme) == 1 {
			return os.ReadFile(rawURL)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func (r *Resolver) get(ctx context.Context, u string) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
