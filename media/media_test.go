package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdok/videolayer/texwin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var palette = color.Palette{
	color.RGBA{A: 0x00},
	color.RGBA{R: 0xff, A: 0xff},
	color.RGBA{G: 0xff, A: 0xff},
	color.RGBA{B: 0xff, A: 0xff},
}

func solidFrame(r image.Rectangle, index uint8) *image.Paletted {
	p := image.NewPaletted(r, palette)
	for i := range p.Pix {
		p.Pix[i] = index
	}
	return p
}

// testGIF has three 4x2 frames: red for 100ms, green for 200ms, and a blue left half for 300ms
func testGIF() *gif.GIF {
	full := image.Rect(0, 0, 4, 2)
	return &gif.GIF{
		Image: []*image.Paletted{
			solidFrame(full, 1),
			solidFrame(full, 2),
			solidFrame(image.Rect(0, 0, 2, 2), 3),
		},
		Delay:    []int{10, 20, 30},
		Disposal: []byte{gif.DisposalNone, gif.DisposalNone, gif.DisposalNone},
		Config:   image.Config{ColorModel: palette, Width: 4, Height: 2},
	}
}

func encodeGIF(t *testing.T, g *gif.GIF) []byte {
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func encodePNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewGIFStream(t *testing.T) {
	s, err := NewGIFStream(testGIF())
	require.NoError(t, err)

	assert.Equal(t, 3, s.FrameCount())
	assert.Equal(t, 600*time.Millisecond, s.Duration())
	assert.Equal(t, texwin.TopLeft, s.Origin())
	assert.Equal(t, 0, s.CurrentFrame())

	// the third frame only covers the left half, the right half still shows the second frame
	s.Seek(400 * time.Millisecond)
	img := s.Image()
	assert.Equal(t, color.RGBAModel.Convert(palette[3]), img.At(0, 0))
	assert.Equal(t, color.RGBAModel.Convert(palette[2]), img.At(3, 1))
}

func TestNewGIFStream_disposalBackground(t *testing.T) {
	g := testGIF()
	g.Disposal[1] = gif.DisposalBackground
	s, err := NewGIFStream(g)
	require.NoError(t, err)

	s.Seek(400 * time.Millisecond)
	_, _, _, a := s.Image().At(3, 1).RGBA()
	assert.Equal(t, uint32(0), a)
}

func TestNewGIFStream_empty(t *testing.T) {
	_, err := NewGIFStream(&gif.GIF{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestGIFStream_FrameAt(t *testing.T) {
	s, err := NewGIFStream(testGIF())
	require.NoError(t, err)

	tests := []struct {
		offset  time.Duration
		looping LoopMode
		want    int
	}{
		{offset: -time.Second, want: 0},
		{offset: 0, want: 0},
		{offset: 99 * time.Millisecond, want: 0},
		{offset: 100 * time.Millisecond, want: 1},
		{offset: 299 * time.Millisecond, want: 1},
		{offset: 300 * time.Millisecond, want: 2},
		{offset: 700 * time.Millisecond, want: 2},
		{offset: 700 * time.Millisecond, looping: Looping, want: 1},
		{offset: 1200 * time.Millisecond, looping: Looping, want: 0},
	}
	for _, tt := range tests {
		s.SetLooping(tt.looping)
		assert.Equalf(t, tt.want, s.FrameAt(tt.offset), "FrameAt(%v), looping %v", tt.offset, tt.looping)
	}
}

func TestGIFStream_delays(t *testing.T) {
	g := testGIF()
	g.Delay = []int{10, 0, 30}
	s, err := NewGIFStream(g)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, s.Duration())
	assert.Equal(t, 100*time.Millisecond, s.delayOf(0))
	assert.Equal(t, defaultDelay, s.delayOf(1))
	assert.Equal(t, 300*time.Millisecond, s.delayOf(2))
	assert.Equal(t, 1, s.FrameAt(199*time.Millisecond))
	assert.Equal(t, 2, s.FrameAt(200*time.Millisecond))
}

func TestGIFStream_Play(t *testing.T) {
	g := testGIF()
	g.Delay = []int{1, 1, 1}
	s, err := NewGIFStream(g)
	require.NoError(t, err)
	s.SetLooping(Looping)

	s.Play(context.Background())
	assert.True(t, s.Playing())
	seen := map[int]bool{}
	require.Eventually(t, func() bool {
		seen[s.CurrentFrame()] = true
		return len(seen) == 3
	}, 5*time.Second, time.Millisecond)

	s.Pause()
	assert.False(t, s.Playing())
	require.NoError(t, s.Close())
}

func TestGIFStream_PlayEndsWithoutLooping(t *testing.T) {
	g := testGIF()
	g.Delay = []int{1, 1, 1}
	s, err := NewGIFStream(g)
	require.NoError(t, err)

	s.Play(context.Background())
	require.Eventually(t, func() bool { return !s.Playing() }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 2, s.CurrentFrame())
	require.NoError(t, s.Close())
}

func TestGIFStream_PlayStopsWithContext(t *testing.T) {
	s, err := NewGIFStream(testGIF())
	require.NoError(t, err)
	s.SetLooping(Looping)

	ctx, cancel := context.WithCancel(context.Background())
	s.Play(ctx)
	cancel()
	require.Eventually(t, func() bool { return !s.Playing() }, 5*time.Second, time.Millisecond)
	require.NoError(t, s.Close())
}

func TestDecode(t *testing.T) {
	res, err := Decode(encodeGIF(t, testGIF()))
	require.NoError(t, err)
	assert.IsType(t, &GIFStream{}, res)

	single := testGIF()
	single.Image = single.Image[:1]
	single.Delay = single.Delay[:1]
	single.Disposal = single.Disposal[:1]
	res, err = Decode(encodeGIF(t, single))
	require.NoError(t, err)
	assert.IsType(t, &Still{}, res)

	res, err = Decode(encodePNG(t))
	require.NoError(t, err)
	require.IsType(t, &Still{}, res)
	assert.Equal(t, image.Rect(0, 0, 4, 2), res.Image().Bounds())
	assert.Equal(t, texwin.TopLeft, res.Origin())

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "world.png")
	require.NoError(t, os.WriteFile(pngPath, encodePNG(t), 0o600))
	gifPath := filepath.Join(dir, "world.gif")
	require.NoError(t, os.WriteFile(gifPath, encodeGIF(t, testGIF()), 0o600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/world.png":
			_, _ = w.Write(encodePNG(t))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tests := []struct {
		name     string
		url      string
		wantType interface{}
		wantErr  bool
	}{
		{name: "bare path", url: pngPath, wantType: &Still{}},
		{name: "file url", url: "file://" + filepath.ToSlash(pngPath), wantType: &Still{}},
		{name: "animated gif", url: gifPath, wantType: &GIFStream{}},
		{name: "http", url: server.URL + "/world.png", wantType: &Still{}},
		{name: "http not found", url: server.URL + "/nope.png", wantErr: true},
		{name: "missing file", url: filepath.Join(dir, "nope.png"), wantErr: true},
		{name: "unsupported scheme", url: "ftp://example.com/world.png", wantErr: true},
	}
	r := &Resolver{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, res)
			require.NoError(t, res.Close())
		})
	}
}
