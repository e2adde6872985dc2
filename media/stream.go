package media

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdok/videolayer/mathhelp"
	"github.com/pdok/videolayer/texwin"

	"github.com/umpc/go-sortedmap"
)

// LoopMode tells a stream what to do at its end
type LoopMode int32

const (
	NoLooping LoopMode = iota
	Looping
)

// defaultDelay is used for frames without a delay, like browsers do
const defaultDelay = 100 * time.Millisecond

// Stream is a resource whose frame changes over time
type Stream interface {
	Resource
	SetLooping(LoopMode)
	Play(ctx context.Context)
	Pause()
	Playing() bool
	Duration() time.Duration
	Seek(offset time.Duration)
}

// GIFStream plays an animated GIF.
//
// All frames are composed up front into immutable images, playback only swaps which one is current.
// Readers therefore never see a partially drawn frame and need no lock: latest frame only, nothing is queued.
type GIFStream struct {
	frames []*image.RGBA
	// frame index to start offset, sorted by offset. Only read after construction.
	timeline *sortedmap.SortedMap
	duration time.Duration

	current atomic.Int64
	looping atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	playing atomic.Bool
}

// NewGIFStream composes the frames of g, honouring their disposal methods
func NewGIFStream(g *gif.GIF) (*GIFStream, error) {
	if len(g.Image) == 0 {
		return nil, ErrEmpty
	}
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}

	s := &GIFStream{
		frames: make([]*image.RGBA, 0, len(g.Image)),
		timeline: sortedmap.New(len(g.Image), func(x, y interface{}) bool {
			return x.(time.Duration) < y.(time.Duration)
		}),
	}
	canvas := image.NewRGBA(bounds)
	var offset time.Duration
	for i, paletted := range g.Image {
		var previous *image.RGBA
		disposal := disposalAt(g, i)
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}
		draw.Draw(canvas, paletted.Bounds(), paletted, paletted.Bounds().Min, draw.Over)
		s.frames = append(s.frames, cloneRGBA(canvas))
		s.timeline.Insert(i, offset)
		offset += delayAt(g, i)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, paletted.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	s.duration = offset
	return s, nil
}

func disposalAt(g *gif.GIF, i int) byte {
	if i < len(g.Disposal) {
		return g.Disposal[i]
	}
	return gif.DisposalNone
}

func delayAt(g *gif.GIF, i int) time.Duration {
	if i < len(g.Delay) && g.Delay[i] > 0 {
		return time.Duration(g.Delay[i]) * 10 * time.Millisecond
	}
	return defaultDelay
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func (s *GIFStream) Image() image.Image {
	return s.frames[s.current.Load()]
}

func (s *GIFStream) Origin() texwin.Origin {
	return texwin.TopLeft
}

// FrameCount returns the number of frames in the stream
func (s *GIFStream) FrameCount() int {
	return len(s.frames)
}

// CurrentFrame returns the index of the current frame
func (s *GIFStream) CurrentFrame() int {
	return int(s.current.Load())
}

func (s *GIFStream) Duration() time.Duration {
	return s.duration
}

func (s *GIFStream) SetLooping(mode LoopMode) {
	s.looping.Store(int32(mode))
}

func (s *GIFStream) Looping() LoopMode {
	return LoopMode(s.looping.Load())
}

// FrameAt returns the index of the frame shown at offset. Offsets past the end wrap when looping.
func (s *GIFStream) FrameAt(offset time.Duration) int {
	if offset < 0 {
		return 0
	}
	if offset >= s.duration {
		if s.Looping() != Looping {
			return len(s.frames) - 1
		}
		offset %= s.duration
	}
	// last frame that started at or before offset, the first frame starts at 0
	keys, err := s.timeline.BoundedKeys(nil, offset)
	if err != nil || len(keys) == 0 {
		return 0
	}
	return keys[len(keys)-1].(int)
}

// start returns the start offset of frame i
func (s *GIFStream) start(i int) time.Duration {
	offset, ok := s.timeline.Get(i)
	if !ok {
		return s.duration
	}
	return offset.(time.Duration)
}

// Seek makes the frame at offset the current one
func (s *GIFStream) Seek(offset time.Duration) {
	s.current.Store(int64(s.FrameAt(offset)))
}

// Play starts playback from the current frame. It is a no-op when already playing.
// Playback ends at the last frame, unless looping, or when ctx is done.
func (s *GIFStream) Play(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing.Load() {
		return
	}
	if s.cancel != nil {
		// the previous playback ended by itself
		s.cancel()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.playing.Store(true)
	go s.run(ctx, s.done)
}

func (s *GIFStream) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.playing.Store(false)

	timer := time.NewTimer(s.delayOf(s.CurrentFrame()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		next := s.CurrentFrame() + 1
		if next >= len(s.frames) {
			if s.Looping() != Looping {
				log.Printf("stream ended after %d frames", len(s.frames))
				return
			}
			next = mathhelp.EuclidianMod(next, len(s.frames))
		}
		s.current.Store(int64(next))
		timer.Reset(s.delayOf(next))
	}
}

func (s *GIFStream) delayOf(i int) time.Duration {
	return s.start(i+1) - s.start(i)
}

// Pause stops playback and waits for it to have stopped
func (s *GIFStream) Pause() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *GIFStream) Playing() bool {
	return s.playing.Load()
}

func (s *GIFStream) Close() error {
	s.Pause()
	return nil
}

func (s *GIFStream) String() string {
	return fmt.Sprintf("gif stream, %d frames, %v", len(s.frames), s.duration)
}

var _ Stream = (*GIFStream)(nil)
