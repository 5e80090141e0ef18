package frameflow

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nirosys/frameflow/data"

	log "github.com/sirupsen/logrus"

	"golang.org/x/time/rate"
)

// FrameSource supplies the frames of a random access streamer by index.
type FrameSource interface {
	NumFrames() int
	Frame(ctx context.Context, index int) (*data.Unit, error)
}

type RandomAccessConfig struct {
	Streamer  StreamerConfig
	Framerate float64 // Frames per second, 0 for unthrottled.
	Looping   bool
	Paused    bool
}

var DefaultRandomAccessConfig = &RandomAccessConfig{
	Streamer: StreamerConfig{
		Outputs: 1,
		Mode:    ModeProcessAll,
		Depth:   1,
	},
}

// RandomAccessStreamer is a streamer over an indexed FrameSource that can be
// paused, resumed and repositioned while running. Frames go out on output 0.
type RandomAccessStreamer struct {
	*Streamer

	source FrameSource

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	current int
	epoch   uint64
	looping bool
	fps     float64
	limiter *rate.Limiter
}

func NewRandomAccessStreamer(name string, source FrameSource, cfg *RandomAccessConfig) *RandomAccessStreamer {
	if cfg == nil {
		cfg = DefaultRandomAccessConfig
	}
	scfg := cfg.Streamer
	if scfg.Outputs < 1 {
		scfg.Outputs = 1
	}

	r := &RandomAccessStreamer{
		source:  source,
		paused:  cfg.Paused,
		looping: cfg.Looping,
	}
	r.cond = sync.NewCond(&r.mu)
	r.setFramerateLocked(cfg.Framerate)

	r.Streamer = NewStreamer(name, GeneratorFunc(r.generate), &scfg)
	r.Streamer.randomAccess = r
	r.Streamer.accept = r.accept
	return r
}

func (r *RandomAccessStreamer) Node() *Node {
	return r.Streamer.Node()
}

func (r *RandomAccessStreamer) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

func (r *RandomAccessStreamer) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	r.cond.Broadcast()
}

func (r *RandomAccessStreamer) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// WaitForUnpause blocks until the streamer is resumed or ctx is done.
func (r *RandomAccessStreamer) WaitForUnpause(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.wake)
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.paused && ctx.Err() == nil {
		r.cond.Wait()
	}
	return ctx.Err()
}

func (r *RandomAccessStreamer) wake() {
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Seek moves playback to index. Frames produced for the previous position
// that have not been pulled yet are dropped, so the next unit delivered is
// the one at index. Seeking after the last frame was produced starts
// playback again from index.
func (r *RandomAccessStreamer) Seek(index int) error {
	total := r.source.NumFrames()
	if index < 0 || index >= total {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrorFrameOutOfRange, index, total)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = index
	r.epoch++
	r.cond.Broadcast()
	return nil
}

// CurrentFrameIndex returns the index of the next frame to be produced.
func (r *RandomAccessStreamer) CurrentFrameIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *RandomAccessStreamer) NumFrames() int {
	return r.source.NumFrames()
}

func (r *RandomAccessStreamer) SetFramerate(fps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setFramerateLocked(fps)
}

func (r *RandomAccessStreamer) setFramerateLocked(fps float64) {
	if fps < 0 || math.IsNaN(fps) {
		fps = 0
	}
	r.fps = fps
	if fps == 0 {
		r.limiter = nil
		return
	}
	r.limiter = rate.NewLimiter(rate.Limit(fps), 1)
}

func (r *RandomAccessStreamer) Framerate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fps
}

func (r *RandomAccessStreamer) SetLooping(looping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.looping = looping
}

func (r *RandomAccessStreamer) IsLooping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.looping
}

func (r *RandomAccessStreamer) accept(f *data.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f.Epoch == r.epoch
}

func (r *RandomAccessStreamer) generate(ctx context.Context, s *Streamer) error {
	logger := log.WithFields(log.Fields{
		"op":       "frameflow:random_access.generate",
		"streamer": s.Name(),
	})

	total := r.source.NumFrames()
	if total <= 0 {
		return ErrorNoFrames
	}

	stop := context.AfterFunc(ctx, r.wake)
	defer stop()

	for {
		// Position is read under the same lock as the pause check, so a
		// pause arriving later lets this frame through and stops after it.
		r.mu.Lock()
		for r.paused && ctx.Err() == nil {
			r.cond.Wait()
		}
		if ctx.Err() != nil {
			r.mu.Unlock()
			return ErrorStopRequested
		}
		index := r.current
		epoch := r.epoch
		looping := r.looping
		limiter := r.limiter
		r.mu.Unlock()

		unit, err := r.source.Frame(ctx, index)
		if err != nil {
			if ctx.Err() != nil {
				return ErrorStopRequested
			}
			return fmt.Errorf("frame %d: %w", index, err)
		}

		last := !looping && index == total-1
		if last && !unit.IsLastFrame() {
			unit = unit.WithLastFrame(s.Name())
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return ErrorStopRequested
			}
		}
		r.advance(index, epoch, total)

		f := data.NewFrame()
		f.Units[0] = unit
		f.Index = index
		f.Epoch = epoch
		if err := s.publish(f); err != nil {
			return err
		}
		if last {
			logger.WithField("index", index).Debug("reached last frame")
			if !r.waitForSeek(ctx, epoch) {
				return ErrorStopRequested
			}
			s.reopen()
			logger.WithField("index", r.CurrentFrameIndex()).Debug("seek after last frame, producing again")
		}
	}
}

// waitForSeek parks the producer after the last frame until the position
// moves away from the epoch it was published in. It reports false when ctx
// is done first.
func (r *RandomAccessStreamer) waitForSeek(ctx context.Context, epoch uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.epoch == epoch && ctx.Err() == nil {
		r.cond.Wait()
	}
	return ctx.Err() == nil
}

// advance moves past index unless a seek happened since it was read.
func (r *RandomAccessStreamer) advance(index int, epoch uint64, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch || r.current != index {
		return
	}
	next := index + 1
	if next >= total {
		if r.looping {
			next = 0
		} else {
			next = total - 1
		}
	}
	r.current = next
}
