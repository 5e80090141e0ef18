package frameflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nirosys/frameflow/channel"
	"github.com/nirosys/frameflow/channel/local"
	"github.com/nirosys/frameflow/data"

	log "github.com/sirupsen/logrus"

	"gopkg.in/tomb.v2"
)

type StreamingMode uint

const (
	// Every published frame is delivered; the producer blocks while the
	// hand-off buffer is full.
	ModeProcessAll StreamingMode = 0
	// The producer never blocks; a full buffer drops its oldest frame.
	ModeNewestOnly StreamingMode = 1
)

func (m StreamingMode) String() string {
	switch m {
	case ModeProcessAll:
		return "process_all"
	case ModeNewestOnly:
		return "newest_only"
	default:
		return "unknown"
	}
}

type StreamerConfig struct {
	Outputs int
	Mode    StreamingMode
	Depth   int
}

var DefaultStreamerConfig = &StreamerConfig{
	Outputs: 1,
	Mode:    ModeProcessAll,
	Depth:   1,
}

// Generator is the production loop of a streamer. Generate runs on the
// streamer's own goroutine. For every frame it calls AddOutputData for each
// output it fills, followed by FrameAdded. When either returns
// ErrorStopRequested, Generate must return. ctx is cancelled when the
// streamer is stopped.
type Generator interface {
	Generate(ctx context.Context, s *Streamer) error
}

type GeneratorFunc func(ctx context.Context, s *Streamer) error

func (f GeneratorFunc) Generate(ctx context.Context, s *Streamer) error {
	return f(ctx, s)
}

// Streamer is a source node whose data is produced asynchronously. The
// producer goroutine is started on the first pull (or by Start) and hands
// frames to the pulling goroutine through a bounded channel.
type Streamer struct {
	node *Node
	gen  Generator
	cfg  StreamerConfig

	mux     sync.Mutex
	t       *tomb.Tomb
	ctx     context.Context
	ch      *local.LocalChannel
	running bool
	ended   bool

	pending  map[int]*data.Unit // Producer goroutine only.
	markLast bool               // Producer goroutine only.
	seq      uint64             // Producer goroutine only.

	randomAccess *RandomAccessStreamer
	accept       func(*data.Frame) bool

	published uint64
	delivered uint64
	discarded uint64
}

// NewStreamer creates a streamer with cfg.Outputs output ports, numbered
// from 0. A nil cfg uses DefaultStreamerConfig.
func NewStreamer(name string, gen Generator, cfg *StreamerConfig) *Streamer {
	if cfg == nil {
		cfg = DefaultStreamerConfig
	}
	s := &Streamer{
		node:    NewNode(name, nil),
		gen:     gen,
		cfg:     *cfg,
		pending: make(map[int]*data.Unit),
	}
	if s.cfg.Depth < 1 {
		s.cfg.Depth = 1
	}
	s.node.src = s
	for i := 0; i < s.cfg.Outputs; i++ {
		s.node.CreateOutputPort(i)
	}
	return s
}

func (s *Streamer) Node() *Node {
	return s.node
}

func (s *Streamer) Name() string {
	return s.node.Name
}

func (s *Streamer) Mode() StreamingMode {
	return s.cfg.Mode
}

// Start launches the producer goroutine. Calling Start on a running
// streamer does nothing. A streamer that was stopped starts over with a
// fresh run of its generator.
func (s *Streamer) Start() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.running {
		return
	}

	t := &tomb.Tomb{}
	ch := local.NewLocalChannel(s.cfg.Depth, s.cfg.Mode == ModeNewestOnly)
	s.t = t
	s.ctx = t.Context(nil)
	s.ch = ch
	s.running = true
	s.ended = false
	s.pending = make(map[int]*data.Unit)
	s.markLast = false

	log.WithFields(log.Fields{
		"op":       "frameflow:streamer.start",
		"streamer": s.node.Name,
		"mode":     s.cfg.Mode.String(),
		"depth":    s.cfg.Depth,
	}).Info("starting streamer")

	ctx := s.ctx
	t.Go(func() error {
		defer ch.Close()
		err := s.gen.Generate(ctx, s)
		if errors.Is(err, ErrorStopRequested) {
			return nil
		}
		if err != nil && errors.Is(err, context.Canceled) {
			select {
			case <-t.Dying():
				return nil
			default:
			}
		}
		if err != nil {
			log.WithFields(log.Fields{
				"op":       "frameflow:streamer.generate",
				"streamer": s.node.Name,
				"err":      err.Error(),
			}).Error("generator failed")
		}
		return err
	})
}

// Stop asks the producer to exit and waits for it. A producer blocked
// handing off a frame is released. Stop is safe to call from any
// goroutine, and on a streamer that is not running.
func (s *Streamer) Stop() error {
	s.mux.Lock()
	if !s.running {
		s.mux.Unlock()
		return nil
	}
	t, ch := s.t, s.ch
	s.running = false
	s.mux.Unlock()

	t.Kill(nil)
	ch.Close()
	err := t.Wait()

	log.WithFields(log.Fields{
		"op":       "frameflow:streamer.stop",
		"streamer": s.node.Name,
	}).Info("streamer stopped")
	return err
}

func (s *Streamer) IsRunning() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.running
}

// Err returns the error the generator exited with, or nil while it is still
// producing or when it exited cleanly.
func (s *Streamer) Err() error {
	s.mux.Lock()
	t := s.t
	s.mux.Unlock()
	if t == nil {
		return nil
	}
	if err := t.Err(); err != tomb.ErrStillAlive {
		return err
	}
	return nil
}

// AddOutputData stages u on output port for the next FrameAdded.
func (s *Streamer) AddOutputData(port int, u *data.Unit) error {
	if s.node.Output(port) == nil {
		return fmt.Errorf("%w: streamer '%s' has no output %d", ErrorNoSuchPort, s.node.Name, port)
	}
	if s.stopping() {
		return ErrorStopRequested
	}
	s.pending[port] = u
	return nil
}

// MarkLastFrame makes the next FrameAdded the last publish of this run.
// Every unit staged for that frame is marked, whether it was added before
// or after this call.
func (s *Streamer) MarkLastFrame() {
	s.markLast = true
}

// FrameAdded publishes the staged units as one frame, blocking while the
// hand-off buffer is full in ModeProcessAll. It returns ErrorStopRequested
// once the streamer is stopping, or when called again after a last frame
// was published.
func (s *Streamer) FrameAdded() error {
	f := data.NewFrame()
	f.Units = s.pending
	if s.markLast {
		for port, u := range f.Units {
			if !u.IsLastFrame() {
				f.Units[port] = u.WithLastFrame(s.node.Name)
			}
		}
		f.Last = true
		s.markLast = false
	}
	s.pending = make(map[int]*data.Unit)
	return s.publish(f)
}

// reopen lets the generator publish again after a last frame.
func (s *Streamer) reopen() {
	s.mux.Lock()
	s.ended = false
	s.mux.Unlock()
}

func (s *Streamer) stopping() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.ended || s.ctx == nil || s.ctx.Err() != nil
}

func (s *Streamer) publish(f *data.Frame) error {
	s.mux.Lock()
	ended, ctx, ch := s.ended, s.ctx, s.ch
	s.mux.Unlock()
	if ended || ctx == nil || ctx.Err() != nil {
		return ErrorStopRequested
	}

	s.seq++
	f.Seq = s.seq
	last := f.IsLastFrame()
	if err := ch.Send(ctx, f); err != nil {
		return ErrorStopRequested
	}
	atomic.AddUint64(&s.published, 1)

	if last {
		s.mux.Lock()
		s.ended = true
		s.mux.Unlock()
		log.WithFields(log.Fields{
			"op":       "frameflow:streamer.publish",
			"streamer": s.node.Name,
			"seq":      f.Seq,
		}).Debug("published last frame")
	}
	return nil
}

// pull blocks until the producer hands over a frame and writes its units to
// the output ports for token.
func (s *Streamer) pull(ctx context.Context, token Token) error {
	s.Start()

	s.mux.Lock()
	t, ch := s.t, s.ch
	s.mux.Unlock()

	for {
		f, err := ch.Receive(ctx)
		if errors.Is(err, channel.ErrChannelClosed) {
			// The channel closes just before the producer exits.
			select {
			case <-t.Dead():
			case <-ctx.Done():
				return ctx.Err()
			}
			if gerr := t.Err(); gerr != nil {
				return &NodeExecutionError{Node: s.node.Name, Err: gerr}
			}
			return fmt.Errorf("%w: '%s'", ErrorStreamerStopped, s.node.Name)
		} else if err != nil {
			return err
		}

		if s.accept != nil && !s.accept(f) {
			atomic.AddUint64(&s.discarded, 1)
			log.WithFields(log.Fields{
				"op":       "frameflow:streamer.pull",
				"streamer": s.node.Name,
				"index":    f.Index,
				"epoch":    f.Epoch,
			}).Debug("discarding stale frame")
			continue
		}

		for port, u := range f.Units {
			if p := s.node.Output(port); p != nil {
				p.store(u, token)
			}
		}
		atomic.AddUint64(&s.delivered, 1)
		return nil
	}
}

func (s *Streamer) Metrics() data.MetricCollection {
	metrics := data.MetricCollection{
		"frames_published": atomic.SwapUint64(&s.published, 0),
		"frames_delivered": atomic.SwapUint64(&s.delivered, 0),
		"frames_discarded": atomic.SwapUint64(&s.discarded, 0),
	}
	s.mux.Lock()
	ch := s.ch
	s.mux.Unlock()
	if ch != nil {
		for k, v := range ch.Metrics().WithPrefix("channel_") {
			metrics[k] = v
		}
	}
	return metrics
}
