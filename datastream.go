package frameflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/nirosys/frameflow/data"

	log "github.com/sirupsen/logrus"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// Record is the result of one DataStream step: one unit per tracked port,
// in the order the ports were collected.
type Record []*data.Unit

// Unit returns the unit of a single-port record, or nil when the record
// tracks several ports.
func (r Record) Unit() *data.Unit {
	if len(r) != 1 {
		return nil
	}
	return r[0]
}

// LastFrame reports whether any unit of the record is marked last.
func (r Record) LastFrame() bool {
	for _, u := range r {
		if u.IsLastFrame() {
			return true
		}
	}
	return false
}

// DataStream steps a set of sink nodes in lockstep. Every step issues one
// token and pulls each sink with it, so ancestors shared between sinks run
// once per step. The stream ends after the first step that yields a last
// frame; it cannot be restarted.
type DataStream struct {
	id      xid.ID
	sinks   []*Node
	ports   []*Port
	stepper *Stepper
	metrics *StreamMetrics

	mux  sync.Mutex
	done bool
}

// NewDataStream tracks every output port of the given sinks. It fails with
// ErrorNoOutputPorts when the sinks have no outputs at all. No streamer is
// started until the first Next.
func NewDataStream(sinks ...Upstream) (*DataStream, error) {
	ds := &DataStream{
		id:      xid.New(),
		stepper: NewStepper(),
		metrics: NewStreamMetrics(),
	}
	for _, s := range sinks {
		n := s.Node()
		ds.sinks = append(ds.sinks, n)
		ds.ports = append(ds.ports, n.Outputs()...)
	}
	if len(ds.ports) == 0 {
		return nil, ErrorNoOutputPorts
	}
	return ds, nil
}

func (ds *DataStream) ID() xid.ID {
	return ds.id
}

// Next performs one step. After the step that delivered a last frame it
// returns ErrorStreamExhausted.
func (ds *DataStream) Next(ctx context.Context) (Record, error) {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	if ds.done {
		return nil, ErrorStreamExhausted
	}

	ctx = ds.metrics.StepBegin(ctx)
	rec, err := ds.step(ctx)
	ds.metrics.StepEnd(ctx, err)
	if err != nil {
		log.WithFields(log.Fields{
			"op":     "frameflow:datastream.next",
			"stream": ds.id.String(),
			"err":    err.Error(),
		}).Debug("step failed")
		return nil, err
	}
	if rec.LastFrame() {
		ds.done = true
	}
	return rec, nil
}

func (ds *DataStream) step(ctx context.Context) (Record, error) {
	token := ds.stepper.Next()
	for _, sink := range ds.sinks {
		if err := sink.PullExecute(ctx, token); err != nil {
			return nil, err
		}
	}

	rec := make(Record, len(ds.ports))
	for i, p := range ds.ports {
		u, ok := p.DataAt(token)
		if !ok {
			return nil, fmt.Errorf("%w: node '%s' output %d", ErrorMissingOutputData, p.Node().Name, p.Index)
		}
		rec[i] = u
	}
	return rec, nil
}

// All ranges over the remaining records. Iteration ends at exhaustion, or
// after yielding the first error.
func (ds *DataStream) All(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := ds.Next(ctx)
			if errors.Is(err, ErrorStreamExhausted) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (ds *DataStream) IsDone() bool {
	ds.mux.Lock()
	defer ds.mux.Unlock()
	return ds.done
}

// Ports returns the tracked output ports.
func (ds *DataStream) Ports() []*Port {
	return append([]*Port(nil), ds.ports...)
}

// Close stops every streamer upstream of the sinks and marks the stream
// exhausted.
func (ds *DataStream) Close() error {
	streamers := upstreamStreamers(ds.sinks)

	var g errgroup.Group
	for _, s := range streamers {
		g.Go(s.Stop)
	}
	err := g.Wait()

	ds.mux.Lock()
	ds.done = true
	ds.mux.Unlock()
	return err
}

func (ds *DataStream) Metrics() data.MetricCollection {
	return ds.metrics.Metrics()
}
