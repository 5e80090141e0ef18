package nodes

import (
	"context"
	"fmt"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/data"
	"github.com/nirosys/frameflow/graph"
)

// SliceSource serves a fixed list of values as frames.
type SliceSource struct {
	Values []interface{}
}

func (s *SliceSource) NumFrames() int {
	return len(s.Values)
}

func (s *SliceSource) Frame(ctx context.Context, index int) (*data.Unit, error) {
	if index < 0 || index >= len(s.Values) {
		return nil, fmt.Errorf("%w: %d", frameflow.ErrorFrameOutOfRange, index)
	}
	return data.New(s.Values[index]), nil
}

// Sequence serves Frames values computed as Start + index*Step.
type Sequence struct {
	Frames int
	Start  float64
	Step   float64
}

func (s *Sequence) NumFrames() int {
	return s.Frames
}

func (s *Sequence) Frame(ctx context.Context, index int) (*data.Unit, error) {
	if index < 0 || index >= s.Frames {
		return nil, fmt.Errorf("%w: %d", frameflow.ErrorFrameOutOfRange, index)
	}
	return data.New(s.Start + float64(index)*s.Step), nil
}

func NewSequenceNode(rt *frameflow.Runtime, desc *graph.Node) (frameflow.Upstream, error) {
	scfg, err := streamerConfig(rt, desc)
	if err != nil {
		return nil, err
	}
	c := &desc.Configuration

	var source frameflow.FrameSource
	if values, ok := c.Get("values").([]interface{}); ok {
		source = &SliceSource{Values: values}
	} else {
		step := 1.0
		if c.Has("step") {
			step = c.GetFloat64("step")
		}
		source = &Sequence{
			Frames: c.GetInt("frames"),
			Start:  c.GetFloat64("start"),
			Step:   step,
		}
	}
	if source.NumFrames() == 0 {
		return nil, fmt.Errorf("%w: sequence '%s' has no frames", ErrorInvalidConfig, desc.Name)
	}

	return frameflow.NewRandomAccessStreamer(desc.Name, source, &frameflow.RandomAccessConfig{
		Streamer:  scfg,
		Framerate: c.GetFloat64("framerate"),
		Looping:   c.GetBool("loop"),
		Paused:    c.GetBool("paused"),
	}), nil
}
