package nodes

import (
	"context"
	"fmt"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/data"
	"github.com/nirosys/frameflow/graph"
)

// Counter generates Count consecutive integers from Start, the last one
// marked as the final frame. With Loop set it wraps back to Start instead
// and never ends.
type Counter struct {
	Count int
	Start int
	Loop  bool
}

func (c *Counter) Generate(ctx context.Context, s *frameflow.Streamer) error {
	for i := 0; c.Loop || i < c.Count; i++ {
		if c.Loop {
			i %= c.Count
		}
		for _, port := range s.Node().Outputs() {
			if err := s.AddOutputData(port.Index, data.New(c.Start+i)); err != nil {
				return err
			}
		}
		if !c.Loop && i == c.Count-1 {
			s.MarkLastFrame()
		}
		if err := s.FrameAdded(); err != nil {
			return err
		}
	}
	return nil
}

func NewCounterNode(rt *frameflow.Runtime, desc *graph.Node) (frameflow.Upstream, error) {
	cfg, err := streamerConfig(rt, desc)
	if err != nil {
		return nil, err
	}
	c := &Counter{
		Count: desc.Configuration.GetInt("count"),
		Start: desc.Configuration.GetInt("start"),
		Loop:  desc.Configuration.GetBool("loop"),
	}
	if c.Count <= 0 {
		return nil, fmt.Errorf("%w: counter '%s' needs a positive count", ErrorInvalidConfig, desc.Name)
	}
	return frameflow.NewStreamer(desc.Name, c, &cfg), nil
}
