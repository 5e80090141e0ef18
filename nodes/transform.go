package nodes

import (
	"context"
	"fmt"
	"math"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/data"
	"github.com/nirosys/frameflow/graph"
)

// Identity forwards the unit on input 0 to output 0 unchanged.
type Identity struct{}

func (Identity) Process(ctx context.Context, n *frameflow.Node) error {
	u, err := n.InputData(0)
	if err != nil {
		return err
	}
	return n.AddOutputData(0, u)
}

// Scale multiplies a numeric input by Factor. Integers stay integers when
// the factor is whole.
type Scale struct {
	Factor float64
}

func (s *Scale) Process(ctx context.Context, n *frameflow.Node) error {
	u, err := n.InputData(0)
	if err != nil {
		return err
	}
	var out interface{}
	switch v := u.Value.(type) {
	case int:
		if s.Factor == math.Trunc(s.Factor) {
			out = v * int(s.Factor)
		} else {
			out = float64(v) * s.Factor
		}
	case int64:
		if s.Factor == math.Trunc(s.Factor) {
			out = v * int64(s.Factor)
		} else {
			out = float64(v) * s.Factor
		}
	case float64:
		out = v * s.Factor
	default:
		return fmt.Errorf("%w: %s", ErrorNotNumeric, u.ClassTag())
	}
	return n.AddOutputData(0, data.New(out))
}

// Add sums inputs 0 and 1. Two integers give an integer, anything else a
// float64.
type Add struct{}

func (Add) Process(ctx context.Context, n *frameflow.Node) error {
	a, err := n.InputData(0)
	if err != nil {
		return err
	}
	b, err := n.InputData(1)
	if err != nil {
		return err
	}
	if x, ok := a.Value.(int); ok {
		if y, ok := b.Value.(int); ok {
			return n.AddOutputData(0, data.New(x+y))
		}
	}
	x, err := toFloat(a)
	if err != nil {
		return err
	}
	y, err := toFloat(b)
	if err != nil {
		return err
	}
	return n.AddOutputData(0, data.New(x+y))
}

func toFloat(u *data.Unit) (float64, error) {
	switch v := u.Value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrorNotNumeric, u.ClassTag())
	}
}

func newTransform(name string, proc frameflow.Processor, inputs int) *frameflow.Node {
	n := frameflow.NewNode(name, proc)
	for i := 0; i < inputs; i++ {
		n.CreateInputPort(i)
	}
	n.CreateOutputPort(0)
	return n
}

func NewIdentityNode(rt *frameflow.Runtime, desc *graph.Node) (frameflow.Upstream, error) {
	return newTransform(desc.Name, Identity{}, 1), nil
}

func NewScaleNode(rt *frameflow.Runtime, desc *graph.Node) (frameflow.Upstream, error) {
	if !desc.Configuration.Has("factor") {
		return nil, fmt.Errorf("%w: scale '%s' needs a factor", ErrorInvalidConfig, desc.Name)
	}
	return newTransform(desc.Name, &Scale{Factor: desc.Configuration.GetFloat64("factor")}, 1), nil
}

func NewAddNode(rt *frameflow.Runtime, desc *graph.Node) (frameflow.Upstream, error) {
	return newTransform(desc.Name, Add{}, 2), nil
}
