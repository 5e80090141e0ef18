package frameflow

import (
	"context"

	"github.com/nirosys/frameflow/graph"
)

// Processor is the computation of an ordinary node. Process runs on the
// pulling goroutine with the node's inputs already gathered; it reads them
// with node.InputData and writes results with node.AddOutputData.
type Processor interface {
	Process(ctx context.Context, node *Node) error
}

type ProcessorFunc func(ctx context.Context, node *Node) error

func (f ProcessorFunc) Process(ctx context.Context, node *Node) error {
	return f(ctx, node)
}

// Upstream is anything that can feed a connection: a *Node, a *Streamer or
// a *RandomAccessStreamer.
type Upstream interface {
	Node() *Node
}

// NodeFactory builds the live node for one node of a pipeline description.
// The factory is expected to declare the ports listed in desc.
type NodeFactory func(rt *Runtime, desc *graph.Node) (Upstream, error)
