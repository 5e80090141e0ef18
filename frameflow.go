package frameflow

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nirosys/frameflow/data"
	"github.com/nirosys/frameflow/graph"

	log "github.com/sirupsen/logrus"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Streamer configuration handed to node types that build streamers and
	// don't override it.
	Streamer StreamerConfig

	// Applied to every node built from a description.
	PropagateLastFrame bool
}

var DefaultConfig = &Config{
	Streamer: StreamerConfig{
		Outputs: 1,
		Mode:    ModeProcessAll,
		Depth:   1,
	},
	PropagateLastFrame: true,
}

// Runtime holds the registry of node types and builds pipelines from
// descriptions.
type Runtime struct {
	nodeTypes map[string]NodeFactory
	config    *Config
	pipelines []*Pipeline
	mux       sync.Mutex
}

// Create a new Runtime. A nil cfg uses DefaultConfig.
func NewRuntime(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}
	if cfg.Streamer.Depth < 0 {
		return nil, fmt.Errorf("invalid streamer depth: %d", cfg.Streamer.Depth)
	}
	rt := &Runtime{
		nodeTypes: map[string]NodeFactory{},
		config:    cfg,
	}
	log.WithField("op", "frameflow:runtime.init").
		WithField("mode", cfg.Streamer.Mode.String()).
		WithField("depth", cfg.Streamer.Depth).
		Info("initializing runtime")
	return rt, nil
}

func (r *Runtime) Config() *Config {
	return r.config
}

// Register a custom node type. Names are case-insensitive.
func (r *Runtime) RegisterNodeType(name string, factory NodeFactory) error {
	nameKey := strings.ToUpper(name)
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, exists := r.nodeTypes[nameKey]; exists {
		return ErrorDuplicateNode
	}
	r.nodeTypes[nameKey] = factory
	return nil
}

func (r *Runtime) GetNodeType(name string) (NodeFactory, error) {
	nameKey := strings.ToUpper(name)
	r.mux.Lock()
	defer r.mux.Unlock()
	if n, ok := r.nodeTypes[nameKey]; ok {
		return n, nil
	} else {
		return nil, ErrorInvalidNodeType
	}
}

func (r *Runtime) LoadFile(filename string) (*Pipeline, error) {
	if g, err := graph.LoadFile(filename); err != nil {
		return nil, err
	} else {
		return r.Build(g)
	}
}

func (r *Runtime) Load(reader io.Reader) (*Pipeline, error) {
	if g, err := graph.Load(reader); err != nil {
		return nil, err
	} else {
		return r.Build(g)
	}
}

// Validate checks the description itself and that every node type it
// uses is registered.
func (r *Runtime) Validate(g *graph.Graph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	for _, n := range g.Nodes {
		if _, err := r.GetNodeType(n.Type); err != nil {
			return fmt.Errorf("%w: '%s' (node '%s')", err, n.Type, n.Name)
		}
	}
	return nil
}

// Build turns a description into live, connected nodes.
func (r *Runtime) Build(g *graph.Graph) (*Pipeline, error) {
	log := log.WithField("op", "frameflow:runtime.build").WithField("graph", g.Name)

	if err := r.Validate(g); err != nil {
		return nil, err
	}

	p := &Pipeline{
		Graph: g,
		nodes: make(map[uint]*Node, len(g.Nodes)),
	}
	for i := range g.Nodes {
		desc := &g.Nodes[i]
		factory, _ := r.GetNodeType(desc.Type)
		up, err := factory(r, desc)
		if err != nil {
			return nil, fmt.Errorf("building node '%s': %w", desc.Name, err)
		}
		n := up.Node()
		n.PropagateLastFrame = r.config.PropagateLastFrame
		for _, in := range desc.Inputs {
			n.CreateInputPort(int(in.ID)).Required = !in.Optional
		}
		for _, out := range desc.Outputs {
			n.CreateOutputPort(int(out.ID))
		}
		p.nodes[desc.ID] = n
		if n.IsStreamer() {
			p.streamers = append(p.streamers, n.Streamer())
		}
	}

	for _, c := range g.Connections {
		srcID, _ := c.Start.NodeId()
		out, _ := c.Start.SocketId()
		dstID, _ := c.End.NodeId()
		in, _ := c.End.SocketId()
		if _, err := p.nodes[dstID].Connect(int(in), p.nodes[srcID], int(out)); err != nil {
			return nil, err
		}
	}

	for _, s := range g.Sinks() {
		p.sinks = append(p.sinks, p.nodes[s.ID])
	}

	r.mux.Lock()
	r.pipelines = append(r.pipelines, p)
	r.mux.Unlock()

	log.WithField("nodes", len(p.nodes)).
		WithField("sinks", len(p.sinks)).
		WithField("streamers", len(p.streamers)).
		Info("built pipeline")
	return p, nil
}

// Shutdown stops every streamer of every pipeline built by the runtime.
func (r *Runtime) Shutdown() error {
	log := log.WithField("op", "frameflow:runtime.shutdown")
	r.mux.Lock()
	pipelines := r.pipelines
	r.pipelines = nil
	r.mux.Unlock()

	log.WithField("pipelines", len(pipelines)).Info("stopping pipelines")
	var g errgroup.Group
	for _, p := range pipelines {
		g.Go(p.Stop)
	}
	return g.Wait()
}

// EmitMetrics logs the counters of every streamer and of the given streams.
func (r *Runtime) EmitMetrics(streams ...*DataStream) {
	logger := log.WithField("op", "frameflow:metrics")

	for _, ds := range streams {
		logger.WithField("stream", ds.ID().String()).
			WithFields(log.Fields(ds.Metrics())).Info("stream metrics")
	}

	r.mux.Lock()
	pipelines := append([]*Pipeline(nil), r.pipelines...)
	r.mux.Unlock()
	for _, p := range pipelines {
		for _, s := range p.streamers {
			logger.WithField("streamer", s.Name()).
				WithFields(log.Fields(s.Metrics())).Info("streamer metrics")
		}
	}
}

// Pipeline is the live form of a description.
type Pipeline struct {
	Graph *graph.Graph

	nodes     map[uint]*Node
	sinks     []*Node
	streamers []*Streamer
}

// Node returns the live node built for description node id.
func (p *Pipeline) Node(id uint) (*Node, error) {
	if n, ok := p.nodes[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %d", graph.ErrorNodeNotFound, id)
}

func (p *Pipeline) NodeByName(name string) (*Node, error) {
	desc, err := p.Graph.NodeByName(name)
	if err != nil {
		return nil, err
	}
	return p.Node(desc.ID)
}

func (p *Pipeline) Sinks() []*Node {
	return append([]*Node(nil), p.sinks...)
}

func (p *Pipeline) Streamers() []*Streamer {
	return append([]*Streamer(nil), p.streamers...)
}

// NewDataStream creates a stream over every sink of the pipeline.
func (p *Pipeline) NewDataStream() (*DataStream, error) {
	sinks := make([]Upstream, len(p.sinks))
	for i, s := range p.sinks {
		sinks[i] = s
	}
	return NewDataStream(sinks...)
}

// Stop stops every streamer of the pipeline.
func (p *Pipeline) Stop() error {
	var g errgroup.Group
	for _, s := range p.streamers {
		g.Go(s.Stop)
	}
	return g.Wait()
}

// WriteDot renders the live pipeline, starting from its sinks.
func (p *Pipeline) WriteDot(w io.Writer) error {
	sinks := make([]Upstream, len(p.sinks))
	for i, s := range p.sinks {
		sinks[i] = s
	}
	return WriteDot(w, sinks...)
}

func (p *Pipeline) Metrics() data.MetricCollection {
	metrics := data.MetricCollection{}
	for _, s := range p.streamers {
		for k, v := range s.Metrics().WithPrefix(s.Name() + ".") {
			metrics[k] = v
		}
	}
	return metrics
}

// IsStopped reports whether err is the normal end of a stream rather than a
// failure.
func IsStopped(err error) bool {
	return errors.Is(err, ErrorStreamExhausted) || errors.Is(err, ErrorStreamerStopped)
}
