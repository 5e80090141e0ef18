package frameflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nirosys/frameflow/data"

	log "github.com/sirupsen/logrus"

	"github.com/rs/xid"
)

type Direction uint

const (
	DirectionInput  Direction = 0
	DirectionOutput Direction = 1
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

// Port is an indexed attachment point on a node. An input port is bound to
// at most one upstream connection. An output port buffers the most recent
// unit its node produced, together with the token of the cycle that
// produced it, and may fan out to any number of inputs.
type Port struct {
	Index     int
	Direction Direction
	Required  bool // Inputs only.

	owner      *Node
	conn       *Connection   // Inputs only.
	downstream []*Connection // Outputs only.

	mux   sync.RWMutex
	unit  *data.Unit
	token Token
	set   bool
}

func (p *Port) Node() *Node {
	return p.owner
}

// Connection returns the upstream binding of an input port, or nil.
func (p *Port) Connection() *Connection {
	return p.conn
}

// Downstream returns the connections fed by an output port.
func (p *Port) Downstream() []*Connection {
	return append([]*Connection(nil), p.downstream...)
}

// Data returns the most recent unit written to the port.
func (p *Port) Data() *data.Unit {
	p.mux.RLock()
	defer p.mux.RUnlock()
	return p.unit
}

// DataAt returns the unit written during the cycle identified by token. ok
// is false when the port was not written in that cycle.
func (p *Port) DataAt(token Token) (unit *data.Unit, ok bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	if !p.set || p.token != token {
		return nil, false
	}
	return p.unit, true
}

func (p *Port) store(u *data.Unit, token Token) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.unit = u
	p.token = token
	p.set = true
}

// Connection is a directed edge from one node's output to another node's
// input. Connections are never modified; rewiring replaces them.
type Connection struct {
	Source       *Node
	SourceOutput int
	Target       *Node
	TargetInput  int
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s[%d] -> %s[%d]", c.Source.Name, c.SourceOutput, c.Target.Name, c.TargetInput)
}

// Node is a vertex of the pipeline. Ordinary nodes compute synchronously
// through a Processor when pulled; streamer nodes hand out frames produced
// by a background goroutine.
//
// A pipeline is stepped by one goroutine at a time: PullExecute, Run and
// the processor callbacks must not be called concurrently on nodes that
// share a graph.
type Node struct {
	ID   xid.ID
	Name string

	// PropagateLastFrame marks a unit emitted by this node as last frame
	// whenever one of the inputs it was computed from was. Enabled by
	// default.
	PropagateLastFrame bool

	inputs  []*Port
	outputs []*Port

	proc Processor
	src  *Streamer

	modified   bool
	executed   bool
	pulling    bool
	lastToken  Token
	executions uint64

	gathered map[int]*data.Unit
	staged   map[int]*data.Unit
	stepper  *Stepper
}

// NewNode creates an ordinary node computing with proc. Ports are declared
// with CreateInputPort and CreateOutputPort before connecting.
func NewNode(name string, proc Processor) *Node {
	return &Node{
		ID:                 xid.New(),
		Name:               name,
		PropagateLastFrame: true,
		proc:               proc,
		modified:           true,
	}
}

// Node lets a *Node be used wherever an Upstream is expected.
func (n *Node) Node() *Node {
	return n
}

func insertPort(ports []*Port, p *Port) []*Port {
	i := sort.Search(len(ports), func(i int) bool { return ports[i].Index >= p.Index })
	ports = append(ports, nil)
	copy(ports[i+1:], ports[i:])
	ports[i] = p
	return ports
}

func findPort(ports []*Port, index int) *Port {
	for _, p := range ports {
		if p.Index == index {
			return p
		}
	}
	return nil
}

// CreateInputPort declares a required input. Declaring an index twice
// returns the existing port.
func (n *Node) CreateInputPort(index int) *Port {
	if p := findPort(n.inputs, index); p != nil {
		return p
	}
	p := &Port{Index: index, Direction: DirectionInput, Required: true, owner: n}
	n.inputs = insertPort(n.inputs, p)
	return p
}

// CreateOutputPort declares an output. Declaring an index twice returns the
// existing port.
func (n *Node) CreateOutputPort(index int) *Port {
	if p := findPort(n.outputs, index); p != nil {
		return p
	}
	p := &Port{Index: index, Direction: DirectionOutput, owner: n}
	n.outputs = insertPort(n.outputs, p)
	return p
}

func (n *Node) SetInputRequired(index int, required bool) error {
	p := findPort(n.inputs, index)
	if p == nil {
		return fmt.Errorf("%w: node '%s' has no input %d", ErrorNoSuchPort, n.Name, index)
	}
	p.Required = required
	return nil
}

func (n *Node) Input(index int) *Port {
	return findPort(n.inputs, index)
}

func (n *Node) Output(index int) *Port {
	return findPort(n.outputs, index)
}

// Inputs returns the input ports ordered by index.
func (n *Node) Inputs() []*Port {
	return append([]*Port(nil), n.inputs...)
}

// Outputs returns the output ports ordered by index.
func (n *Node) Outputs() []*Port {
	return append([]*Port(nil), n.outputs...)
}

func (n *Node) HasInputs() bool {
	return len(n.inputs) > 0
}

func (n *Node) IsStreamer() bool {
	return n.src != nil
}

func (n *Node) IsRandomAccess() bool {
	return n.src != nil && n.src.randomAccess != nil
}

// Streamer returns the streamer driving this node, or nil for an ordinary
// node.
func (n *Node) Streamer() *Streamer {
	return n.src
}

func (n *Node) RandomAccess() *RandomAccessStreamer {
	if n.src == nil {
		return nil
	}
	return n.src.randomAccess
}

// Executions reports how many times the node has actually executed.
func (n *Node) Executions() uint64 {
	return atomic.LoadUint64(&n.executions)
}

// SetModified forces the node to execute on the next pull even if the
// token has already been served.
func (n *Node) SetModified() {
	n.modified = true
}

// Connect binds output `output` of src to input `input` of n, replacing any
// existing binding of that input. It returns n so that construction can be
// chained.
func (n *Node) Connect(input int, src Upstream, output int) (*Node, error) {
	source := src.Node()
	if source == n {
		return n, fmt.Errorf("%w: '%s'", ErrorSelfConnection, n.Name)
	}
	in := n.Input(input)
	if in == nil {
		return n, fmt.Errorf("%w: node '%s' has no input %d", ErrorNoSuchPort, n.Name, input)
	}
	out := source.Output(output)
	if out == nil {
		return n, fmt.Errorf("%w: node '%s' has no output %d", ErrorNoSuchPort, source.Name, output)
	}

	if in.conn != nil {
		n.unbind(in)
	}
	c := &Connection{
		Source:       source,
		SourceOutput: output,
		Target:       n,
		TargetInput:  input,
	}
	in.conn = c
	out.downstream = append(out.downstream, c)
	n.modified = true

	log.WithFields(log.Fields{
		"op":         "frameflow:node.connect",
		"connection": c.String(),
	}).Debug("connected")
	return n, nil
}

// Disconnect removes the upstream binding of an input.
func (n *Node) Disconnect(input int) error {
	in := n.Input(input)
	if in == nil {
		return fmt.Errorf("%w: node '%s' has no input %d", ErrorNoSuchPort, n.Name, input)
	}
	if in.conn != nil {
		n.unbind(in)
		n.modified = true
	}
	return nil
}

func (n *Node) unbind(in *Port) {
	c := in.conn
	if out := c.Source.Output(c.SourceOutput); out != nil {
		kept := out.downstream[:0]
		for _, d := range out.downstream {
			if d != c {
				kept = append(kept, d)
			}
		}
		out.downstream = kept
	}
	in.conn = nil
}

// SetInputData feeds a fixed unit into an input by connecting it to a
// constant source node.
func (n *Node) SetInputData(input int, u *data.Unit) error {
	constant := NewNode(fmt.Sprintf("%s.input%d", n.Name, input), ProcessorFunc(func(ctx context.Context, c *Node) error {
		return c.AddOutputData(0, u)
	}))
	constant.CreateOutputPort(0)
	_, err := n.Connect(input, constant, 0)
	return err
}

// PullExecute brings the node up to date for the cycle identified by
// token. Upstream nodes are pulled first; a node already executed for
// token is not executed again unless it was modified since, so a node
// reachable along several paths runs once per token.
//
// Errors from a processor are returned as *NodeExecutionError and leave
// the node's token and outputs untouched.
func (n *Node) PullExecute(ctx context.Context, token Token) error {
	if n.executed && n.lastToken == token && !n.modified {
		return nil
	}
	if n.pulling {
		return fmt.Errorf("%w: at node '%s'", ErrorCycle, n.Name)
	}
	n.pulling = true
	defer func() { n.pulling = false }()

	for _, in := range n.inputs {
		if in.conn == nil && in.Required {
			return fmt.Errorf("%w: node '%s' input %d", ErrorUnconnectedInput, n.Name, in.Index)
		}
	}
	for _, in := range n.inputs {
		if in.conn == nil {
			continue
		}
		if err := in.conn.Source.PullExecute(ctx, token); err != nil {
			return err
		}
	}

	var err error
	if n.src != nil {
		err = n.src.pull(ctx, token)
	} else {
		err = n.execute(ctx, token)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"op":    "frameflow:node.pull",
			"node":  n.Name,
			"token": token.Seq,
			"err":   err.Error(),
		}).Debug("pull failed")
		return err
	}

	n.lastToken = token
	n.executed = true
	n.modified = false
	atomic.AddUint64(&n.executions, 1)
	return nil
}

func (n *Node) execute(ctx context.Context, token Token) error {
	gathered := make(map[int]*data.Unit, len(n.inputs))
	var last *data.Unit
	for _, in := range n.inputs {
		if in.conn == nil {
			continue
		}
		u, ok := in.conn.Source.Output(in.conn.SourceOutput).DataAt(token)
		if !ok || u == nil {
			if in.Required {
				return fmt.Errorf("%w: node '%s' input %d", ErrorMissingInputData, n.Name, in.Index)
			}
			continue
		}
		gathered[in.Index] = u
		if last == nil && u.IsLastFrame() {
			last = u
		}
	}

	n.gathered = gathered
	n.staged = make(map[int]*data.Unit)
	defer func() {
		n.gathered = nil
		n.staged = nil
	}()

	if n.proc != nil {
		pctx := NewContextWithToken(NewContextFromNode(ctx, n), token)
		if err := n.proc.Process(pctx, n); err != nil {
			return &NodeExecutionError{Node: n.Name, Err: err}
		}
	}

	for index, u := range n.staged {
		if last != nil && n.PropagateLastFrame && u != nil && !u.IsLastFrame() {
			u = u.WithLastFrame(last.LastFrameSource)
		}
		n.Output(index).store(u, token)
	}
	return nil
}

// InputData returns the unit gathered for an input in the current
// execution. Optional inputs without data return nil.
func (n *Node) InputData(index int) (*data.Unit, error) {
	if n.Input(index) == nil {
		return nil, fmt.Errorf("%w: node '%s' has no input %d", ErrorNoSuchPort, n.Name, index)
	}
	if n.gathered == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrorNotExecuting, n.Name)
	}
	return n.gathered[index], nil
}

// AddOutputData emits u on an output. For ordinary nodes it may only be
// called from Process, and the unit becomes visible once Process returns
// without error. For streamer nodes it forwards to the streamer.
func (n *Node) AddOutputData(index int, u *data.Unit) error {
	if n.src != nil {
		return n.src.AddOutputData(index, u)
	}
	if n.Output(index) == nil {
		return fmt.Errorf("%w: node '%s' has no output %d", ErrorNoSuchPort, n.Name, index)
	}
	if n.staged == nil {
		return fmt.Errorf("%w: '%s'", ErrorNotExecuting, n.Name)
	}
	n.staged[index] = u
	return nil
}

// OutputData returns the latest unit on an output.
func (n *Node) OutputData(index int) (*data.Unit, error) {
	p := n.Output(index)
	if p == nil {
		return nil, fmt.Errorf("%w: node '%s' has no output %d", ErrorNoSuchPort, n.Name, index)
	}
	return p.Data(), nil
}

// Run pulls the node once with a token of its own.
func (n *Node) Run(ctx context.Context) error {
	if n.stepper == nil {
		n.stepper = NewStepper()
	}
	return n.PullExecute(ctx, n.stepper.Next())
}

// RunAndGetOutputData runs the node once and returns the unit on its first
// output.
func (n *Node) RunAndGetOutputData(ctx context.Context) (*data.Unit, error) {
	if len(n.outputs) == 0 {
		return nil, fmt.Errorf("%w: node '%s'", ErrorNoOutputPorts, n.Name)
	}
	if err := n.Run(ctx); err != nil {
		return nil, err
	}
	return n.outputs[0].Data(), nil
}

// upstreamStreamers walks the graph above the given nodes and returns each
// streamer found, once.
func upstreamStreamers(nodes []*Node) []*Streamer {
	seen := make(map[*Node]bool)
	var streamers []*Streamer
	var walk func(*Node)
	walk = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		if n.src != nil {
			streamers = append(streamers, n.src)
		}
		for _, in := range n.inputs {
			if in.conn != nil {
				walk(in.conn.Source)
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return streamers
}
