package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/emicklei/dot"
)

var ErrorNodeNotFound = errors.New("node not found in graph")
var ErrorInvalidConnection = errors.New("invalid connection")
var ErrorInputAlreadyBound = errors.New("input already has an upstream connection")
var ErrorNodeIDMismatch = errors.New("node ID does not match its position")

// Connection goes from an output reference to an input reference.
type Connection struct {
	Start GraphRef `json:"start"`
	End   GraphRef `json:"end"`
}

// Graph is the serializable description of a pipeline. It carries no
// runtime state; a Runtime turns it into live nodes.
type Graph struct {
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

func LoadFile(fn string) (*Graph, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func NewGraph(name string) *Graph {
	return &Graph{
		Name:        name,
		Nodes:       []Node{},
		Connections: []Connection{},
	}
}

// Load decodes a graph of the form {"graph": {"name", "nodes", "connections"}}
// and validates it.
func Load(r io.Reader) (*Graph, error) {
	dec := json.NewDecoder(r)
	top := struct {
		Graph Graph `json:"graph"`
	}{}

	if err := dec.Decode(&top); err != nil {
		return nil, err
	}

	graph := &top.Graph
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// AddNode appends n, assigning it the next free ID.
func (g *Graph) AddNode(n Node) (*Node, error) {
	n.ID = uint(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	return &g.Nodes[n.ID], nil
}

// Connect wires the given output of every start node to the given input of
// every end node.
func (g *Graph) Connect(start NodeCollection, output uint, end NodeCollection, input uint) error {
	for _, n1 := range start.Nodes() {
		if !n1.HasOutput(output) {
			return fmt.Errorf("%w: node %d has no output %d", ErrorOutputNotFound, n1.ID, output)
		}
		for _, n2 := range end.Nodes() {
			if !n2.HasInput(input) {
				return fmt.Errorf("%w: node %d has no input %d", ErrorInputNotFound, n2.ID, input)
			}
			endRef := NewInputGraphRef(n2.ID, input)
			if g.ConnectionTo(endRef) != nil {
				return fmt.Errorf("%w: %s", ErrorInputAlreadyBound, endRef)
			}
			c := Connection{
				Start: NewOutputGraphRef(n1.ID, output),
				End:   endRef,
			}
			g.Connections = append(g.Connections, c)
		}
	}
	return nil
}

func (g *Graph) ConnectionsFrom(start GraphRef) []*Connection {
	var connects []*Connection
	for i := 0; i < len(g.Connections); i++ {
		if g.Connections[i].Start == start {
			connects = append(connects, &g.Connections[i])
		}
	}
	return connects
}

// ConnectionTo returns the single connection feeding an input, or nil.
func (g *Graph) ConnectionTo(end GraphRef) *Connection {
	for i := 0; i < len(g.Connections); i++ {
		if g.Connections[i].End == end {
			return &g.Connections[i]
		}
	}
	return nil
}

// Sinks returns every node whose outputs feed nothing. These are the nodes a
// data stream pulls.
func (g *Graph) Sinks() []*Node {
	var sinks []*Node
	for i := range g.Nodes {
		node := &g.Nodes[i]
		total := 0
		for _, o := range node.Outputs {
			total += len(g.ConnectionsFrom(NewOutputGraphRef(node.ID, o.ID)))
		}
		if total == 0 && len(node.Outputs) > 0 {
			sinks = append(sinks, node)
		}
	}
	return sinks
}

func (g *Graph) NodeByRef(ref GraphRef) (*Node, error) {
	if node_id, err := ref.NodeId(); err != nil {
		return nil, err
	} else {
		return g.NodeById(node_id)
	}
}

func (g *Graph) NodeById(id uint) (*Node, error) {
	if id >= uint(len(g.Nodes)) {
		return nil, fmt.Errorf("%w: %d", ErrorNodeNotFound, id)
	}
	return &g.Nodes[id], nil
}

func (g *Graph) NodeByName(name string) (*Node, error) {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrorNodeNotFound, name)
}

// Validate checks that node IDs match their positions, that every
// connection goes from a declared output to a declared input, and that no
// input has more than one producer.
func (g *Graph) Validate() error {
	for i, n := range g.Nodes {
		if n.ID != uint(i) {
			return fmt.Errorf("%w: node '%s' has ID %d at position %d", ErrorNodeIDMismatch, n.Name, n.ID, i)
		}
	}

	bound := make(map[GraphRef]bool)
	for _, c := range g.Connections {
		if t, err := c.Start.Type(); err != nil {
			return err
		} else if t != GraphRefTypeOutput {
			return fmt.Errorf("%w: start %s is not an output", ErrorInvalidConnection, c.Start)
		}
		if t, err := c.End.Type(); err != nil {
			return err
		} else if t != GraphRefTypeInput {
			return fmt.Errorf("%w: end %s is not an input", ErrorInvalidConnection, c.End)
		}

		start, err := g.NodeByRef(c.Start)
		if err != nil {
			return err
		}
		out, _ := c.Start.SocketId()
		if !start.HasOutput(out) {
			return fmt.Errorf("%w: %s", ErrorOutputNotFound, c.Start)
		}

		end, err := g.NodeByRef(c.End)
		if err != nil {
			return err
		}
		in, _ := c.End.SocketId()
		if !end.HasInput(in) {
			return fmt.Errorf("%w: %s", ErrorInputNotFound, c.End)
		}

		if bound[c.End] {
			return fmt.Errorf("%w: %s", ErrorInputAlreadyBound, c.End)
		}
		bound[c.End] = true
	}
	return nil
}

func dotNodeID(n *Node) string {
	return fmt.Sprintf("%s_%d", n.Name, n.ID)
}

func (g *Graph) WriteDot(w io.Writer) error {
	dg := dot.NewGraph(dot.Directed)
	dg.Attr("label", g.Name)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		dg.Node(dotNodeID(n)).
			Attr("id", dotNodeID(n)).
			Attr("label", fmt.Sprintf("%s\n(%s)", n.Name, n.Type))
	}
	for _, e := range g.Connections {
		n1, err := g.NodeByRef(e.Start)
		if err != nil {
			return err
		}
		n2, err := g.NodeByRef(e.End)
		if err != nil {
			return err
		}
		out, _ := e.Start.SocketId()
		in, _ := e.End.SocketId()
		dg.Edge(dg.Node(dotNodeID(n1)), dg.Node(dotNodeID(n2))).
			Attr("label", fmt.Sprintf("%d -> %d", out, in))
	}

	_, err := w.Write([]byte(dg.String()))
	return err
}
