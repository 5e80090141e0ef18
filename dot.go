package frameflow

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"
)

// WriteDot renders the live nodes above sinks in DOT format. Streamers are
// drawn as boxes, random access streamers as double boxes.
func WriteDot(w io.Writer, sinks ...Upstream) error {
	dg := dot.NewGraph(dot.Directed)

	seen := map[*Node]dot.Node{}
	var visit func(n *Node) dot.Node
	visit = func(n *Node) dot.Node {
		if dn, ok := seen[n]; ok {
			return dn
		}
		dn := dg.Node(n.ID.String()).Label(n.Name)
		switch {
		case n.IsRandomAccess():
			dn.Attr("shape", "box").Attr("peripheries", "2")
		case n.IsStreamer():
			dn.Attr("shape", "box")
		}
		seen[n] = dn

		for _, in := range n.inputs {
			if in.conn == nil {
				continue
			}
			up := visit(in.conn.Source)
			dg.Edge(up, dn).Attr("label", fmt.Sprintf("%d -> %d", in.conn.SourceOutput, in.Index))
		}
		return dn
	}

	for _, s := range sinks {
		visit(s.Node())
	}

	_, err := w.Write([]byte(dg.String()))
	return err
}
