package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrorInvalidGraphReference = errors.New("invalid graph reference")
var ErrorInvalidGraphRefType = errors.New("invalid reference type")

type GraphReferable interface {
	ToGraphRef() (GraphRef, error)
}

type GraphRefType uint

const (
	GraphRefTypeUnknown GraphRefType = 0
	GraphRefTypeNode    GraphRefType = 1
	GraphRefTypeInput   GraphRefType = 3
	GraphRefTypeOutput  GraphRefType = 4
)

func (t GraphRefType) String() string {
	switch t {
	case GraphRefTypeNode:
		return "node"
	case GraphRefTypeInput:
		return "input"
	case GraphRefTypeOutput:
		return "output"
	default:
		return "unknown"
	}
}

type GraphRef string

func NewNodeGraphRef(node uint) GraphRef {
	return GraphRef(fmt.Sprintf("$ref:/node/%d", node))
}

func NewInputGraphRef(node, socket uint) GraphRef {
	return GraphRef(fmt.Sprintf("$ref:/node/%d/input/%d", node, socket))
}

func NewOutputGraphRef(node, socket uint) GraphRef {
	return GraphRef(fmt.Sprintf("$ref:/node/%d/output/%d", node, socket))
}

// parsedRef is the decomposed form of a GraphRef.
type parsedRef struct {
	kind   GraphRefType
	node   uint
	socket uint
}

func (r GraphRef) parse() (parsedRef, error) {
	toks := strings.Split(strings.ToLower(string(r)), "/")
	if len(toks) < 3 || toks[0] != "$ref:" || toks[1] != "node" {
		return parsedRef{}, fmt.Errorf("%w: '%s'", ErrorInvalidGraphReference, r)
	}

	node, err := strconv.ParseUint(toks[2], 10, 32)
	if err != nil {
		return parsedRef{}, fmt.Errorf("%w: '%s': %s", ErrorInvalidGraphReference, r, err)
	}
	p := parsedRef{kind: GraphRefTypeNode, node: uint(node)}

	switch len(toks) {
	case 3:
		return p, nil
	case 5:
		switch toks[3] {
		case "input":
			p.kind = GraphRefTypeInput
		case "output":
			p.kind = GraphRefTypeOutput
		default:
			return parsedRef{}, fmt.Errorf("%w: '%s'", ErrorInvalidGraphRefType, r)
		}
		socket, err := strconv.ParseUint(toks[4], 10, 32)
		if err != nil {
			return parsedRef{}, fmt.Errorf("%w: '%s': %s", ErrorInvalidGraphReference, r, err)
		}
		p.socket = uint(socket)
		return p, nil
	default:
		return parsedRef{}, fmt.Errorf("%w: '%s'", ErrorInvalidGraphReference, r)
	}
}

func (r GraphRef) Type() (GraphRefType, error) {
	p, err := r.parse()
	if err != nil {
		return GraphRefTypeUnknown, err
	}
	return p.kind, nil
}

func (r GraphRef) NodeRef() (GraphRef, error) {
	if id, err := r.NodeId(); err != nil {
		return "", err
	} else {
		return NewNodeGraphRef(id), nil
	}
}

func (r GraphRef) NodeId() (uint, error) {
	p, err := r.parse()
	if err != nil {
		return 0, err
	}
	return p.node, nil
}

func (r GraphRef) SocketId() (uint, error) {
	p, err := r.parse()
	if err != nil {
		return 0, err
	}
	if p.kind != GraphRefTypeOutput && p.kind != GraphRefTypeInput {
		return 0, ErrorInvalidGraphRefType
	}
	return p.socket, nil
}
