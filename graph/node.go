package graph

import (
	"errors"
	"fmt"
)

var ErrorOutputNotFound = errors.New("output not found")
var ErrorInputNotFound = errors.New("input not found")
var ErrorDuplicatePort = errors.New("port already declared")

// References:
//     $ref:/node/0
//     $ref:/node/0/input/1
//     $ref:/node/0/output/0
//
// Each node gets an ID, each of its inputs and outputs gets an ID that is
// unique within that node and direction.

type Output struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type Input struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
}

type NodeCollection interface {
	Count() uint
	Nodes() []*Node
}

// Node describes one node of a pipeline: which registered type builds it,
// the configuration handed to that type and the ports it declares.
type Node struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`

	Configuration NodeConfig `json:"config"`

	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

func (n *Node) Count() uint {
	return 1
}

func (n *Node) Nodes() []*Node {
	return []*Node{n}
}

func (n *Node) AddInput(i Input) error {
	for _, in := range n.Inputs {
		if in.ID == i.ID {
			return fmt.Errorf("%w: input %d on node %d", ErrorDuplicatePort, i.ID, n.ID)
		}
	}
	n.Inputs = append(n.Inputs, i)
	return nil
}

func (n *Node) AddOutput(o Output) error {
	for _, out := range n.Outputs {
		if out.ID == o.ID {
			return fmt.Errorf("%w: output %d on node %d", ErrorDuplicatePort, o.ID, n.ID)
		}
	}
	n.Outputs = append(n.Outputs, o)
	return nil
}

func (n *Node) HasInput(id uint) bool {
	for _, in := range n.Inputs {
		if in.ID == id {
			return true
		}
	}
	return false
}

func (n *Node) HasOutput(id uint) bool {
	for _, o := range n.Outputs {
		if o.ID == id {
			return true
		}
	}
	return false
}

func (n *Node) ToGraphRef() (GraphRef, error) {
	return NewNodeGraphRef(n.ID), nil
}

func (n *Node) InputRefByName(name string) (GraphRef, error) {
	for _, i := range n.Inputs {
		if name == i.Name {
			return NewInputGraphRef(n.ID, i.ID), nil
		}
	}
	return "", ErrorInputNotFound
}

func (n *Node) OutputRefByName(name string) (GraphRef, error) {
	for _, o := range n.Outputs {
		if name == o.Name {
			return NewOutputGraphRef(n.ID, o.ID), nil
		}
	}
	return "", ErrorOutputNotFound
}

type Nodes []*Node

func (ns Nodes) Count() uint {
	return uint(len(ns))
}

func (ns Nodes) Nodes() []*Node {
	return ns
}
