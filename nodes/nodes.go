// Package nodes provides the built-in node types of a frameflow runtime.
//
// Sources:
//
//	counter   streams integers, config: count, start, loop, mode
//	sequence  random access source, config: frames or values, start, step,
//	          framerate, loop, paused
//
// Transforms:
//
//	identity  forwards input 0 to output 0
//	scale     multiplies input 0 by config factor
//	add       sums inputs 0 and 1
package nodes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/graph"
)

var ErrorNotNumeric = errors.New("value is not numeric")
var ErrorInvalidConfig = errors.New("invalid node configuration")

// Register adds every built-in node type to rt.
func Register(rt *frameflow.Runtime) error {
	types := map[string]frameflow.NodeFactory{
		"counter":  NewCounterNode,
		"sequence": NewSequenceNode,
		"identity": NewIdentityNode,
		"scale":    NewScaleNode,
		"add":      NewAddNode,
	}
	for name, factory := range types {
		if err := rt.RegisterNodeType(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// streamerConfig starts from the runtime defaults and applies the node's
// output count and optional "mode" and "depth" settings.
func streamerConfig(rt *frameflow.Runtime, desc *graph.Node) (frameflow.StreamerConfig, error) {
	cfg := rt.Config().Streamer
	if len(desc.Outputs) > 0 {
		cfg.Outputs = len(desc.Outputs)
	}
	c := &desc.Configuration
	switch strings.ToLower(c.GetString("mode")) {
	case "":
	case "process_all":
		cfg.Mode = frameflow.ModeProcessAll
	case "newest_only":
		cfg.Mode = frameflow.ModeNewestOnly
	default:
		return cfg, fmt.Errorf("%w: unknown mode '%s'", ErrorInvalidConfig, c.GetString("mode"))
	}
	if c.Has("depth") {
		cfg.Depth = c.GetInt("depth")
	}
	return cfg, nil
}
