package frameflow

import (
	"errors"
	"fmt"
)

var ErrorDuplicateNode = errors.New("node type already registered")
var ErrorInvalidNodeType = errors.New("invalid node type")

var ErrorUnconnectedInput = errors.New("input port has no upstream connection")
var ErrorMissingInputData = errors.New("required input received no data this cycle")
var ErrorMissingOutputData = errors.New("tracked output produced no data this cycle")
var ErrorNoSuchPort = errors.New("no such port")
var ErrorSelfConnection = errors.New("node cannot be connected to itself")
var ErrorCycle = errors.New("cycle detected during pull execution")
var ErrorNotExecuting = errors.New("node is not executing")

var ErrorStreamExhausted = errors.New("stream exhausted")
var ErrorNoOutputPorts = errors.New("no output ports to track")
var ErrorStreamerStopped = errors.New("streamer stopped")
var ErrorFrameOutOfRange = errors.New("frame index out of range")
var ErrorNoFrames = errors.New("frame source has no frames")

// ErrorStopRequested is returned to a streamer's generator by
// AddOutputData and FrameAdded once the streamer is stopping or has
// published its last frame. Generators must return when they see it; it
// never reaches the goroutine pulling the pipeline.
var ErrorStopRequested = errors.New("stop requested")

// NodeExecutionError carries a failure raised while a node executed. The
// original error is available through errors.Is / errors.As.
type NodeExecutionError struct {
	Node string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node '%s' failed: %s", e.Node, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}
