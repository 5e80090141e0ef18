package frameflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/data"
)

const testTimeout = 5 * time.Second

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// constNode emits v on output 0 and counts how often it ran.
func constNode(name string, v interface{}, calls *int) *frameflow.Node {
	n := frameflow.NewNode(name, frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		if calls != nil {
			*calls++
		}
		return n.AddOutputData(0, data.New(v))
	}))
	n.CreateOutputPort(0)
	return n
}

func passNode(name string) *frameflow.Node {
	n := frameflow.NewNode(name, frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		u, err := n.InputData(0)
		if err != nil {
			return err
		}
		return n.AddOutputData(0, u)
	}))
	n.CreateInputPort(0)
	n.CreateOutputPort(0)
	return n
}

func sumNode(name string) *frameflow.Node {
	n := frameflow.NewNode(name, frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		a, err := n.InputData(0)
		if err != nil {
			return err
		}
		b, err := n.InputData(1)
		if err != nil {
			return err
		}
		return n.AddOutputData(0, data.New(a.Value.(int)+b.Value.(int)))
	}))
	n.CreateInputPort(0)
	n.CreateInputPort(1)
	n.CreateOutputPort(0)
	return n
}

func mustConnect(t *testing.T, n *frameflow.Node, input int, src frameflow.Upstream, output int) {
	t.Helper()
	if _, err := n.Connect(input, src, output); err != nil {
		t.Fatalf("Unexpected error connecting '%s': %s", n.Name, err.Error())
	}
}

// A node reachable along two paths runs once per token.
func TestDiamondExecutesOnce(t *testing.T) {
	calls := 0
	src := constNode("src", 4, &calls)
	left := passNode("left")
	right := passNode("right")
	join := sumNode("join")

	mustConnect(t, left, 0, src, 0)
	mustConnect(t, right, 0, src, 0)
	mustConnect(t, join, 0, left, 0)
	mustConnect(t, join, 1, right, 0)

	u, err := join.RunAndGetOutputData(testContext(t))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if u.Value.(int) != 8 {
		t.Errorf("Unexpected value: %d != %d", u.Value.(int), 8)
	}
	if calls != 1 {
		t.Errorf("Shared source executed %d times, expected 1", calls)
	}

	if err := join.Run(testContext(t)); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if calls != 2 {
		t.Errorf("Shared source executed %d times after second run, expected 2", calls)
	}
	if src.Executions() != 2 {
		t.Errorf("Unexpected execution count: %d != %d", src.Executions(), 2)
	}
}

func TestPullSameTokenIsMemoized(t *testing.T) {
	calls := 0
	src := constNode("src", 1, &calls)
	token := frameflow.NewStepper().Next()

	for i := 0; i < 3; i++ {
		if err := src.PullExecute(testContext(t), token); err != nil {
			t.Fatalf("Unexpected error: %s", err.Error())
		}
	}
	if calls != 1 {
		t.Errorf("Node executed %d times for one token", calls)
	}

	src.SetModified()
	if err := src.PullExecute(testContext(t), token); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if calls != 2 {
		t.Errorf("Modified node did not re-execute: %d calls", calls)
	}
}

func TestUnconnectedInput(t *testing.T) {
	n := passNode("lonely")
	err := n.Run(testContext(t))
	if !errors.Is(err, frameflow.ErrorUnconnectedInput) {
		t.Errorf("Expected unconnected input error, got: %v", err)
	}

	if err := n.SetInputRequired(0, false); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	u, err := n.RunAndGetOutputData(testContext(t))
	if err != nil {
		t.Fatalf("Unexpected error with optional input: %s", err.Error())
	}
	if u != nil {
		t.Errorf("Unexpected data from an unconnected optional input: %v", u)
	}
}

func TestMissingInputData(t *testing.T) {
	silent := frameflow.NewNode("silent", frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		return nil
	}))
	silent.CreateOutputPort(0)
	n := passNode("pass")
	mustConnect(t, n, 0, silent, 0)

	err := n.Run(testContext(t))
	if !errors.Is(err, frameflow.ErrorMissingInputData) {
		t.Errorf("Expected missing input data error, got: %v", err)
	}
}

// A failing node keeps the outputs of its last good cycle and is retried
// when pulled again with the same token.
func TestNodeExecutionErrorKeepsState(t *testing.T) {
	failures := 0
	fail := false
	value := 0
	n := frameflow.NewNode("flaky", frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		value++
		if err := n.AddOutputData(0, data.New(value)); err != nil {
			return err
		}
		if fail {
			failures++
			return errors.New("test error")
		}
		return nil
	}))
	n.CreateOutputPort(0)

	stepper := frameflow.NewStepper()
	first := stepper.Next()
	if err := n.PullExecute(testContext(t), first); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}

	fail = true
	second := stepper.Next()
	err := n.PullExecute(testContext(t), second)
	var nerr *frameflow.NodeExecutionError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected NodeExecutionError, got: %v", err)
	}
	if nerr.Node != "flaky" {
		t.Errorf("Unexpected node in error: %s", nerr.Node)
	}
	if u, _ := n.OutputData(0); u.Value.(int) != 1 {
		t.Errorf("Failed cycle replaced output: %v", u.Value)
	}
	if _, ok := n.Output(0).DataAt(second); ok {
		t.Errorf("Output reports data for the failed token")
	}
	if n.Executions() != 1 {
		t.Errorf("Unexpected execution count: %d != %d", n.Executions(), 1)
	}

	fail = false
	if err := n.PullExecute(testContext(t), second); err != nil {
		t.Fatalf("Unexpected error on retry: %s", err.Error())
	}
	if u, ok := n.Output(0).DataAt(second); !ok || u.Value.(int) != 3 {
		t.Errorf("Retry did not produce output: %v", u)
	}
	if failures != 1 {
		t.Errorf("Unexpected failure count: %d", failures)
	}
}

func TestConnectErrors(t *testing.T) {
	n := passNode("n")
	if _, err := n.Connect(0, n, 0); !errors.Is(err, frameflow.ErrorSelfConnection) {
		t.Errorf("Expected self connection error, got: %v", err)
	}
	src := constNode("src", 1, nil)
	if _, err := n.Connect(3, src, 0); !errors.Is(err, frameflow.ErrorNoSuchPort) {
		t.Errorf("Expected no such port error for input, got: %v", err)
	}
	if _, err := n.Connect(0, src, 3); !errors.Is(err, frameflow.ErrorNoSuchPort) {
		t.Errorf("Expected no such port error for output, got: %v", err)
	}
}

func TestConnectReplacesBinding(t *testing.T) {
	a := constNode("a", 1, nil)
	b := constNode("b", 2, nil)
	n := passNode("n")

	mustConnect(t, n, 0, a, 0)
	mustConnect(t, n, 0, b, 0)

	if len(a.Output(0).Downstream()) != 0 {
		t.Errorf("Old source still lists the replaced connection")
	}
	if c := n.Input(0).Connection(); c == nil || c.Source != b {
		t.Errorf("Input not bound to the new source")
	}
	u, err := n.RunAndGetOutputData(testContext(t))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if u.Value.(int) != 2 {
		t.Errorf("Unexpected value: %d != %d", u.Value.(int), 2)
	}

	if err := n.Disconnect(0); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if err := n.Run(testContext(t)); !errors.Is(err, frameflow.ErrorUnconnectedInput) {
		t.Errorf("Expected unconnected input after disconnect, got: %v", err)
	}
}

func TestConnectChains(t *testing.T) {
	src := constNode("src", 5, nil)
	n, err := passNode("n").Connect(0, src, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if n.Name != "n" {
		t.Errorf("Connect returned %s instead of the target", n.Name)
	}
}

func TestLastFramePropagation(t *testing.T) {
	n := passNode("pass")
	plus := frameflow.NewNode("plus", frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		u, _ := n.InputData(0)
		return n.AddOutputData(0, data.New(u.Value.(int)+1))
	}))
	plus.CreateInputPort(0)
	plus.CreateOutputPort(0)
	mustConnect(t, plus, 0, n, 0)

	if err := n.SetInputData(0, data.NewLastFrame(41, "source")); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	u, err := plus.RunAndGetOutputData(testContext(t))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if u.Value.(int) != 42 {
		t.Errorf("Unexpected value: %d != %d", u.Value.(int), 42)
	}
	if !u.IsLastFrame() || u.LastFrameSource != "source" {
		t.Errorf("Last frame not propagated: %+v", u)
	}

	plus.PropagateLastFrame = false
	plus.SetModified()
	u, err = plus.RunAndGetOutputData(testContext(t))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if u.IsLastFrame() {
		t.Errorf("Last frame propagated while disabled")
	}
}

func TestAddOutputDataOutsideProcess(t *testing.T) {
	n := constNode("n", 1, nil)
	if err := n.AddOutputData(0, data.New(1)); !errors.Is(err, frameflow.ErrorNotExecuting) {
		t.Errorf("Expected not executing error, got: %v", err)
	}
	if _, err := n.InputData(0); !errors.Is(err, frameflow.ErrorNoSuchPort) {
		t.Errorf("Expected no such port error, got: %v", err)
	}
}

func TestCycleDetected(t *testing.T) {
	a := passNode("a")
	b := passNode("b")
	mustConnect(t, a, 0, b, 0)
	mustConnect(t, b, 0, a, 0)

	if err := a.Run(testContext(t)); !errors.Is(err, frameflow.ErrorCycle) {
		t.Errorf("Expected cycle error, got: %v", err)
	}
}

func TestRunWithoutOutputs(t *testing.T) {
	n := frameflow.NewNode("sink", frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		return nil
	}))
	if _, err := n.RunAndGetOutputData(testContext(t)); !errors.Is(err, frameflow.ErrorNoOutputPorts) {
		t.Errorf("Expected no output ports error, got: %v", err)
	}
}

func TestProcessorContext(t *testing.T) {
	var seen *frameflow.Node
	var token frameflow.Token
	n := frameflow.NewNode("ctx", frameflow.ProcessorFunc(func(ctx context.Context, n *frameflow.Node) error {
		seen, _ = frameflow.NodeFromContext(ctx)
		token, _ = frameflow.TokenFromContext(ctx)
		return n.AddOutputData(0, data.New(0))
	}))
	n.CreateOutputPort(0)

	stepper := frameflow.NewStepper()
	want := stepper.Next()
	if err := n.PullExecute(testContext(t), want); err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if seen != n {
		t.Errorf("Processor context carried the wrong node")
	}
	if token != want {
		t.Errorf("Processor context carried token %s, expected %s", token, want)
	}
}

func TestCapabilities(t *testing.T) {
	plain := passNode("plain")
	if !plain.HasInputs() || plain.IsStreamer() || plain.IsRandomAccess() {
		t.Errorf("Unexpected capabilities for a plain node")
	}

	s := frameflow.NewStreamer("s", countTo(1), nil)
	if s.Node().HasInputs() || !s.Node().IsStreamer() || s.Node().IsRandomAccess() {
		t.Errorf("Unexpected capabilities for a streamer")
	}

	ra := frameflow.NewRandomAccessStreamer("ra", intFrames(3), nil)
	if !ra.Node().IsStreamer() || !ra.Node().IsRandomAccess() || ra.Node().RandomAccess() != ra {
		t.Errorf("Unexpected capabilities for a random access streamer")
	}
}
