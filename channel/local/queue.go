package local

// This file contains a fixed capacity FIFO of frames backed by a ring
// buffer. All access from the channel should be through a FrameQueue.

import (
	"errors"
	"sync"

	"github.com/nirosys/frameflow/data"
)

var ErrorQueueFull = errors.New("frame queue is full")

type FrameQueueMetrics struct {
	NumPushes int
	NumPops   int
	NumDrops  int
}

type FrameQueue struct {
	mutex sync.Mutex

	ring    []*data.Frame
	head    int // Index of the oldest frame.
	count   int
	metrics *FrameQueueMetrics
}

func (fq *FrameQueue) Metrics() data.MetricCollection {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	metrics := map[string]interface{}{
		"num_pushes": fq.metrics.NumPushes,
		"num_pops":   fq.metrics.NumPops,
		"num_drops":  fq.metrics.NumDrops,
		"capacity":   len(fq.ring),
	}
	fq.metrics = &FrameQueueMetrics{}
	return metrics
}

// Push appends f, failing with ErrorQueueFull when there is no room.
func (fq *FrameQueue) Push(f *data.Frame) error {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	if fq.count == len(fq.ring) {
		return ErrorQueueFull
	}
	fq.ring[(fq.head+fq.count)%len(fq.ring)] = f
	fq.count++
	fq.metrics.NumPushes += 1
	return nil
}

// Replace appends f, dropping the oldest frame first if the queue is full.
// Returns true when a frame was dropped.
func (fq *FrameQueue) Replace(f *data.Frame) bool {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	dropped := false
	if fq.count == len(fq.ring) {
		fq.ring[fq.head] = nil
		fq.head = (fq.head + 1) % len(fq.ring)
		fq.count--
		fq.metrics.NumDrops += 1
		dropped = true
	}
	fq.ring[(fq.head+fq.count)%len(fq.ring)] = f
	fq.count++
	fq.metrics.NumPushes += 1
	return dropped
}

// Pop removes the oldest frame, or returns nil if the queue is empty.
func (fq *FrameQueue) Pop() *data.Frame {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	if fq.count == 0 {
		return nil
	}
	f := fq.ring[fq.head]
	fq.ring[fq.head] = nil
	fq.head = (fq.head + 1) % len(fq.ring)
	fq.count--
	fq.metrics.NumPops += 1
	return f
}

func (fq *FrameQueue) Len() int {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	return fq.count
}

func (fq *FrameQueue) Cap() int {
	return len(fq.ring)
}

func (fq *FrameQueue) IsFull() bool {
	fq.mutex.Lock()
	defer fq.mutex.Unlock()

	return fq.count == len(fq.ring)
}

// NewFrameQueue creates a queue holding at most capacity frames. Capacities
// below 1 are raised to 1.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{
		ring:    make([]*data.Frame, capacity),
		metrics: &FrameQueueMetrics{},
	}
}
