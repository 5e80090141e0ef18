package local

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nirosys/frameflow/channel"
	"github.com/nirosys/frameflow/data"
)

// LocalChannel is an in-process channel.Channel. Senders and receivers
// wait on a single condition variable; Close and context cancellation both
// broadcast on it so no waiter is left behind.
type LocalChannel struct {
	cond *sync.Cond

	queue     *FrameQueue
	overwrite bool
	closed    int32
}

func (lc *LocalChannel) Send(ctx context.Context, f *data.Frame) error {
	stop := context.AfterFunc(ctx, lc.wake)
	defer stop()

	lc.cond.L.Lock()
	defer lc.cond.L.Unlock()

	if lc.overwrite {
		if lc.IsClosed() {
			return channel.ErrChannelClosed
		}
		lc.queue.Replace(f)
		lc.cond.Broadcast()
		return nil
	}

	for lc.queue.IsFull() && !lc.IsClosed() && ctx.Err() == nil {
		lc.cond.Wait()
	}
	if lc.IsClosed() {
		return channel.ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := lc.queue.Push(f); err != nil {
		return err
	}
	lc.cond.Broadcast()
	return nil
}

func (lc *LocalChannel) Receive(ctx context.Context) (*data.Frame, error) {
	stop := context.AfterFunc(ctx, lc.wake)
	defer stop()

	lc.cond.L.Lock()
	defer lc.cond.L.Unlock()

	for lc.queue.Len() == 0 && !lc.IsClosed() && ctx.Err() == nil {
		lc.cond.Wait()
	}
	if f := lc.queue.Pop(); f != nil {
		lc.cond.Broadcast() // Room for a blocked sender.
		return f, nil
	}
	if lc.IsClosed() {
		return nil, channel.ErrChannelClosed
	}
	return nil, ctx.Err()
}

func (lc *LocalChannel) wake() {
	lc.cond.L.Lock()
	lc.cond.Broadcast()
	lc.cond.L.Unlock()
}

func (lc *LocalChannel) IsClosed() bool {
	closed := atomic.LoadInt32(&lc.closed)
	return closed == 1
}

func (lc *LocalChannel) Close() {
	atomic.StoreInt32(&lc.closed, 1)
	lc.wake()
}

func (lc *LocalChannel) Len() int {
	return lc.queue.Len()
}

func (lc *LocalChannel) Metrics() data.MetricCollection {
	return lc.queue.Metrics()
}

// NewLocalChannel creates a channel buffering up to depth frames. With
// overwrite set, Send never blocks and replaces the oldest buffered frame
// when full.
func NewLocalChannel(depth int, overwrite bool) *LocalChannel {
	return &LocalChannel{
		cond:      sync.NewCond(&sync.Mutex{}),
		queue:     NewFrameQueue(depth),
		overwrite: overwrite,
	}
}

var _ channel.Channel = (*LocalChannel)(nil)
