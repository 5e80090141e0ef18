package channel

import (
	"context"
	"errors"

	"github.com/nirosys/frameflow/data"
)

var ErrChannelClosed = errors.New("channel closed")

// Channel hands frames from a streamer's producer goroutine to the
// goroutine pulling the pipeline.
type Channel interface {
	// Sends one frame. Blocks while the channel is full unless the channel
	// overwrites; fails with ErrChannelClosed once closed.
	Send(context.Context, *data.Frame) error

	// Receives the oldest frame. Buffered frames are still delivered after
	// Close; ErrChannelClosed is returned once the channel is closed and
	// empty.
	Receive(context.Context) (*data.Frame, error)

	// Closes the channel, waking every blocked sender and receiver.
	Close()

	IsClosed() bool

	// Number of frames currently buffered.
	Len() int

	data.MetricsProvider
}
