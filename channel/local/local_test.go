package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nirosys/frameflow/channel"
	"github.com/nirosys/frameflow/data"
)

const testTimeout = 5 * time.Second

// This test ensures that we can receive what we send.. The most simple thing we can
// do.
func Test_Channel(t *testing.T) {
	ch := NewLocalChannel(1, false)
	defer ch.Close()

	if err := ch.Send(context.Background(), &data.Frame{Seq: 7}); err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	item, err := ch.Receive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if item.Seq != 7 {
		t.Errorf("frame received with altered sequence: %d != %d", item.Seq, 7)
	}
}

// Receive must return once the context deadline passes, never block forever.
func Test_ReceiveDeadline(t *testing.T) {
	ch := NewLocalChannel(1, false)
	defer ch.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	_, err := ch.Receive(ctx)
	end := time.Now()

	if end.Before(deadline) {
		t.Errorf("Returned before deadline: '%s' < '%s'", end.String(), deadline.String())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, but got: %+v", err)
	}
}

// A full depth-1 channel blocks the sender until the frame is taken.
func Test_SendBlocksWhenFull(t *testing.T) {
	ch := NewLocalChannel(1, false)
	defer ch.Close()

	ch.Send(context.Background(), &data.Frame{Seq: 0})

	sent := make(chan error, 1)
	go func() {
		sent <- ch.Send(context.Background(), &data.Frame{Seq: 1})
	}()

	select {
	case err := <-sent:
		t.Fatalf("Send returned while channel was full: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	item, err := ch.Receive(context.Background())
	if err != nil || item.Seq != 0 {
		t.Fatalf("Unexpected receive: %+v, %v", item, err)
	}

	select {
	case err := <-sent:
		if err != nil {
			t.Errorf("Unexpected error: %s", err.Error())
		}
	case <-time.After(testTimeout):
		t.Fatalf("Sender not released after receive")
	}

	item, err = ch.Receive(context.Background())
	if err != nil || item.Seq != 1 {
		t.Errorf("Unexpected receive: %+v, %v", item, err)
	}
}

// Closing must release a sender blocked on a full channel.
func Test_CloseReleasesSender(t *testing.T) {
	ch := NewLocalChannel(1, false)
	ch.Send(context.Background(), data.NewFrame())

	sent := make(chan error, 1)
	go func() {
		sent <- ch.Send(context.Background(), data.NewFrame())
	}()

	<-time.After(100 * time.Millisecond)
	ch.Close()

	select {
	case err := <-sent:
		if !errors.Is(err, channel.ErrChannelClosed) {
			t.Errorf("Expected closed error, but got: %+v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("Sender still blocked after close")
	}
}

// Buffered frames are drained before a closed channel reports closed.
func Test_ReceiveDrainsAfterClose(t *testing.T) {
	ch := NewLocalChannel(2, false)
	ch.Send(context.Background(), &data.Frame{Seq: 1})
	ch.Send(context.Background(), &data.Frame{Seq: 2})
	ch.Close()

	for _, want := range []uint64{1, 2} {
		item, err := ch.Receive(context.Background())
		if err != nil {
			t.Fatalf("Unexpected error: %s", err.Error())
		}
		if item.Seq != want {
			t.Errorf("Unexpected sequence: %d != %d", item.Seq, want)
		}
	}

	_, err := ch.Receive(context.Background())
	if !errors.Is(err, channel.ErrChannelClosed) {
		t.Errorf("Expected closed error, but got: %+v", err)
	}
}

func Test_OverwriteNeverBlocks(t *testing.T) {
	ch := NewLocalChannel(1, true)
	defer ch.Close()

	for i := 0; i < 10; i++ {
		if err := ch.Send(context.Background(), &data.Frame{Seq: uint64(i)}); err != nil {
			t.Fatalf("Unexpected error: %s", err.Error())
		}
	}
	item, err := ch.Receive(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if item.Seq != 9 {
		t.Errorf("Unexpected sequence: %d != 9", item.Seq)
	}
	if v := ch.Metrics()["num_drops"]; v != 9 {
		t.Errorf("Unexpected drop count: %v != 9", v)
	}
}

// Many producers and one consumer, checking the cond-based hand-off never
// loses or duplicates a frame.
func Test_MultiSender(t *testing.T) {
	const senders = 20
	const perSender = 50
	ch := NewLocalChannel(1, false)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := ch.Send(context.Background(), data.NewFrame()); err != nil {
					t.Errorf("unexpected error: %s", err.Error())
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		ch.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	count := 0
	for {
		_, err := ch.Receive(ctx)
		if errors.Is(err, channel.ErrChannelClosed) {
			break
		} else if err != nil {
			t.Fatalf("unexpected error: %s", err.Error())
		}
		count++
	}
	if count != senders*perSender {
		t.Errorf("Unexpected frame count: %d != %d", count, senders*perSender)
	}
}
