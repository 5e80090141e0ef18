package data

// A Frame is everything a streamer publishes in one hand-off: at most one
// Unit per output port.
type Frame struct {
	Units map[int]*Unit
	Seq   uint64 // Publish order within one streamer run.
	Index int    // Frame index for random access sources, 0 otherwise.
	Epoch uint64 // Seek generation the frame was produced in.
	Last  bool   // Set by the producer when the frame ends its run.
}

func NewFrame() *Frame {
	return &Frame{Units: make(map[int]*Unit)}
}

// IsLastFrame reports whether the frame is flagged last or any unit in it
// is marked last.
func (f *Frame) IsLastFrame() bool {
	if f == nil {
		return false
	}
	if f.Last {
		return true
	}
	for _, u := range f.Units {
		if u.IsLastFrame() {
			return true
		}
	}
	return false
}
