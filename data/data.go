package data

import (
	"fmt"
	"time"

	"github.com/rs/xid"
)

// DataObject is implemented by payloads that carry their own identity and
// termination marker. Units built from a DataObject inherit both.
type DataObject interface {
	IsLastFrame() bool
	ClassTag() string
}

// Unit is the payload passed between nodes. A Unit is treated as immutable
// once it has been handed to an output port; nodes that want to change it
// must work on a copy.
type Unit struct {
	ID      xid.ID
	Value   interface{}
	Class   string
	Created time.Time

	LastFrame       bool
	LastFrameSource string // Which source declared termination, if any.
}

// New wraps v in a Unit.
func New(v interface{}) *Unit {
	u := &Unit{
		ID:      xid.New(),
		Value:   v,
		Created: time.Now(),
	}
	if obj, ok := v.(DataObject); ok {
		u.Class = obj.ClassTag()
		u.LastFrame = obj.IsLastFrame()
	} else if v != nil {
		u.Class = fmt.Sprintf("%T", v)
	}
	return u
}

// NewLastFrame wraps v in a Unit marked as the final unit from source.
func NewLastFrame(v interface{}, source string) *Unit {
	u := New(v)
	u.LastFrame = true
	u.LastFrameSource = source
	return u
}

func (u *Unit) IsLastFrame() bool {
	if u == nil {
		return false
	}
	return u.LastFrame
}

func (u *Unit) ClassTag() string {
	if u == nil {
		return ""
	}
	return u.Class
}

// Clone returns a shallow copy of u with a fresh ID. The payload itself is
// shared.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	c := *u
	c.ID = xid.New()
	return &c
}

// WithLastFrame returns a copy of u marked as the last frame of source.
func (u *Unit) WithLastFrame(source string) *Unit {
	c := u.Clone()
	if c == nil {
		c = New(nil)
	}
	c.LastFrame = true
	c.LastFrameSource = source
	return c
}

func (u *Unit) String() string {
	if u == nil {
		return "<nil>"
	}
	if u.LastFrame {
		return fmt.Sprintf("%v (last frame: %s)", u.Value, u.LastFrameSource)
	}
	return fmt.Sprintf("%v", u.Value)
}
