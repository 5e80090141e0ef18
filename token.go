package frameflow

import (
	"fmt"

	"github.com/rs/xid"
)

// Token identifies one logical pull cycle. Origin names the driver that
// issued it, so drivers working on the same nodes never produce equal
// tokens.
type Token struct {
	Origin xid.ID
	Seq    uint64
}

func (t Token) String() string {
	return fmt.Sprintf("%s#%d", t.Origin, t.Seq)
}

// Stepper issues tokens for one driver. It is not safe for concurrent use;
// a single goroutine steps a pipeline.
type Stepper struct {
	origin xid.ID
	seq    uint64
}

func NewStepper() *Stepper {
	return &Stepper{origin: xid.New()}
}

// Next returns a token that differs from every previous token of this
// stepper. Seq wraps to 0 on overflow.
func (s *Stepper) Next() Token {
	s.seq++
	return Token{Origin: s.origin, Seq: s.seq}
}

func (s *Stepper) Current() Token {
	return Token{Origin: s.origin, Seq: s.seq}
}
