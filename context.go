package frameflow

import (
	"context"
	"time"
)

type ctxKey uint

const (
	ctxKeyNode   ctxKey = 1
	ctxKeyToken  ctxKey = 2
	ctxStartTime ctxKey = 3
)

// NewContextFromNode returns a context carrying the node being executed.
// Processors receive such a context.
func NewContextFromNode(ctx context.Context, node *Node) context.Context {
	return context.WithValue(ctx, ctxKeyNode, node)
}

func NodeFromContext(ctx context.Context) (*Node, bool) {
	u, ok := ctx.Value(ctxKeyNode).(*Node)
	return u, ok
}

func NewContextWithToken(ctx context.Context, token Token) context.Context {
	return context.WithValue(ctx, ctxKeyToken, token)
}

func TokenFromContext(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(ctxKeyToken).(Token)
	return t, ok
}

// NewContextWithStartTime stamps ctx with the current time. A DataStream
// stamps the context of every step, so processors can read when the step
// began with StartTimeFromContext.
func NewContextWithStartTime(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxStartTime, time.Now())
}

func StartTimeFromContext(ctx context.Context) (time.Time, bool) {
	if t := ctx.Value(ctxStartTime); t != nil {
		start, ok := t.(time.Time)
		return start, ok
	} else {
		return time.Time{}, false
	}
}
