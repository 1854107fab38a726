package action

import (
	"context"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/schema"
)

// Funcs is a Handler built from plain functions. Nil functions accept every
// value, do nothing and report an empty success message respectively.
type Funcs[T any] struct {
	ValidateFunc func(T) error
	ProcessFunc  func(context.Context, T) error
	SuccessFunc  func(T) string
	LimitedFunc  func(path string) []string
}

func (f Funcs[T]) Validate(value T) error {
	if f.ValidateFunc == nil {
		return nil
	}
	return f.ValidateFunc(value)
}

func (f Funcs[T]) Process(ctx context.Context, value T) error {
	if f.ProcessFunc == nil {
		return nil
	}
	return f.ProcessFunc(ctx, value)
}

func (f Funcs[T]) SuccessMessage(value T) string {
	if f.SuccessFunc == nil {
		return ""
	}
	return f.SuccessFunc(value)
}

func (f Funcs[T]) LimitedResponses(path string) []string {
	if f.LimitedFunc == nil {
		return nil
	}
	return f.LimitedFunc(path)
}

// PlainHandler implements an action that takes no payload.
type PlainHandler interface {
	Process(ctx context.Context) error
	SuccessMessage() string
}

type plain struct {
	Action
}

// NewWithoutPayload wraps h so it runs on an empty value. Any data sent by
// the peer is ignored and the action never fails validation.
func NewWithoutPayload(name, description string, h PlainHandler) Action {
	return plain{Action: New[struct{}](name, description, Funcs[struct{}]{
		ProcessFunc: func(ctx context.Context, _ struct{}) error { return h.Process(ctx) },
		SuccessFunc: func(struct{}) string { return h.SuccessMessage() },
	})}
}

func (plain) Schema() (*schema.Node, error) { return nil, nil }
func (plain) TakesPayload() bool            { return false }
func (plain) Decode([]byte) (any, error)    { return struct{}{}, nil }

// PlainFuncs is a PlainHandler built from plain functions.
type PlainFuncs struct {
	ProcessFunc func(context.Context) error
	Message     string
}

func (f PlainFuncs) Process(ctx context.Context) error {
	if f.ProcessFunc == nil {
		return nil
	}
	return f.ProcessFunc(ctx)
}

func (f PlainFuncs) SuccessMessage() string { return f.Message }
