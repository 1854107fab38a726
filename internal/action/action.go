package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/schema"
)

// Action is a named capability offered to the remote peer. Values passed to
// Validate, Process and SuccessMessage are the ones returned by Decode.
type Action interface {
	Name() string
	Description() string
	// Schema is nil for actions without a payload.
	Schema() (*schema.Node, error)
	TakesPayload() bool
	Decode(data []byte) (any, error)
	Validate(value any) error
	Process(ctx context.Context, value any) error
	SuccessMessage(value any) string
}

// Handler implements the behaviour of an action with payload type T.
type Handler[T any] interface {
	Validate(value T) error
	Process(ctx context.Context, value T) error
	SuccessMessage(value T) string
}

// LimitedResponder may be implemented by a Handler to restrict string
// fields to a fixed set of answers. path is the field name, or "[name]"
// for elements of a list field.
type LimitedResponder interface {
	LimitedResponses(path string) []string
}

type typed[T any] struct {
	name        string
	description string
	handler     Handler[T]
	schema      func() (*schema.Node, error)
}

// New returns an action whose payload decodes into T. The schema is derived
// on first use and kept.
func New[T any](name, description string, handler Handler[T]) Action {
	a := &typed[T]{name: name, description: description, handler: handler}
	a.schema = sync.OnceValues(func() (*schema.Node, error) {
		var resolver schema.Resolver
		if lr, ok := handler.(LimitedResponder); ok {
			resolver = lr.LimitedResponses
		}
		node, err := schema.For[T](resolver)
		if err != nil {
			return nil, fmt.Errorf("derive schema for action %q: %w", name, err)
		}
		return node, nil
	})
	return a
}

func (a *typed[T]) Name() string        { return a.name }
func (a *typed[T]) Description() string { return a.description }
func (a *typed[T]) TakesPayload() bool  { return true }

func (a *typed[T]) Schema() (*schema.Node, error) {
	return a.schema()
}

// Decode accepts only payloads that match the derived schema: unknown keys
// and missing required fields are errors.
func (a *typed[T]) Decode(data []byte) (any, error) {
	node, err := a.schema()
	if err != nil {
		return nil, err
	}
	var v T
	if err := decodeStrict(data, node, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *typed[T]) Validate(value any) error {
	v, err := a.cast(value)
	if err != nil {
		return err
	}
	return a.handler.Validate(v)
}

func (a *typed[T]) Process(ctx context.Context, value any) error {
	v, err := a.cast(value)
	if err != nil {
		return err
	}
	return a.handler.Process(ctx, v)
}

func (a *typed[T]) SuccessMessage(value any) string {
	v, _ := a.cast(value)
	return a.handler.SuccessMessage(v)
}

func (a *typed[T]) cast(value any) (T, error) {
	v, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("action %q: value of type %T, want %T", a.name, value, zero)
	}
	return v, nil
}
