package app

import (
	"context"

	"quiz-client/internal/domain"
)

// Gate asks the user a yes/no question. Implementations may block until the
// user answers or ctx is done.
type Gate interface {
	Confirm(ctx context.Context, prompt domain.Prompt) (bool, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, prompt domain.Prompt) (bool, error)

func (f GateFunc) Confirm(ctx context.Context, prompt domain.Prompt) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm answers yes to every prompt.
var AlwaysConfirm Gate = GateFunc(func(context.Context, domain.Prompt) (bool, error) {
	return true, nil
})
