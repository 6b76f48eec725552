package mstgrn

import "context"

// Observer receives intermediate tensors produced during a forward pass.
// Observers must not modify the tensor.
type Observer interface {
	Observe(ctx context.Context, name string, t *Tensor) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, name string, t *Tensor) error

func (f ObserverFunc) Observe(ctx context.Context, name string, t *Tensor) error {
	return f(ctx, name, t)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Observe(context.Context, string, *Tensor) error { return nil }
