package interfaces

import "context"

// Runner serialises work that touches shared monitor state.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
