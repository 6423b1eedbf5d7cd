package interfaces

import "context"

// Commentator answers free-form market questions with an LLM.
type Commentator interface {
	Ask(ctx context.Context, question string) (string, error)
}
