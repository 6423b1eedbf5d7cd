package noop

import (
	"context"

	"vertbot/internal/logger"
)

// Commentator is used when no LLM provider is configured.
type Commentator struct{}

func NewCommentator() *Commentator {
	return &Commentator{}
}

func (c *Commentator) Ask(ctx context.Context, question string) (string, error) {
	logger.Debug(ctx, "Noop commentator called", "question_len", len(question))
	return "AI commentary is not configured on this bot.", nil
}
