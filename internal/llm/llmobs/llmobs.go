package llmobs

import (
	"context"
	"time"

	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/trace"
)

// observableCommentator wraps a Commentator with logging & tracing
type observableCommentator struct {
	commentator interfaces.Commentator
}

var _ interfaces.Commentator = (*observableCommentator)(nil)

func Wrap(c interfaces.Commentator) interfaces.Commentator {
	return &observableCommentator{
		commentator: c,
	}
}

func (oc *observableCommentator) Ask(ctx context.Context, question string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Ask")
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Requesting commentary",
		"question_len", len(question),
	)

	answer, err := oc.commentator.Ask(ctx, question)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Commentary request failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Commentary received",
		"answer_len", len(answer),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}
