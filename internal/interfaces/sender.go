package interfaces

import (
	"context"

	"vertbot/internal/types"
)

type Sender interface {
	Send(ctx context.Context, channelID string, msg types.Message) error
}
