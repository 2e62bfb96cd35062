package messenger

import "context"

// Messenger is the outbound delivery port. Implementations translate a
// normalized transport address and message content into an actual send over
// the chat transport and return the transport's message id.
type Messenger interface {
	SendText(ctx context.Context, address, content string) (messageID string, err error)
	SendMedia(ctx context.Context, address, mediaRef, caption string) (messageID string, err error)
}
