package cache

import "context"

// Pub/sub channels shared by every server process.
const (
	ChannelDocumentDeleted = "document-deleted"
	ChannelUserUpdated     = "user-updated"
	ChannelSessionsCleared = "sessions-cleared"
)

type Cache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error
}

type DocumentDeletedMessage struct {
	DocumentId string `json:"documentId"`
}

type UserUpdatedMessage struct {
	UserId string `json:"userId"`
}

type SessionsClearedMessage struct {
	Reason string `json:"reason"`
}
