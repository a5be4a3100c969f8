package collab

import "github.com/zlnvch/collabdocs/models"

// Peer is one authenticated realtime connection.
type Peer interface {
	ConnId() string
	Credential() string
	Identity() models.Identity
	// Send queues message without blocking and reports whether it was
	// accepted.
	Send(message []byte) bool
	// Close ends the connection with a close frame.
	Close(code int, reason string)
}
