package collab

import (
	"context"
	"strings"

	"github.com/zlnvch/collabdocs/models"
)

type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (models.Identity, error)
}

// Gate turns a presented credential into an Identity and hands verified
// connections to the Hub.
type Gate struct {
	auth Authenticator
	hub  *Hub
}

func NewGate(auth Authenticator, hub *Hub) *Gate {
	return &Gate{auth: auth, hub: hub}
}

// Authorize fails with an authentication error for a missing, malformed,
// badly signed or expired credential.
func (g *Gate) Authorize(ctx context.Context, credential string) (models.Identity, error) {
	return g.auth.AuthenticateToken(ctx, strings.TrimSpace(credential))
}

func (g *Gate) Admit(peer Peer) error {
	return g.hub.Admit(peer)
}

// Release is called once the connection is gone.
func (g *Gate) Release(peer Peer) {
	g.hub.Disconnect(peer)
}
