package collab_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/models"
)

type fakePeer struct {
	connId     string
	credential string
	identity   models.Identity

	events chan collab.Envelope

	mu        sync.Mutex
	closeCode int
	closed    bool
}

func newPeer(connId, credential, userId string) *fakePeer {
	return &fakePeer{
		connId:     connId,
		credential: credential,
		identity:   models.Identity{UserId: userId, Name: "name-" + userId, CompanyId: "acme"},
		events:     make(chan collab.Envelope, 256),
	}
}

func (p *fakePeer) ConnId() string            { return p.connId }
func (p *fakePeer) Credential() string        { return p.credential }
func (p *fakePeer) Identity() models.Identity { return p.identity }

func (p *fakePeer) Send(message []byte) bool {
	var env collab.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return false
	}
	select {
	case p.events <- env:
		return true
	default:
		return false
	}
}

func (p *fakePeer) Close(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCode = code
}

func (p *fakePeer) isClosed() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.closeCode
}

// next returns the next event of eventType, skipping others.
func (p *fakePeer) next(t *testing.T, eventType string) collab.Envelope {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case env := <-p.events:
			if env.Type == eventType {
				return env
			}
		case <-timeout:
			t.Fatalf("%s: timed out waiting for %s", p.connId, eventType)
			return collab.Envelope{}
		}
	}
}

// none asserts no event of eventType arrives within a short window.
func (p *fakePeer) none(t *testing.T, eventType string) {
	t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case env := <-p.events:
			if env.Type == eventType {
				t.Fatalf("%s: unexpected %s", p.connId, eventType)
			}
		case <-timeout:
			return
		}
	}
}

type staticDirectory map[string]models.User

func (d staticDirectory) GetUsers(ctx context.Context, userIds []string) ([]models.User, error) {
	var out []models.User
	for _, id := range userIds {
		if u, ok := d[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func startHub(t *testing.T, users collab.UserDirectory, grace time.Duration) *collab.Hub {
	t.Helper()
	hub := collab.NewHub(users, grace, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func decode[T any](t *testing.T, env collab.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAdmit_SendsAuthorized(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	peer := newPeer("c1", "tok-aaaaaaaaaaaa", "u1")

	require.NoError(t, hub.Admit(peer))

	data := decode[collab.AuthorizedData](t, peer.next(t, collab.EventAuthorized))
	assert.Equal(t, "c1", data.ConnId)
	assert.Equal(t, "u1", data.Identity.UserId)

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "c1", sessions[0].ConnId)
	assert.Equal(t, "u1", sessions[0].UserId)
	assert.Equal(t, "tok-aaaa...", sessions[0].Credential)
}

func TestAdmit_DisplacesOlderConnection(t *testing.T) {
	hub := startHub(t, nil, 50*time.Millisecond)
	old := newPeer("c1", "same-credential", "u1")
	fresh := newPeer("c2", "same-credential", "u1")

	require.NoError(t, hub.Admit(old))
	old.next(t, collab.EventAuthorized)

	require.NoError(t, hub.Admit(fresh))
	fresh.next(t, collab.EventAuthorized)

	notice := decode[collab.NoticeData](t, old.next(t, collab.EventSessionDisplacing))
	assert.NotEmpty(t, notice.Message)

	closed, _ := old.isClosed()
	assert.False(t, closed, "stale connection closed before the grace delay")

	old.next(t, collab.EventSessionTerminated)
	assert.Eventually(t, func() bool {
		closed, code := old.isClosed()
		return closed && code == collab.CloseSessionTerminated
	}, time.Second, 10*time.Millisecond)

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "c2", sessions[0].ConnId)
}

func TestDisplacement_CancelledWhenStaleDisconnects(t *testing.T) {
	hub := startHub(t, nil, 50*time.Millisecond)
	old := newPeer("c1", "same-credential", "u1")
	fresh := newPeer("c2", "same-credential", "u1")

	require.NoError(t, hub.Admit(old))
	require.NoError(t, hub.Admit(fresh))
	old.next(t, collab.EventSessionDisplacing)

	hub.Disconnect(old)

	time.Sleep(150 * time.Millisecond)
	closed, _ := old.isClosed()
	assert.False(t, closed)

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "c2", sessions[0].ConnId)
}

func TestDisconnect_UnbindsOnlyOwnBinding(t *testing.T) {
	hub := startHub(t, nil, time.Hour)
	old := newPeer("c1", "same-credential", "u1")
	fresh := newPeer("c2", "same-credential", "u1")

	require.NoError(t, hub.Admit(old))
	require.NoError(t, hub.Admit(fresh))

	hub.Disconnect(old)
	require.Len(t, hub.Sessions(), 1)

	hub.Disconnect(fresh)
	assert.Eventually(t, func() bool {
		return len(hub.Sessions()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestOnlineUsers_ExcludesDisconnected(t *testing.T) {
	directory := staticDirectory{
		"u1": {Id: "u1", Name: "Ada", ProfileImage: "img"},
	}
	hub := startHub(t, directory, time.Second)

	a := newPeer("c1", "cred-a", "u1")
	b := newPeer("c2", "cred-b", "u2")
	require.NoError(t, hub.Admit(a))
	require.NoError(t, hub.Admit(b))

	_, err := hub.Join(a, "doc", "Ada")
	require.NoError(t, err)
	a.next(t, collab.EventOnlineUsers)

	_, err = hub.Join(b, "doc", "Bob")
	require.NoError(t, err)

	online := decode[collab.OnlineUsersData](t, b.next(t, collab.EventOnlineUsers))
	assert.Equal(t, []models.OnlineUser{
		{Id: "u1", Name: "Ada", ProfileImage: "img"},
		{Id: "u2", Name: "Bob"},
	}, online.Users)

	hub.Disconnect(b)

	assert.Eventually(t, func() bool {
		select {
		case env := <-a.events:
			if env.Type != collab.EventOnlineUsers {
				return false
			}
			data := decode[collab.OnlineUsersData](t, env)
			return len(data.Users) == 1 && data.Users[0].Id == "u1"
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	assert.Len(t, hub.Room("doc").Entries, 1)
}

func TestJoin_SwitchingReleasesOldRoom(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	b := newPeer("c2", "cred-b", "u2")
	require.NoError(t, hub.Admit(a))
	require.NoError(t, hub.Admit(b))

	hub.Join(a, "docA", "Ada")
	hub.Join(b, "docA", "Bob")
	require.True(t, hub.SetTyping(a, "docA", true))

	previous, err := hub.Join(a, "docB", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "docA", previous)

	stopped := decode[collab.TypingData](t, b.next(t, collab.EventUserStoppedTyping))
	assert.Equal(t, "Ada", stopped.DisplayName)
	assert.Empty(t, stopped.Typing)

	assert.Len(t, hub.Room("docA").Entries, 1)
	assert.Empty(t, hub.Room("docA").Typing)
	assert.Len(t, hub.Room("docB").Entries, 1)
}

func TestLeave_TwiceIsNoop(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	require.NoError(t, hub.Admit(a))

	hub.Join(a, "doc", "Ada")

	assert.True(t, hub.Leave(a, "doc"))
	assert.False(t, hub.Leave(a, "doc"))
	assert.False(t, hub.Leave(a, ""))
	assert.Empty(t, hub.Room("doc").Entries)
}

func TestTyping_BroadcastToOthersOnly(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	b := newPeer("c2", "cred-b", "u2")
	require.NoError(t, hub.Admit(a))
	require.NoError(t, hub.Admit(b))
	hub.Join(a, "doc", "Ada")
	hub.Join(b, "doc", "Bob")

	require.True(t, hub.SetTyping(a, "doc", true))
	typing := decode[collab.TypingData](t, b.next(t, collab.EventUserTyping))
	assert.Equal(t, "Ada", typing.DisplayName)
	assert.Equal(t, []string{"Ada"}, typing.Typing)
	a.none(t, collab.EventUserTyping)

	require.True(t, hub.SetTyping(a, "doc", false))
	b.next(t, collab.EventUserStoppedTyping)
	assert.Empty(t, hub.Room("doc").Typing)

	assert.False(t, hub.SetTyping(a, "other-doc", true))
}

func TestDisconnect_ImplicitTypingStop(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	b := newPeer("c2", "cred-b", "u2")
	require.NoError(t, hub.Admit(a))
	require.NoError(t, hub.Admit(b))
	hub.Join(a, "doc", "Ada")
	hub.Join(b, "doc", "Bob")
	hub.SetTyping(a, "doc", true)

	hub.Disconnect(a)

	stopped := decode[collab.TypingData](t, b.next(t, collab.EventUserStoppedTyping))
	assert.Equal(t, "Ada", stopped.DisplayName)
	assert.Empty(t, hub.Room("doc").Typing)
}

func TestPurgeDocument_EvictsRoom(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	owner := newPeer("c1", "cred-a", "owner")
	x := newPeer("c2", "cred-b", "x")
	y := newPeer("c3", "cred-c", "y")
	for _, p := range []*fakePeer{owner, x, y} {
		require.NoError(t, hub.Admit(p))
	}
	hub.Join(x, "doc", "X")
	hub.Join(y, "doc", "Y")
	hub.SetTyping(x, "doc", true)

	evicted := hub.PurgeDocument("doc")
	assert.ElementsMatch(t, []string{"c2", "c3"}, evicted)

	for _, p := range []*fakePeer{x, y} {
		deleted := decode[collab.DocumentDeletedData](t, p.next(t, collab.EventDocumentDeleted))
		assert.Equal(t, "doc", deleted.DocumentId)
	}

	room := hub.Room("doc")
	assert.Empty(t, room.Entries)
	assert.Empty(t, room.Typing)
}

func TestUserUpdated_RebroadcastsOnline(t *testing.T) {
	directory := staticDirectory{"u1": {Id: "u1", Name: "Ada"}}
	hub := startHub(t, directory, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	require.NoError(t, hub.Admit(a))
	hub.Join(a, "doc", "Ada")
	a.next(t, collab.EventOnlineUsers)

	hub.UserUpdated("u1")
	a.next(t, collab.EventOnlineUsers)
}

func TestClearSessions(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	b := newPeer("c2", "cred-b", "u2")
	require.NoError(t, hub.Admit(a))
	require.NoError(t, hub.Admit(b))

	assert.Equal(t, 2, hub.ClearSessions(""))
	assert.Empty(t, hub.Sessions())

	for _, p := range []*fakePeer{a, b} {
		p.next(t, collab.EventSessionTerminated)
		closed, code := p.isClosed()
		assert.True(t, closed)
		assert.Equal(t, collab.CloseSessionsCleared, code)
	}
}

func TestLogout_Unbinds(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	a := newPeer("c1", "cred-a", "u1")
	require.NoError(t, hub.Admit(a))

	hub.Logout("cred-a")
	assert.Empty(t, hub.Sessions())

	hub.Logout("cred-a")
}

func TestLogoutPeer_KeepsNewerBinding(t *testing.T) {
	hub := startHub(t, nil, time.Second)
	old := newPeer("c1", "same-credential", "u1")
	fresh := newPeer("c2", "same-credential", "u1")

	require.NoError(t, hub.Admit(old))
	require.NoError(t, hub.Admit(fresh))
	old.next(t, collab.EventSessionDisplacing)

	hub.LogoutPeer(old)

	sessions := hub.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "c2", sessions[0].ConnId)

	hub.LogoutPeer(fresh)
	assert.Empty(t, hub.Sessions())
}

func TestHub_StoppedReturnsErr(t *testing.T) {
	hub := collab.NewHub(nil, time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.ErrorIs(t, hub.Admit(newPeer("c1", "cred", "u1")), collab.ErrHubClosed)
	assert.Nil(t, hub.Sessions())
}
