package collab

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/metrics"
	"github.com/zlnvch/collabdocs/models"
)

const (
	DefaultGraceDelay = 2 * time.Second

	onlineLookupTimeout = 5 * time.Second
)

var ErrHubClosed = errors.New("hub stopped")

// UserDirectory supplies fresh names and images for online_users.
type UserDirectory interface {
	GetUsers(ctx context.Context, userIds []string) ([]models.User, error)
}

// SessionInfo describes one binding. The credential is masked.
type SessionInfo struct {
	Credential string `json:"credential"`
	ConnId     string `json:"connId"`
	UserId     string `json:"userId,omitempty"`
	DocumentId string `json:"documentId,omitempty"`
}

// RoomState is a snapshot of one document's presence and typing state.
type RoomState struct {
	Entries []models.PresenceEntry
	Typing  []string
}

type admitRequest struct {
	peer  Peer
	reply chan struct{}
}

type joinRequest struct {
	peer        Peer
	documentId  string
	displayName string
	reply       chan string
}

type leaveRequest struct {
	connId     string
	documentId string
	reply      chan bool
}

type typingRequest struct {
	connId     string
	documentId string
	start      bool
	reply      chan bool
}

type broadcastRequest struct {
	documentId    string
	excludeConnId string
	message       []byte
}

type joinedQuery struct {
	connId     string
	documentId string
	reply      chan bool
}

type purgeRequest struct {
	documentId string
	reply      chan []string
}

// logoutRequest with a connId only unbinds a binding that still points at
// that connection.
type logoutRequest struct {
	credential string
	connId     string
	reply      chan struct{}
}

type sessionsQuery struct {
	reply chan []SessionInfo
}

type clearRequest struct {
	reason string
	reply  chan int
}

type roomQuery struct {
	documentId string
	reply      chan RoomState
}

type onlineResult struct {
	documentId string
	seq        uint64
	users      []models.OnlineUser
}

// Hub owns the session registry, presence and typing state. Run is the only
// goroutine that touches them; everything else goes through the channels.
type Hub struct {
	users      UserDirectory
	graceDelay time.Duration
	log        *zap.Logger

	registry *Registry
	presence *Presence
	typing   *Typing
	peers    map[string]Peer
	pending  map[string]*time.Timer

	// Latest online_users computation per document. Older results are
	// dropped on arrival.
	onlineSeq  map[string]uint64
	seq        uint64
	lookupCtx  context.Context
	lookupStop context.CancelFunc

	admitCh       chan admitRequest
	disconnectCh  chan Peer
	joinCh        chan joinRequest
	leaveCh       chan leaveRequest
	typingCh      chan typingRequest
	broadcastCh   chan broadcastRequest
	joinedCh      chan joinedQuery
	purgeCh       chan purgeRequest
	userUpdatedCh chan string
	logoutCh      chan logoutRequest
	sessionsCh    chan sessionsQuery
	clearCh       chan clearRequest
	roomCh        chan roomQuery
	displaceCh    chan string
	onlineCh      chan onlineResult
	done          chan struct{}
}

func NewHub(users UserDirectory, graceDelay time.Duration, log *zap.Logger) *Hub {
	if graceDelay <= 0 {
		graceDelay = DefaultGraceDelay
	}
	if log == nil {
		log = zap.NewNop()
	}

	lookupCtx, lookupStop := context.WithCancel(context.Background())
	return &Hub{
		users:         users,
		graceDelay:    graceDelay,
		log:           log,
		registry:      NewRegistry(),
		presence:      NewPresence(),
		typing:        NewTyping(),
		peers:         make(map[string]Peer),
		pending:       make(map[string]*time.Timer),
		onlineSeq:     make(map[string]uint64),
		lookupCtx:     lookupCtx,
		lookupStop:    lookupStop,
		admitCh:       make(chan admitRequest, 64),
		disconnectCh:  make(chan Peer, 256),
		joinCh:        make(chan joinRequest, 256),
		leaveCh:       make(chan leaveRequest, 256),
		typingCh:      make(chan typingRequest, 1024),
		broadcastCh:   make(chan broadcastRequest, 1024),
		joinedCh:      make(chan joinedQuery, 1024),
		purgeCh:       make(chan purgeRequest, 64),
		userUpdatedCh: make(chan string, 64),
		logoutCh:      make(chan logoutRequest, 64),
		sessionsCh:    make(chan sessionsQuery, 8),
		clearCh:       make(chan clearRequest, 8),
		roomCh:        make(chan roomQuery, 64),
		displaceCh:    make(chan string, 64),
		onlineCh:      make(chan onlineResult, 256),
		done:          make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, timer := range h.pending {
			timer.Stop()
		}
		h.lookupStop()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-h.admitCh:
			h.admit(req.peer)
			req.reply <- struct{}{}

		case peer := <-h.disconnectCh:
			h.disconnect(peer)

		case req := <-h.joinCh:
			req.reply <- h.join(req.peer, req.documentId, req.displayName)

		case req := <-h.leaveCh:
			req.reply <- h.leave(req.connId, req.documentId)

		case req := <-h.typingCh:
			req.reply <- h.setTyping(req.connId, req.documentId, req.start)

		case req := <-h.broadcastCh:
			h.broadcast(req.documentId, req.message, req.excludeConnId)

		case q := <-h.joinedCh:
			entry, ok := h.presence.Entry(q.connId)
			q.reply <- ok && entry.DocumentId == q.documentId

		case req := <-h.purgeCh:
			req.reply <- h.purge(req.documentId)

		case userId := <-h.userUpdatedCh:
			for _, documentId := range h.presence.DocumentsWithUser(userId) {
				h.refreshOnline(documentId)
			}

		case req := <-h.logoutCh:
			if req.connId == "" {
				h.registry.Unbind(req.credential)
			} else {
				h.registry.UnbindIfBound(req.credential, req.connId)
			}
			req.reply <- struct{}{}

		case q := <-h.sessionsCh:
			q.reply <- h.sessions()

		case req := <-h.clearCh:
			req.reply <- h.clearSessions(req.reason)

		case q := <-h.roomCh:
			q.reply <- RoomState{
				Entries: h.presence.InDocument(q.documentId),
				Typing:  h.typing.Names(q.documentId),
			}

		case connId := <-h.displaceCh:
			h.completeDisplacement(connId)

		case res := <-h.onlineCh:
			h.deliverOnline(res)
		}

		metrics.SessionBindings.Set(float64(h.registry.Len()))
		metrics.PresentConnections.Set(float64(h.presence.Len()))
		metrics.TypingDocuments.Set(float64(h.typing.Len()))
	}
}

func submit[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

func await[T any](h *Hub, reply chan T) (T, bool) {
	select {
	case v := <-reply:
		return v, true
	case <-h.done:
		var zero T
		return zero, false
	}
}

func call[Req any, Resp any](h *Hub, ch chan Req, req Req, reply chan Resp) (Resp, bool) {
	if !submit(h, ch, req) {
		var zero Resp
		return zero, false
	}
	return await(h, reply)
}

// Admit registers peer and binds its credential, displacing any older
// connection bound to the same credential. It returns once peer has been
// sent its authorized event.
func (h *Hub) Admit(peer Peer) error {
	reply := make(chan struct{}, 1)
	if _, ok := call(h, h.admitCh, admitRequest{peer: peer, reply: reply}, reply); !ok {
		return ErrHubClosed
	}
	return nil
}

// Disconnect drops every trace of peer. Safe to call more than once.
func (h *Hub) Disconnect(peer Peer) {
	submit(h, h.disconnectCh, peer)
}

// Join places peer in documentId and returns the document it left, if any.
func (h *Hub) Join(peer Peer, documentId, displayName string) (string, error) {
	reply := make(chan string, 1)
	previous, ok := call(h, h.joinCh, joinRequest{peer: peer, documentId: documentId, displayName: displayName, reply: reply}, reply)
	if !ok {
		return "", ErrHubClosed
	}
	return previous, nil
}

// Leave removes peer from documentId, or from whatever room it is in when
// documentId is empty. It reports whether anything changed.
func (h *Hub) Leave(peer Peer, documentId string) bool {
	reply := make(chan bool, 1)
	left, _ := call(h, h.leaveCh, leaveRequest{connId: peer.ConnId(), documentId: documentId, reply: reply}, reply)
	return left
}

// SetTyping records a typing start or stop for a peer joined to documentId.
// It reports false when the peer is not in that room.
func (h *Hub) SetTyping(peer Peer, documentId string, start bool) bool {
	reply := make(chan bool, 1)
	ok, _ := call(h, h.typingCh, typingRequest{connId: peer.ConnId(), documentId: documentId, start: start, reply: reply}, reply)
	return ok
}

// Broadcast sends message to everyone in documentId except excludeConnId.
func (h *Hub) Broadcast(documentId string, message []byte, excludeConnId string) {
	submit(h, h.broadcastCh, broadcastRequest{documentId: documentId, message: message, excludeConnId: excludeConnId})
}

func (h *Hub) IsJoined(peer Peer, documentId string) bool {
	reply := make(chan bool, 1)
	joined, _ := call(h, h.joinedCh, joinedQuery{connId: peer.ConnId(), documentId: documentId, reply: reply}, reply)
	return joined
}

// PurgeDocument sends document_deleted to the room, then clears its presence
// and typing state. It returns the connections that were in the room.
func (h *Hub) PurgeDocument(documentId string) []string {
	reply := make(chan []string, 1)
	connIds, _ := call(h, h.purgeCh, purgeRequest{documentId: documentId, reply: reply}, reply)
	return connIds
}

// UserUpdated re-broadcasts online_users in every room userId is in.
func (h *Hub) UserUpdated(userId string) {
	submit(h, h.userUpdatedCh, userId)
}

// Logout unbinds credential whichever connection holds it.
func (h *Hub) Logout(credential string) {
	reply := make(chan struct{}, 1)
	call(h, h.logoutCh, logoutRequest{credential: credential, reply: reply}, reply)
}

// LogoutPeer unbinds the peer's credential unless a newer connection has
// taken it over.
func (h *Hub) LogoutPeer(peer Peer) {
	reply := make(chan struct{}, 1)
	call(h, h.logoutCh, logoutRequest{credential: peer.Credential(), connId: peer.ConnId(), reply: reply}, reply)
}

func (h *Hub) Sessions() []SessionInfo {
	reply := make(chan []SessionInfo, 1)
	sessions, _ := call(h, h.sessionsCh, sessionsQuery{reply: reply}, reply)
	return sessions
}

// ClearSessions terminates every bound connection and empties the registry.
// It returns the number of bindings removed.
func (h *Hub) ClearSessions(reason string) int {
	reply := make(chan int, 1)
	n, _ := call(h, h.clearCh, clearRequest{reason: reason, reply: reply}, reply)
	return n
}

func (h *Hub) Room(documentId string) RoomState {
	reply := make(chan RoomState, 1)
	state, _ := call(h, h.roomCh, roomQuery{documentId: documentId, reply: reply}, reply)
	return state
}

func (h *Hub) admit(peer Peer) {
	connId := peer.ConnId()
	credential := peer.Credential()
	h.peers[connId] = peer

	if staleId, ok := h.registry.Lookup(credential); ok && staleId != connId {
		if stale, ok := h.peers[staleId]; ok {
			h.scheduleDisplacement(stale)
		}
	}

	h.registry.Bind(credential, connId)
	peer.Send(Encode(EventAuthorized, AuthorizedData{ConnId: connId, Identity: peer.Identity()}))
}

func (h *Hub) scheduleDisplacement(stale Peer) {
	staleId := stale.ConnId()
	if _, scheduled := h.pending[staleId]; scheduled {
		return
	}

	stale.Send(Encode(EventSessionDisplacing, NoticeData{Message: displacedNotice}))
	h.pending[staleId] = time.AfterFunc(h.graceDelay, func() {
		submit(h, h.displaceCh, staleId)
	})

	metrics.SessionsDisplaced.Inc()
	h.log.Info("session displaced",
		zap.String("conn_id", staleId),
		zap.String("user_id", stale.Identity().UserId),
	)
}

func (h *Hub) completeDisplacement(connId string) {
	delete(h.pending, connId)

	stale, ok := h.peers[connId]
	if !ok {
		return
	}

	stale.Send(Encode(EventSessionTerminated, NoticeData{Message: "Session closed because your account signed in elsewhere"}))
	stale.Close(CloseSessionTerminated, "Session terminated")

	delete(h.peers, connId)
	h.releasePresence(connId)
	h.registry.UnbindIfBound(stale.Credential(), connId)
}

func (h *Hub) disconnect(peer Peer) {
	connId := peer.ConnId()
	delete(h.peers, connId)

	if timer, ok := h.pending[connId]; ok {
		timer.Stop()
		delete(h.pending, connId)
	}

	h.releasePresence(connId)
	h.registry.UnbindIfBound(peer.Credential(), connId)
}

func (h *Hub) join(peer Peer, documentId, displayName string) string {
	connId := peer.ConnId()

	previous := ""
	if entry, ok := h.presence.Entry(connId); ok && entry.DocumentId != documentId {
		previous = entry.DocumentId
		h.releasePresence(connId)
	}

	h.presence.Join(connId, documentId, peer.Identity().UserId, displayName)
	h.refreshOnline(documentId)
	return previous
}

func (h *Hub) leave(connId, documentId string) bool {
	entry, ok := h.presence.Entry(connId)
	if !ok || (documentId != "" && entry.DocumentId != documentId) {
		return false
	}
	return h.releasePresence(connId)
}

// releasePresence removes connId from its room with an implicit typing stop
// and refreshes the room's online list.
func (h *Hub) releasePresence(connId string) bool {
	entry, ok := h.presence.Leave(connId)
	if !ok {
		return false
	}

	if h.typing.IsTyping(entry.DocumentId, entry.DisplayName) {
		names := h.typing.Stop(entry.DocumentId, entry.DisplayName)
		h.broadcast(entry.DocumentId, Encode(EventUserStoppedTyping, TypingData{
			DocumentId:  entry.DocumentId,
			DisplayName: entry.DisplayName,
			Typing:      names,
		}), connId)
	}

	h.refreshOnline(entry.DocumentId)
	return true
}

func (h *Hub) setTyping(connId, documentId string, start bool) bool {
	entry, ok := h.presence.Entry(connId)
	if !ok || entry.DocumentId != documentId {
		return false
	}

	if start {
		names := h.typing.Start(documentId, entry.DisplayName)
		h.broadcast(documentId, Encode(EventUserTyping, TypingData{
			DocumentId:  documentId,
			DisplayName: entry.DisplayName,
			Typing:      names,
		}), connId)
		return true
	}

	if !h.typing.IsTyping(documentId, entry.DisplayName) {
		return true
	}
	names := h.typing.Stop(documentId, entry.DisplayName)
	h.broadcast(documentId, Encode(EventUserStoppedTyping, TypingData{
		DocumentId:  documentId,
		DisplayName: entry.DisplayName,
		Typing:      names,
	}), connId)
	return true
}

func (h *Hub) broadcast(documentId string, message []byte, excludeConnId string) {
	for _, entry := range h.presence.InDocument(documentId) {
		if entry.ConnId == excludeConnId {
			continue
		}
		if peer, ok := h.peers[entry.ConnId]; ok {
			peer.Send(message)
		}
	}
}

func (h *Hub) purge(documentId string) []string {
	h.broadcast(documentId, Encode(EventDocumentDeleted, DocumentDeletedData{DocumentId: documentId}), "")

	connIds := h.presence.Purge(documentId)
	h.typing.Purge(documentId)
	delete(h.onlineSeq, documentId)
	return connIds
}

// refreshOnline computes the room's online list off the hub goroutine and
// delivers it through onlineCh.
func (h *Hub) refreshOnline(documentId string) {
	entries := h.presence.InDocument(documentId)
	if len(entries) == 0 {
		delete(h.onlineSeq, documentId)
		return
	}

	h.seq++
	seq := h.seq
	h.onlineSeq[documentId] = seq

	go func() {
		users := h.listOnline(entries)
		submit(h, h.onlineCh, onlineResult{documentId: documentId, seq: seq, users: users})
	}()
}

func (h *Hub) deliverOnline(res onlineResult) {
	if h.onlineSeq[res.documentId] != res.seq {
		return
	}
	delete(h.onlineSeq, res.documentId)

	h.broadcast(res.documentId, Encode(EventOnlineUsers, OnlineUsersData{
		DocumentId: res.documentId,
		Users:      res.users,
	}), "")
}

// listOnline resolves fresh user metadata. Users that cannot be loaded keep
// the display name they joined with.
func (h *Hub) listOnline(entries []models.PresenceEntry) []models.OnlineUser {
	userIds := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !slices.Contains(userIds, entry.UserId) {
			userIds = append(userIds, entry.UserId)
		}
	}

	known := make(map[string]models.User, len(userIds))
	if h.users != nil {
		ctx, cancel := context.WithTimeout(h.lookupCtx, onlineLookupTimeout)
		users, err := h.users.GetUsers(ctx, userIds)
		cancel()
		if err != nil {
			h.log.Warn("online users lookup failed",
				zap.Error(apperr.BestEffort(err, "load online users")))
		}
		for _, u := range users {
			known[u.Id] = u
		}
	}

	out := make([]models.OnlineUser, 0, len(userIds))
	seen := make(map[string]bool, len(userIds))
	for _, entry := range entries {
		if seen[entry.UserId] {
			continue
		}
		seen[entry.UserId] = true

		if u, ok := known[entry.UserId]; ok {
			out = append(out, models.OnlineUser{Id: u.Id, Name: u.Name, ProfileImage: u.ProfileImage})
		} else {
			out = append(out, models.OnlineUser{Id: entry.UserId, Name: entry.DisplayName})
		}
	}

	slices.SortStableFunc(out, func(a, b models.OnlineUser) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func (h *Hub) sessions() []SessionInfo {
	bindings := h.registry.All()
	out := make([]SessionInfo, len(bindings))
	for i, b := range bindings {
		out[i] = SessionInfo{Credential: MaskCredential(b.Credential), ConnId: b.ConnId}
		if peer, ok := h.peers[b.ConnId]; ok {
			out[i].UserId = peer.Identity().UserId
		}
		if entry, ok := h.presence.Entry(b.ConnId); ok {
			out[i].DocumentId = entry.DocumentId
		}
	}
	return out
}

func (h *Hub) clearSessions(reason string) int {
	if reason == "" {
		reason = "All sessions were closed by an administrator"
	}

	for _, b := range h.registry.All() {
		if peer, ok := h.peers[b.ConnId]; ok {
			peer.Send(Encode(EventSessionTerminated, NoticeData{Message: reason}))
			peer.Close(CloseSessionsCleared, "Sessions cleared")
		}
	}

	n := h.registry.Len()
	h.registry.Clear()
	return n
}

// MaskCredential keeps a short prefix for log and admin listings.
func MaskCredential(credential string) string {
	if len(credential) <= 12 {
		return "****"
	}
	return credential[:8] + "..."
}
