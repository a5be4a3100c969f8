package collab

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/cache"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
)

var ErrNotJoined = apperr.Validation("join the document before editing")

// DocumentService is the part of the service layer the coordinator drives.
type DocumentService interface {
	SelectDocument(ctx context.Context, identity models.Identity, documentId string) (service.SelectedDocument, error)
	ApplyEdit(ctx context.Context, identity models.Identity, req service.EditRequest) (models.Document, error)
	CreateDocument(ctx context.Context, identity models.Identity, req service.CreateDocumentRequest) (models.Document, error)
	DocumentView(ctx context.Context, doc models.Document) service.DocumentView
	DeleteDocument(ctx context.Context, identity models.Identity, documentId string) error
	UpdatePermissions(ctx context.Context, identity models.Identity, req service.UpdatePermissionsRequest) (models.Document, error)
	LoadCompanyDocuments(ctx context.Context, identity models.Identity) ([]service.DocumentView, error)
}

// SelectResponse answers select_document. Document is nil on failure.
type SelectResponse struct {
	Success bool `json:"success"`
	*service.SelectedDocument
	Error *ErrorData `json:"error,omitempty"`
}

// Coordinator runs the per-document collaboration flow: joins are read
// checked, edits are edit checked against a fresh document, persisted and
// fanned out to the rest of the room.
type Coordinator struct {
	docs DocumentService
	hub  *Hub
	log  *logger.ContextLogger
}

func NewCoordinator(docs DocumentService, hub *Hub, log *zap.Logger) *Coordinator {
	return &Coordinator{docs: docs, hub: hub, log: logger.NewContextLogger(log)}
}

func (c *Coordinator) fail(ctx context.Context, peer Peer, eventType string, err error, documentId string) {
	if apperr.Is(err, apperr.KindDependency) {
		c.log.LogError(ctx, err, "realtime operation failed", zap.String("event", eventType))
	}
	peer.Send(Encode(eventType, ErrorOf(err, documentId)))
}

// Select joins peer to documentId after a read check, leaving any other
// document first.
func (c *Coordinator) Select(ctx context.Context, peer Peer, documentId, displayName string) {
	selected, err := c.docs.SelectDocument(ctx, peer.Identity(), documentId)
	if err != nil {
		errData := ErrorOf(err, documentId)
		peer.Send(Encode(EventSelectDocumentResponse, SelectResponse{Success: false, Error: &errData}))
		return
	}

	if displayName == "" {
		displayName = peer.Identity().Name
	}
	if _, err := c.hub.Join(peer, documentId, displayName); err != nil {
		return
	}

	peer.Send(Encode(EventSelectDocumentResponse, SelectResponse{Success: true, SelectedDocument: &selected}))
}

func (c *Coordinator) Leave(peer Peer, documentId string) bool {
	return c.hub.Leave(peer, documentId)
}

func (c *Coordinator) Edit(ctx context.Context, peer Peer, req service.EditRequest) {
	if !c.hub.IsJoined(peer, req.DocumentId) {
		c.fail(ctx, peer, EventEditRejected, ErrNotJoined, req.DocumentId)
		return
	}

	doc, err := c.docs.ApplyEdit(ctx, peer.Identity(), req)
	if err != nil {
		c.fail(ctx, peer, EventEditRejected, err, req.DocumentId)
		return
	}

	c.DocumentEdited(doc.Id, doc.Content, peer.ConnId())
}

func (c *Coordinator) StartTyping(peer Peer, documentId string) bool {
	return c.hub.SetTyping(peer, documentId, true)
}

func (c *Coordinator) StopTyping(peer Peer, documentId string) bool {
	return c.hub.SetTyping(peer, documentId, false)
}

// Create makes a document. No presence exists for it until someone joins.
func (c *Coordinator) Create(ctx context.Context, peer Peer, req service.CreateDocumentRequest) {
	doc, err := c.docs.CreateDocument(ctx, peer.Identity(), req)
	if err != nil {
		c.fail(ctx, peer, EventServerError, err, "")
		return
	}

	peer.Send(Encode(EventDocumentCreated, c.docs.DocumentView(ctx, doc)))
}

func (c *Coordinator) Delete(ctx context.Context, peer Peer, documentId string) {
	if err := c.docs.DeleteDocument(ctx, peer.Identity(), documentId); err != nil {
		c.fail(ctx, peer, EventServerError, err, documentId)
		return
	}

	evicted := c.DocumentDeleted(documentId)
	if !slices.Contains(evicted, peer.ConnId()) {
		peer.Send(Encode(EventDocumentDeleted, DocumentDeletedData{DocumentId: documentId}))
	}
}

func (c *Coordinator) UpdatePermissions(ctx context.Context, peer Peer, req service.UpdatePermissionsRequest) {
	doc, err := c.docs.UpdatePermissions(ctx, peer.Identity(), req)
	if err != nil {
		eventType := EventServerError
		if errors.Is(err, service.ErrEditWithoutRead) {
			eventType = EventPermissionsError
		}
		c.fail(ctx, peer, eventType, err, req.DocumentId)
		return
	}

	peer.Send(Encode(EventPermissionsUpdated, service.PermissionsOf(doc)))
}

func (c *Coordinator) LoadDocuments(ctx context.Context, peer Peer) {
	docs, err := c.docs.LoadCompanyDocuments(ctx, peer.Identity())
	if err != nil {
		c.fail(ctx, peer, EventServerError, err, "")
		return
	}

	peer.Send(Encode(EventDocumentsLoaded, docs))
}

// DocumentEdited fans new content out to the room, skipping the author's
// connection.
func (c *Coordinator) DocumentEdited(documentId, text, excludeConnId string) {
	c.hub.Broadcast(documentId, Encode(EventDocumentEdited, DocumentEditedData{
		DocumentId: documentId,
		Text:       text,
	}), excludeConnId)
}

// DocumentDeleted evicts the room and returns the connections it held.
func (c *Coordinator) DocumentDeleted(documentId string) []string {
	return c.hub.PurgeDocument(documentId)
}

// Subscribe listens for changes made by other server processes.
func (c *Coordinator) Subscribe(shutdownCtx context.Context, pubsub cache.Cache) error {
	log := c.log.Logger()

	err := pubsub.Subscribe(shutdownCtx, cache.ChannelDocumentDeleted, func(message []byte) {
		var msg cache.DocumentDeletedMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.DocumentId == "" {
			log.Warn("bad document-deleted message", zap.ByteString("message", message))
			return
		}
		c.DocumentDeleted(msg.DocumentId)
	})
	if err != nil {
		return err
	}

	err = pubsub.Subscribe(shutdownCtx, cache.ChannelUserUpdated, func(message []byte) {
		var msg cache.UserUpdatedMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.UserId == "" {
			log.Warn("bad user-updated message", zap.ByteString("message", message))
			return
		}
		c.hub.UserUpdated(msg.UserId)
	})
	if err != nil {
		return err
	}

	return pubsub.Subscribe(shutdownCtx, cache.ChannelSessionsCleared, func(message []byte) {
		var msg cache.SessionsClearedMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn("bad sessions-cleared message", zap.ByteString("message", message))
			return
		}
		c.hub.ClearSessions(msg.Reason)
	})
}
