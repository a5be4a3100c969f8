package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/cache"
	"github.com/zlnvch/collabdocs/metrics"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

type CreateDocumentRequest struct {
	Title           string   `json:"title"`
	ReadPermissions []string `json:"readPermissions"`
	EditPermissions []string `json:"editPermissions"`
}

// UpdateDocumentRequest changes the fields that are set.
type UpdateDocumentRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type EditRequest struct {
	DocumentId string `json:"documentId"`
	Text       string `json:"text"`
}

type UpdatePermissionsRequest struct {
	DocumentId      string   `json:"documentId"`
	ReadPermissions []string `json:"readPermissions"`
	EditPermissions []string `json:"editPermissions"`
}

var ErrForbiddenDocument = apperr.Authorization("you do not have access to this document")

func (s *Service) loadDocument(ctx context.Context, documentId string) (models.Document, error) {
	if documentId == "" {
		return models.Document{}, apperr.Validation("document id is required")
	}

	doc, err := s.Documents.GetDocument(ctx, documentId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Document{}, apperr.NotFound("document")
		}
		return models.Document{}, apperr.Dependency(err, "failed to load document")
	}
	return doc, nil
}

// ListDocuments returns the company documents the caller can read, most
// recently updated first.
func (s *Service) ListDocuments(ctx context.Context, identity models.Identity) ([]DocumentView, error) {
	docs, err := s.Documents.FindDocuments(ctx, store.DocumentFilter{
		CompanyId: identity.CompanyId,
		MemberId:  identity.UserId,
	})
	if err != nil {
		return nil, apperr.Dependency(err, "failed to load documents")
	}

	return s.enrich(ctx, docs), nil
}

// LoadCompanyDocuments returns every company document owned by or shared
// with a member of the caller's company.
func (s *Service) LoadCompanyDocuments(ctx context.Context, identity models.Identity) ([]DocumentView, error) {
	users, err := s.companyUsers(ctx, identity.CompanyId)
	if err != nil {
		return nil, err
	}

	userIds := make([]string, len(users))
	for i, u := range users {
		userIds[i] = u.Id
	}

	docs, err := s.Documents.FindDocuments(ctx, store.DocumentFilter{
		CompanyId: identity.CompanyId,
		OwnerIds:  userIds,
	})
	if err != nil {
		return nil, apperr.Dependency(err, "failed to load documents")
	}

	return s.enrich(ctx, docs), nil
}

// enrich adds the owner's name and image. Owners that cannot be loaded are
// left blank.
func (s *Service) enrich(ctx context.Context, docs []models.Document) []DocumentView {
	ownerIds := make([]string, 0, len(docs))
	for _, doc := range docs {
		ownerIds = append(ownerIds, doc.OwnerId)
	}

	owners := make(map[string]models.User, len(ownerIds))
	if len(ownerIds) > 0 {
		users, err := s.Users.GetUsers(ctx, ownerIds)
		if err != nil {
			s.log.WithContext(ctx).Warn("owner lookup failed",
				zap.Error(apperr.BestEffort(err, "load document owners")))
		}
		for _, u := range users {
			owners[u.Id] = u
		}
	}

	views := make([]DocumentView, len(docs))
	for i, doc := range docs {
		views[i] = ViewOf(doc)
		if owner, ok := owners[doc.OwnerId]; ok {
			views[i].OwnerName = owner.Name
			views[i].OwnerProfileImage = owner.ProfileImage
		}
	}

	slices.SortStableFunc(views, func(a, b DocumentView) int {
		return cmp.Compare(b.Updated, a.Updated)
	})
	return views
}

// CreateDocument requires canCreateDocuments. The creator owns the document
// and is seeded into both permission lists.
func (s *Service) CreateDocument(ctx context.Context, identity models.Identity, req CreateDocumentRequest) (models.Document, error) {
	if err := req.Validate(); err != nil {
		return models.Document{}, err
	}

	user, err := s.RequireCapability(ctx, identity.UserId, models.CapCreateDocuments)
	if err != nil {
		return models.Document{}, err
	}

	read, edit, err := NormalizePermissions(user.Id, req.ReadPermissions, req.EditPermissions)
	if err != nil {
		return models.Document{}, err
	}

	now := s.now().Unix()
	doc, err := s.Documents.CreateDocument(ctx, models.Document{
		Title:           strings.TrimSpace(req.Title),
		OwnerId:         user.Id,
		CompanyId:       user.CompanyId,
		Collaborators:   []string{},
		ReadPermissions: read,
		EditPermissions: edit,
		Created:         now,
		Updated:         now,
	})
	if err != nil {
		return models.Document{}, apperr.Dependency(err, "failed to create document")
	}

	return doc, nil
}

// DocumentView returns doc enriched with its owner, for replies that carry a
// freshly created document.
func (s *Service) DocumentView(ctx context.Context, doc models.Document) DocumentView {
	return s.enrich(ctx, []models.Document{doc})[0]
}

func (s *Service) GetDocument(ctx context.Context, identity models.Identity, documentId string) (models.Document, error) {
	doc, err := s.loadDocument(ctx, documentId)
	if err != nil {
		return models.Document{}, err
	}

	if !CanRead(doc, identity.UserId) {
		return models.Document{}, ErrForbiddenDocument
	}
	return doc, nil
}

// SelectDocument checks read access for a join.
func (s *Service) SelectDocument(ctx context.Context, identity models.Identity, documentId string) (SelectedDocument, error) {
	doc, err := s.GetDocument(ctx, identity, documentId)
	if err != nil {
		return SelectedDocument{}, err
	}

	return SelectedDocument{
		DocumentId: doc.Id,
		Title:      doc.Title,
		Content:    doc.Content,
		Created:    doc.Created,
		Updated:    doc.Updated,
		CanEdit:    CanEdit(doc, identity.UserId),
	}, nil
}

// ApplyEdit replaces the content of a document. Edit permission is checked
// against a fresh copy on every call. Concurrent edits are last writer wins.
func (s *Service) ApplyEdit(ctx context.Context, identity models.Identity, req EditRequest) (models.Document, error) {
	if err := req.Validate(); err != nil {
		return models.Document{}, err
	}

	doc, err := s.loadDocument(ctx, req.DocumentId)
	if err != nil {
		return models.Document{}, err
	}

	if !CanEdit(doc, identity.UserId) {
		return models.Document{}, apperr.Authorization("you do not have edit permission")
	}

	updated, err := s.Documents.UpdateDocumentContent(ctx, doc.Id, req.Text, s.now().Unix())
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Document{}, apperr.NotFound("document")
		}
		return models.Document{}, apperr.Dependency(err, "failed to save edit")
	}

	metrics.DocumentEdits.WithLabelValues("ws").Inc()
	return updated, nil
}

func (s *Service) UpdateDocument(ctx context.Context, identity models.Identity, documentId string, req UpdateDocumentRequest) (models.Document, error) {
	if err := req.Validate(); err != nil {
		return models.Document{}, err
	}

	doc, err := s.loadDocument(ctx, documentId)
	if err != nil {
		return models.Document{}, err
	}

	if !CanEdit(doc, identity.UserId) {
		return models.Document{}, apperr.Authorization("you do not have edit permission")
	}

	var title *string
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		title = &trimmed
	}

	// Only the fields present in the request are written.
	saved, err := s.Documents.UpdateDocumentDetails(ctx, doc.Id, title, req.Content, s.now().Unix())
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Document{}, apperr.NotFound("document")
		}
		return models.Document{}, apperr.Dependency(err, "failed to update document")
	}

	if req.Content != nil {
		metrics.DocumentEdits.WithLabelValues("rest").Inc()
	}
	return saved, nil
}

// DeleteDocument removes a document the caller owns and announces it on the
// document-deleted channel.
func (s *Service) DeleteDocument(ctx context.Context, identity models.Identity, documentId string) error {
	doc, err := s.loadDocument(ctx, documentId)
	if err != nil {
		return err
	}

	if !CanDelete(doc, identity.UserId) {
		return apperr.Authorization("only the owner can delete this document")
	}

	if err := s.Documents.DeleteDocument(ctx, doc.Id, identity.UserId); err != nil {
		switch {
		case errors.Is(err, store.ErrItemNotFound):
			return apperr.NotFound("document")
		case errors.Is(err, store.ErrConditionFailed):
			return apperr.Authorization("only the owner can delete this document")
		}
		return apperr.Dependency(err, "failed to delete document")
	}

	s.publish(cache.ChannelDocumentDeleted, cache.DocumentDeletedMessage{DocumentId: doc.Id})
	return nil
}

func (s *Service) GetPermissions(ctx context.Context, identity models.Identity, documentId string) (DocumentPermissions, error) {
	doc, err := s.GetDocument(ctx, identity, documentId)
	if err != nil {
		return DocumentPermissions{}, err
	}
	return PermissionsOf(doc), nil
}

// UpdatePermissions replaces both permission lists. Owner only; a request
// that grants edit without read is rejected and nothing is stored.
func (s *Service) UpdatePermissions(ctx context.Context, identity models.Identity, req UpdatePermissionsRequest) (models.Document, error) {
	if err := req.Validate(); err != nil {
		return models.Document{}, err
	}

	doc, err := s.loadDocument(ctx, req.DocumentId)
	if err != nil {
		return models.Document{}, err
	}

	if doc.OwnerId != identity.UserId {
		return models.Document{}, apperr.Authorization("only the owner can change permissions")
	}

	read, edit, err := NormalizePermissions(doc.OwnerId, req.ReadPermissions, req.EditPermissions)
	if err != nil {
		return models.Document{}, err
	}

	saved, err := s.Documents.UpdateDocumentPermissions(ctx, doc.Id, read, edit, s.now().Unix())
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Document{}, apperr.NotFound("document")
		}
		return models.Document{}, apperr.Dependency(err, "failed to update permissions")
	}
	return saved, nil
}
