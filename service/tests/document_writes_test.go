package service_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemocks "github.com/zlnvch/collabdocs/cache/mocks"
	mailermocks "github.com/zlnvch/collabdocs/mailer/mocks"
	"github.com/zlnvch/collabdocs/models"
	mqmocks "github.com/zlnvch/collabdocs/mq/mocks"
	"github.com/zlnvch/collabdocs/service"
	"github.com/zlnvch/collabdocs/store"
	storemocks "github.com/zlnvch/collabdocs/store/mocks"
)

// memoryDocuments is a DocumentStore that applies field updates to the
// stored copy. afterGet runs once, right after the next read, to land a
// write between a service's load and its save.
type memoryDocuments struct {
	mu       sync.Mutex
	docs     map[string]models.Document
	afterGet func(*memoryDocuments)
}

func newMemoryDocuments(docs ...models.Document) *memoryDocuments {
	m := &memoryDocuments{docs: make(map[string]models.Document)}
	for _, doc := range docs {
		m.docs[doc.Id] = doc
	}
	return m
}

func (m *memoryDocuments) stored(id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

func (m *memoryDocuments) update(id string, apply func(*models.Document)) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return models.Document{}, store.ErrItemNotFound
	}
	doc.ReadPermissions = slices.Clone(doc.ReadPermissions)
	doc.EditPermissions = slices.Clone(doc.EditPermissions)
	apply(&doc)
	m.docs[id] = doc
	return doc, nil
}

func (m *memoryDocuments) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.Id] = doc
	return doc, nil
}

func (m *memoryDocuments) GetDocument(ctx context.Context, documentId string) (models.Document, error) {
	m.mu.Lock()
	doc, ok := m.docs[documentId]
	hook := m.afterGet
	m.afterGet = nil
	m.mu.Unlock()

	if !ok {
		return models.Document{}, store.ErrItemNotFound
	}
	if hook != nil {
		hook(m)
	}
	return doc, nil
}

func (m *memoryDocuments) FindDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, doc := range m.docs {
		if filter.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryDocuments) UpdateDocumentDetails(ctx context.Context, documentId string, title *string, content *string, updated int64) (models.Document, error) {
	return m.update(documentId, func(doc *models.Document) {
		if title != nil {
			doc.Title = *title
		}
		if content != nil {
			doc.Content = *content
		}
		doc.Updated = updated
	})
}

func (m *memoryDocuments) UpdateDocumentContent(ctx context.Context, documentId string, content string, updated int64) (models.Document, error) {
	return m.update(documentId, func(doc *models.Document) {
		doc.Content = content
		doc.Updated = updated
	})
}

func (m *memoryDocuments) UpdateDocumentPermissions(ctx context.Context, documentId string, read []string, edit []string, updated int64) (models.Document, error) {
	return m.update(documentId, func(doc *models.Document) {
		doc.ReadPermissions = read
		doc.EditPermissions = edit
		doc.Updated = updated
	})
}

func (m *memoryDocuments) DeleteDocument(ctx context.Context, documentId string, ownerId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentId)
	return nil
}

func setupServiceWithDocuments(t *testing.T, docs store.DocumentStore) *service.Service {
	t.Helper()
	svc := service.NewService(
		new(storemocks.MockIdentityStore),
		docs,
		new(storemocks.MockResetTokenStore),
		new(cachemocks.MockCache),
		new(mqmocks.MockMQ),
		new(mailermocks.MockMailer),
		[]byte("secret"),
		service.Options{},
		zap.NewNop(),
	)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func editLandsAfterRead(text string) func(*memoryDocuments) {
	return func(m *memoryDocuments) {
		m.UpdateDocumentContent(context.Background(), "doc1", text, fixedNow.Unix())
	}
}

func TestUpdatePermissions_KeepsEditLandedAfterRead(t *testing.T) {
	docs := newMemoryDocuments(sharedDoc())
	docs.afterGet = editLandsAfterRead("edited concurrently")
	svc := setupServiceWithDocuments(t, docs)

	saved, err := svc.UpdatePermissions(context.Background(), models.Identity{UserId: "owner"}, service.UpdatePermissionsRequest{
		DocumentId:      "doc1",
		ReadPermissions: []string{"reader"},
		EditPermissions: []string{},
	})
	require.NoError(t, err)

	assert.Equal(t, "edited concurrently", saved.Content)
	stored := docs.stored("doc1")
	assert.Equal(t, "edited concurrently", stored.Content)
	assert.Equal(t, []string{"owner", "reader"}, stored.ReadPermissions)
	assert.Equal(t, []string{"owner"}, stored.EditPermissions)
}

func TestUpdateDocument_TitleKeepsEditLandedAfterRead(t *testing.T) {
	docs := newMemoryDocuments(sharedDoc())
	docs.afterGet = editLandsAfterRead("edited concurrently")
	svc := setupServiceWithDocuments(t, docs)

	title := "  Renamed "
	saved, err := svc.UpdateDocument(context.Background(), models.Identity{UserId: "editor"}, "doc1", service.UpdateDocumentRequest{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", saved.Title)
	assert.Equal(t, "edited concurrently", docs.stored("doc1").Content)
}

func TestUpdateDocument_ContentKeepsPermissionsChangedAfterRead(t *testing.T) {
	docs := newMemoryDocuments(sharedDoc())
	docs.afterGet = func(m *memoryDocuments) {
		m.UpdateDocumentPermissions(context.Background(), "doc1",
			[]string{"owner", "editor"}, []string{"owner", "editor"}, fixedNow.Unix())
	}
	svc := setupServiceWithDocuments(t, docs)

	content := "new text"
	_, err := svc.UpdateDocument(context.Background(), models.Identity{UserId: "editor"}, "doc1", service.UpdateDocumentRequest{Content: &content})
	require.NoError(t, err)

	stored := docs.stored("doc1")
	assert.Equal(t, "new text", stored.Content)
	assert.Equal(t, "Plan", stored.Title)
	assert.Equal(t, []string{"owner", "editor"}, stored.ReadPermissions)
}
