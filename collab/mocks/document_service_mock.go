package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) SelectDocument(ctx context.Context, identity models.Identity, documentId string) (service.SelectedDocument, error) {
	args := m.Called(ctx, identity, documentId)
	return args.Get(0).(service.SelectedDocument), args.Error(1)
}

func (m *MockDocumentService) ApplyEdit(ctx context.Context, identity models.Identity, req service.EditRequest) (models.Document, error) {
	args := m.Called(ctx, identity, req)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentService) CreateDocument(ctx context.Context, identity models.Identity, req service.CreateDocumentRequest) (models.Document, error) {
	args := m.Called(ctx, identity, req)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentService) DocumentView(ctx context.Context, doc models.Document) service.DocumentView {
	args := m.Called(ctx, doc)
	return args.Get(0).(service.DocumentView)
}

func (m *MockDocumentService) DeleteDocument(ctx context.Context, identity models.Identity, documentId string) error {
	args := m.Called(ctx, identity, documentId)
	return args.Error(0)
}

func (m *MockDocumentService) UpdatePermissions(ctx context.Context, identity models.Identity, req service.UpdatePermissionsRequest) (models.Document, error) {
	args := m.Called(ctx, identity, req)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentService) LoadCompanyDocuments(ctx context.Context, identity models.Identity) ([]service.DocumentView, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).([]service.DocumentView), args.Error(1)
}
