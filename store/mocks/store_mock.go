package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockIdentityStore) GetUser(ctx context.Context, userId string) (models.User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockIdentityStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockIdentityStore) GetUsers(ctx context.Context, userIds []string) ([]models.User, error) {
	args := m.Called(ctx, userIds)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockIdentityStore) ListCompanyUsers(ctx context.Context, companyId string) ([]models.User, error) {
	args := m.Called(ctx, companyId)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockIdentityStore) CountCompanyUsersByRole(ctx context.Context, companyId string, role models.Role) (int, error) {
	args := m.Called(ctx, companyId, role)
	return args.Int(0), args.Error(1)
}

func (m *MockIdentityStore) UpdateUserProfile(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockIdentityStore) UpdateUserAccess(ctx context.Context, userId string, role models.Role, capabilities models.Capabilities, updated int64) (models.User, error) {
	args := m.Called(ctx, userId, role, capabilities, updated)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockIdentityStore) UpdateUserPassword(ctx context.Context, userId string, passwordHash string, updated int64) error {
	args := m.Called(ctx, userId, passwordHash, updated)
	return args.Error(0)
}

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentStore) GetDocument(ctx context.Context, documentId string) (models.Document, error) {
	args := m.Called(ctx, documentId)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentStore) FindDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Document), args.Error(1)
}

func (m *MockDocumentStore) UpdateDocumentDetails(ctx context.Context, documentId string, title *string, content *string, updated int64) (models.Document, error) {
	args := m.Called(ctx, documentId, title, content, updated)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentStore) UpdateDocumentContent(ctx context.Context, documentId string, content string, updated int64) (models.Document, error) {
	args := m.Called(ctx, documentId, content, updated)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentStore) UpdateDocumentPermissions(ctx context.Context, documentId string, read []string, edit []string, updated int64) (models.Document, error) {
	args := m.Called(ctx, documentId, read, edit, updated)
	return args.Get(0).(models.Document), args.Error(1)
}

func (m *MockDocumentStore) DeleteDocument(ctx context.Context, documentId string, ownerId string) error {
	args := m.Called(ctx, documentId, ownerId)
	return args.Error(0)
}

type MockResetTokenStore struct {
	mock.Mock
}

func (m *MockResetTokenStore) CreateResetToken(ctx context.Context, token models.ResetToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetTokenStore) FindValidResetToken(ctx context.Context, token string, now time.Time) (models.ResetToken, error) {
	args := m.Called(ctx, token, now)
	return args.Get(0).(models.ResetToken), args.Error(1)
}

func (m *MockResetTokenStore) SaveResetToken(ctx context.Context, token models.ResetToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetTokenStore) DeleteResetToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetTokenStore) DeleteResetTokens(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
