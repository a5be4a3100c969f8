package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/zlnvch/collabdocs/models"
)

type IdentityStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userId string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUsers(ctx context.Context, userIds []string) ([]models.User, error)
	ListCompanyUsers(ctx context.Context, companyId string) ([]models.User, error)
	CountCompanyUsersByRole(ctx context.Context, companyId string, role models.Role) (int, error)
	// UpdateUserProfile writes name, email, company and profile image.
	// Role, capabilities and password hash are left as stored.
	UpdateUserProfile(ctx context.Context, user models.User) (models.User, error)
	UpdateUserAccess(ctx context.Context, userId string, role models.Role, capabilities models.Capabilities, updated int64) (models.User, error)
	UpdateUserPassword(ctx context.Context, userId string, passwordHash string, updated int64) error
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc models.Document) (models.Document, error)
	GetDocument(ctx context.Context, documentId string) (models.Document, error)
	FindDocuments(ctx context.Context, filter DocumentFilter) ([]models.Document, error)
	// UpdateDocumentDetails sets the title and content that are non-nil.
	UpdateDocumentDetails(ctx context.Context, documentId string, title *string, content *string, updated int64) (models.Document, error)
	UpdateDocumentContent(ctx context.Context, documentId string, content string, updated int64) (models.Document, error)
	UpdateDocumentPermissions(ctx context.Context, documentId string, read []string, edit []string, updated int64) (models.Document, error)
	DeleteDocument(ctx context.Context, documentId string, ownerId string) error
}

// ResetTokenStore keeps password-reset tokens. Implementations expire
// tokens on their own once ExpiresAt passes.
type ResetTokenStore interface {
	CreateResetToken(ctx context.Context, token models.ResetToken) error
	FindValidResetToken(ctx context.Context, token string, now time.Time) (models.ResetToken, error)
	SaveResetToken(ctx context.Context, token models.ResetToken) error
	DeleteResetToken(ctx context.Context, token string) error
	DeleteResetTokens(ctx context.Context, email string) error
}

// DocumentFilter selects documents of one company. MemberId keeps documents
// the user owns or is listed on; OwnerIds keeps documents owned by, or
// shared with as collaborator, any of the given users. Empty fields do not
// filter.
type DocumentFilter struct {
	CompanyId string
	MemberId  string
	OwnerIds  []string
}

func (f DocumentFilter) Matches(doc models.Document) bool {
	if f.CompanyId != "" && doc.CompanyId != f.CompanyId {
		return false
	}

	if f.MemberId != "" {
		member := doc.OwnerId == f.MemberId ||
			slices.Contains(doc.Collaborators, f.MemberId) ||
			slices.Contains(doc.ReadPermissions, f.MemberId) ||
			slices.Contains(doc.EditPermissions, f.MemberId)
		if !member {
			return false
		}
	}

	if f.OwnerIds != nil {
		owned := slices.Contains(f.OwnerIds, doc.OwnerId)
		if !owned {
			for _, c := range doc.Collaborators {
				if slices.Contains(f.OwnerIds, c) {
					owned = true
					break
				}
			}
		}
		if !owned {
			return false
		}
	}

	return true
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
	ErrEmailTaken      = errors.New("email already registered")
)
