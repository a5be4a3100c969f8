package dynamo

import (
	"strings"

	"github.com/zlnvch/collabdocs/models"
)

const (
	userPrefix     = "USER#"
	emailPrefix    = "EMAIL#"
	documentPrefix = "DOC#"

	userSK     = "PROFILE"
	emailSK    = "EMAIL"
	documentSK = "DOCUMENT"

	// GSI_Company is keyed by CompanyId (partition) and SK (sort), so one
	// index serves both company users and company documents.
	companyIndex = "GSI_Company"
)

type dynamoCapabilities struct {
	CanCreateDocuments bool `dynamodbav:"CanCreateDocuments"`
	CanEditProfile     bool `dynamodbav:"CanEditProfile"`
	CanReadDocuments   bool `dynamodbav:"CanReadDocuments"`
	CanEditDocuments   bool `dynamodbav:"CanEditDocuments"`
	CanChangeUserRole  bool `dynamodbav:"CanChangeUserRole"`
}

type dynamoUser struct {
	PK           string             `dynamodbav:"PK"`
	SK           string             `dynamodbav:"SK"`
	Id           string             `dynamodbav:"Id"`
	Name         string             `dynamodbav:"Name"`
	Email        string             `dynamodbav:"Email"`
	PasswordHash string             `dynamodbav:"PasswordHash"`
	CompanyId    string             `dynamodbav:"CompanyId"`
	Role         string             `dynamodbav:"Role"`
	Capabilities dynamoCapabilities `dynamodbav:"Capabilities"`
	ProfileImage string             `dynamodbav:"ProfileImage,omitempty"`
	Created      int64              `dynamodbav:"Created"`
	Updated      int64              `dynamodbav:"Updated"`
}

// dynamoEmailLock reserves an email address for one user id.
type dynamoEmailLock struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	UserId string `dynamodbav:"UserId"`
}

type dynamoDocument struct {
	PK              string   `dynamodbav:"PK"`
	SK              string   `dynamodbav:"SK"`
	Id              string   `dynamodbav:"Id"`
	Title           string   `dynamodbav:"Title"`
	Content         string   `dynamodbav:"Content"`
	OwnerId         string   `dynamodbav:"OwnerId"`
	CompanyId       string   `dynamodbav:"CompanyId"`
	Collaborators   []string `dynamodbav:"Collaborators"`
	ReadPermissions []string `dynamodbav:"ReadPermissions"`
	EditPermissions []string `dynamodbav:"EditPermissions"`
	Created         int64    `dynamodbav:"Created"`
	Updated         int64    `dynamodbav:"Updated"`
}

func userKey(userId string) string {
	return userPrefix + userId
}

func emailKey(email string) string {
	return emailPrefix + strings.ToLower(email)
}

func documentKey(documentId string) string {
	return documentPrefix + documentId
}

// Map domain User -> Dynamo
func userToDynamo(u models.User) dynamoUser {
	return dynamoUser{
		PK:           userKey(u.Id),
		SK:           userSK,
		Id:           u.Id,
		Name:         u.Name,
		Email:        strings.ToLower(u.Email),
		PasswordHash: u.PasswordHash,
		CompanyId:    u.CompanyId,
		Role:         string(u.Role),
		Capabilities: dynamoCapabilities(u.Capabilities),
		ProfileImage: u.ProfileImage,
		Created:      u.Created,
		Updated:      u.Updated,
	}
}

// Map Dynamo -> domain User
func userFromDynamo(du dynamoUser) models.User {
	return models.User{
		Id:           du.Id,
		Name:         du.Name,
		Email:        du.Email,
		PasswordHash: du.PasswordHash,
		CompanyId:    du.CompanyId,
		Role:         models.Role(du.Role),
		Capabilities: models.Capabilities(du.Capabilities),
		ProfileImage: du.ProfileImage,
		Created:      du.Created,
		Updated:      du.Updated,
	}
}

func documentToDynamo(d models.Document) dynamoDocument {
	return dynamoDocument{
		PK:              documentKey(d.Id),
		SK:              documentSK,
		Id:              d.Id,
		Title:           d.Title,
		Content:         d.Content,
		OwnerId:         d.OwnerId,
		CompanyId:       d.CompanyId,
		Collaborators:   nonNil(d.Collaborators),
		ReadPermissions: nonNil(d.ReadPermissions),
		EditPermissions: nonNil(d.EditPermissions),
		Created:         d.Created,
		Updated:         d.Updated,
	}
}

func documentFromDynamo(dd dynamoDocument) models.Document {
	return models.Document{
		Id:              dd.Id,
		Title:           dd.Title,
		Content:         dd.Content,
		OwnerId:         dd.OwnerId,
		CompanyId:       dd.CompanyId,
		Collaborators:   nonNil(dd.Collaborators),
		ReadPermissions: nonNil(dd.ReadPermissions),
		EditPermissions: nonNil(dd.EditPermissions),
		Created:         dd.Created,
		Updated:         dd.Updated,
	}
}

// Empty lists are stored as empty lists, not NULL.
func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
