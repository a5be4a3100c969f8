package models

import "time"

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

type Capability string

const (
	CapCreateDocuments Capability = "canCreateDocuments"
	CapEditProfile     Capability = "canEditProfile"
	CapReadDocuments   Capability = "canReadDocuments"
	CapEditDocuments   Capability = "canEditDocuments"
	CapChangeUserRole  Capability = "canChangeUserRole"
)

// Capabilities are per-user grants. All default to false.
type Capabilities struct {
	CanCreateDocuments bool `json:"canCreateDocuments"`
	CanEditProfile     bool `json:"canEditProfile"`
	CanReadDocuments   bool `json:"canReadDocuments"`
	CanEditDocuments   bool `json:"canEditDocuments"`
	CanChangeUserRole  bool `json:"canChangeUserRole"`
}

func (c Capabilities) Has(capability Capability) bool {
	switch capability {
	case CapCreateDocuments:
		return c.CanCreateDocuments
	case CapEditProfile:
		return c.CanEditProfile
	case CapReadDocuments:
		return c.CanReadDocuments
	case CapEditDocuments:
		return c.CanEditDocuments
	case CapChangeUserRole:
		return c.CanChangeUserRole
	}
	return false
}

type User struct {
	Id           string
	Name         string
	Email        string
	PasswordHash string
	CompanyId    string
	Role         Role
	Capabilities Capabilities
	ProfileImage string
	Created      int64
	Updated      int64
}

type Document struct {
	Id              string
	Title           string
	Content         string
	OwnerId         string
	CompanyId       string
	Collaborators   []string
	ReadPermissions []string
	EditPermissions []string
	Created         int64
	Updated         int64
}

type ResetToken struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
}

// Identity is resolved from a verified credential and carried alongside a
// connection or request for every later authorization check.
type Identity struct {
	UserId    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CompanyId string `json:"companyId"`
}

type PresenceEntry struct {
	ConnId      string
	DocumentId  string
	UserId      string
	DisplayName string
}

type OnlineUser struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
}
