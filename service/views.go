package service

import "github.com/zlnvch/collabdocs/models"

// UserProfile is the caller-facing shape of a user. The password hash never
// leaves the service.
type UserProfile struct {
	Id           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	CompanyId    string      `json:"companyId"`
	Role         models.Role `json:"role"`
	ProfileImage string      `json:"profileImage,omitempty"`
}

func ProfileOf(user models.User) UserProfile {
	return UserProfile{
		Id:           user.Id,
		Name:         user.Name,
		Email:        user.Email,
		CompanyId:    user.CompanyId,
		Role:         user.Role,
		ProfileImage: user.ProfileImage,
	}
}

type CompanyUser struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AdminUser struct {
	Id          string              `json:"id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Role        models.Role         `json:"role"`
	Permissions models.Capabilities `json:"permissions"`
}

func AdminUserOf(user models.User) AdminUser {
	return AdminUser{Id: user.Id, Name: user.Name, Email: user.Email, Role: user.Role, Permissions: user.Capabilities}
}

type DocumentView struct {
	Id                string   `json:"id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	OwnerId           string   `json:"ownerId"`
	OwnerName         string   `json:"ownerName,omitempty"`
	OwnerProfileImage string   `json:"ownerProfileImage,omitempty"`
	CompanyId         string   `json:"companyId"`
	Collaborators     []string `json:"collaborators"`
	ReadPermissions   []string `json:"readPermissions"`
	EditPermissions   []string `json:"editPermissions"`
	Created           int64    `json:"createdAt"`
	Updated           int64    `json:"updatedAt"`
}

func ViewOf(doc models.Document) DocumentView {
	return DocumentView{
		Id:              doc.Id,
		Title:           doc.Title,
		Content:         doc.Content,
		OwnerId:         doc.OwnerId,
		CompanyId:       doc.CompanyId,
		Collaborators:   nonNil(doc.Collaborators),
		ReadPermissions: nonNil(doc.ReadPermissions),
		EditPermissions: nonNil(doc.EditPermissions),
		Created:         doc.Created,
		Updated:         doc.Updated,
	}
}

// SelectedDocument answers a join.
type SelectedDocument struct {
	DocumentId string `json:"documentId"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Created    int64  `json:"createdAt"`
	Updated    int64  `json:"updatedAt"`
	CanEdit    bool   `json:"canEdit"`
}

type DocumentPermissions struct {
	DocumentId      string   `json:"documentId"`
	OwnerId         string   `json:"ownerId"`
	Collaborators   []string `json:"collaborators"`
	ReadPermissions []string `json:"readPermissions"`
	EditPermissions []string `json:"editPermissions"`
}

func PermissionsOf(doc models.Document) DocumentPermissions {
	return DocumentPermissions{
		DocumentId:      doc.Id,
		OwnerId:         doc.OwnerId,
		Collaborators:   nonNil(doc.Collaborators),
		ReadPermissions: nonNil(doc.ReadPermissions),
		EditPermissions: nonNil(doc.EditPermissions),
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
