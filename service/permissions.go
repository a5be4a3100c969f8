package service

import (
	"context"
	"slices"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
)

var ErrEditWithoutRead = apperr.Validation("every user with edit permission must also have read permission")

// CanPerform reports whether user holds capability. Owners hold all of them.
func CanPerform(user models.User, capability models.Capability) bool {
	if user.Role == models.RoleOwner {
		return true
	}
	return user.Capabilities.Has(capability)
}

func CanRead(doc models.Document, userId string) bool {
	return doc.OwnerId == userId ||
		slices.Contains(doc.Collaborators, userId) ||
		slices.Contains(doc.ReadPermissions, userId) ||
		slices.Contains(doc.EditPermissions, userId)
}

func CanEdit(doc models.Document, userId string) bool {
	return doc.OwnerId == userId ||
		slices.Contains(doc.Collaborators, userId) ||
		slices.Contains(doc.EditPermissions, userId)
}

func CanDelete(doc models.Document, userId string) bool {
	return doc.OwnerId == userId
}

// NormalizePermissions dedupes both lists and adds submitter to each. An
// edit id missing from read is rejected, never repaired.
func NormalizePermissions(submitter string, read []string, edit []string) ([]string, []string, error) {
	normRead := dedupeWith(submitter, read)
	normEdit := dedupeWith(submitter, edit)

	for _, id := range normEdit {
		if !slices.Contains(normRead, id) {
			return nil, nil, ErrEditWithoutRead
		}
	}

	return normRead, normEdit, nil
}

func dedupeWith(first string, ids []string) []string {
	out := make([]string, 0, len(ids)+1)
	seen := make(map[string]bool, len(ids)+1)

	for _, id := range append([]string{first}, ids...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// RequireCapability loads userId fresh and fails unless they hold capability.
func (s *Service) RequireCapability(ctx context.Context, userId string, capability models.Capability) (models.User, error) {
	user, err := s.loadUser(ctx, userId)
	if err != nil {
		return models.User{}, err
	}

	if !CanPerform(user, capability) {
		return models.User{}, apperr.Authorization("missing permission: " + string(capability)).
			WithContext("capability", string(capability))
	}

	return user, nil
}
