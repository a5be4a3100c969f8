package service

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

type UpdateUserPermissionsRequest struct {
	UserId      string              `json:"userId"`
	Role        models.Role         `json:"role"`
	Permissions models.Capabilities `json:"permissions"`
}

var ErrOwnerOnly = apperr.Authorization("only the company owner can do this")

func (s *Service) companyUsers(ctx context.Context, companyId string) ([]models.User, error) {
	if companyId == "" {
		return nil, apperr.Validation("company not identified")
	}

	users, err := s.Users.ListCompanyUsers(ctx, companyId)
	if err != nil {
		return nil, apperr.Dependency(err, "failed to load company users")
	}

	slices.SortFunc(users, func(a, b models.User) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return users, nil
}

func (s *Service) ListCompanyUsers(ctx context.Context, identity models.Identity) ([]CompanyUser, error) {
	users, err := s.companyUsers(ctx, identity.CompanyId)
	if err != nil {
		return nil, err
	}

	out := make([]CompanyUser, len(users))
	for i, u := range users {
		out[i] = CompanyUser{Id: u.Id, Name: u.Name, Email: u.Email}
	}
	return out, nil
}

func (s *Service) requireOwner(ctx context.Context, userId string) (models.User, error) {
	user, err := s.loadUser(ctx, userId)
	if err != nil {
		return models.User{}, err
	}
	if user.Role != models.RoleOwner {
		return models.User{}, ErrOwnerOnly
	}
	return user, nil
}

// ListCompanyUsersAdmin adds role and capabilities. Owner only.
func (s *Service) ListCompanyUsersAdmin(ctx context.Context, identity models.Identity) ([]AdminUser, error) {
	owner, err := s.requireOwner(ctx, identity.UserId)
	if err != nil {
		return nil, err
	}

	users, err := s.companyUsers(ctx, owner.CompanyId)
	if err != nil {
		return nil, err
	}

	out := make([]AdminUser, len(users))
	for i, u := range users {
		out[i] = AdminUserOf(u)
	}
	return out, nil
}

// UpdateUserPermissions sets the role and capabilities of a user in the
// owner's company. The owner cannot demote themself and a company keeps at
// most one owner.
func (s *Service) UpdateUserPermissions(ctx context.Context, identity models.Identity, req UpdateUserPermissionsRequest) (models.User, error) {
	if err := req.Validate(); err != nil {
		return models.User{}, err
	}

	owner, err := s.requireOwner(ctx, identity.UserId)
	if err != nil {
		return models.User{}, err
	}

	target, err := s.Users.GetUser(ctx, req.UserId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, apperr.NotFound("user")
		}
		return models.User{}, apperr.Dependency(err, "failed to update permissions")
	}

	if target.CompanyId != owner.CompanyId {
		return models.User{}, apperr.Authorization("user does not belong to your company")
	}

	if target.Id == owner.Id && req.Role != models.RoleOwner {
		return models.User{}, apperr.Validation("you cannot change your own owner role")
	}

	if req.Role == models.RoleOwner && target.Role != models.RoleOwner {
		count, err := s.Users.CountCompanyUsersByRole(ctx, owner.CompanyId, models.RoleOwner)
		if err != nil {
			return models.User{}, apperr.Dependency(err, "failed to update permissions")
		}
		if count >= 1 {
			return models.User{}, apperr.Validation("a company can have only one owner")
		}
	}

	saved, err := s.Users.UpdateUserAccess(ctx, target.Id, req.Role, req.Permissions, s.now().Unix())
	if err != nil {
		return models.User{}, apperr.Dependency(err, "failed to update permissions")
	}

	s.publishUserUpdated(saved.Id)
	return saved, nil
}
