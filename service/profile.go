package service

import (
	"context"
	"errors"
	"strings"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	// CompanyId is applied for admins only.
	CompanyId string `json:"companyId,omitempty"`
	// ProfileImage nil keeps the current image, "" removes it.
	ProfileImage *string `json:"profileImage,omitempty"`
}

func (s *Service) UpdateProfile(ctx context.Context, identity models.Identity, req UpdateProfileRequest) (models.User, error) {
	if err := req.Validate(); err != nil {
		return models.User{}, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.Users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing.Id != identity.UserId:
		return models.User{}, apperr.Validation("email already used by another user")
	case err != nil && !errors.Is(err, store.ErrItemNotFound):
		return models.User{}, apperr.Dependency(err, "failed to update profile")
	}

	user, err := s.loadUser(ctx, identity.UserId)
	if err != nil {
		return models.User{}, err
	}

	user.Name = strings.TrimSpace(req.Name)
	user.Email = email

	if req.ProfileImage != nil {
		if *req.ProfileImage != "" {
			if _, err := ValidateProfileImage(*req.ProfileImage); err != nil {
				return models.User{}, err
			}
		}
		user.ProfileImage = *req.ProfileImage
	}

	if req.CompanyId != "" && user.Role == models.RoleAdmin {
		user.CompanyId = strings.TrimSpace(req.CompanyId)
	}

	user.Updated = s.now().Unix()
	saved, err := s.Users.UpdateUserProfile(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return models.User{}, apperr.Validation("email already used by another user")
		}
		return models.User{}, apperr.Dependency(err, "failed to update profile")
	}

	s.publishUserUpdated(saved.Id)
	return saved, nil
}
