package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
	"github.com/zlnvch/collabdocs/store"
)

func companyOwner() models.User {
	return models.User{Id: "boss", Name: "Boss", Email: "boss@example.com", CompanyId: "acme", Role: models.RoleOwner}
}

func TestListCompanyUsers_SortedByName(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	m.users.On("ListCompanyUsers", ctx, "acme").Return([]models.User{
		{Id: "2", Name: "Zed", Email: "z@example.com", PasswordHash: "secret"},
		{Id: "1", Name: "Ada", Email: "a@example.com"},
	}, nil)

	users, err := svc.ListCompanyUsers(ctx, models.Identity{UserId: "1", CompanyId: "acme"})
	require.NoError(t, err)
	assert.Equal(t, []service.CompanyUser{
		{Id: "1", Name: "Ada", Email: "a@example.com"},
		{Id: "2", Name: "Zed", Email: "z@example.com"},
	}, users)
}

func TestListCompanyUsersAdmin_OwnerOnly(t *testing.T) {
	svc, m := setupService(t)
	ctx := context.Background()

	member := testUser()
	m.users.On("GetUser", ctx, member.Id).Return(member, nil)

	_, err := svc.ListCompanyUsersAdmin(ctx, identityOf(member))
	assert.ErrorIs(t, err, service.ErrOwnerOnly)

	owner := companyOwner()
	m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)
	m.users.On("ListCompanyUsers", ctx, "acme").Return([]models.User{owner, member}, nil)

	users, err := svc.ListCompanyUsersAdmin(ctx, identityOf(owner))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ada", users[0].Name)
	assert.Equal(t, models.RoleOwner, users[1].Role)
}

func TestUpdateUserPermissions(t *testing.T) {
	ctx := context.Background()
	owner := companyOwner()
	member := testUser()

	t.Run("grants capabilities and publishes", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)
		m.users.On("GetUser", ctx, member.Id).Return(member, nil)

		perms := models.Capabilities{CanCreateDocuments: true}
		m.users.On("UpdateUserAccess", ctx, member.Id, models.RoleAdmin, perms, fixedNow.Unix()).Return(member, nil)
		publishDone := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, "user-updated", []byte(`{"userId":"user1"}`)).Return(nil))

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId:      member.Id,
			Role:        models.RoleAdmin,
			Permissions: perms,
		})
		require.NoError(t, err)
		waitFor(t, publishDone, "Publish")
	})

	t.Run("other company", func(t *testing.T) {
		svc, m := setupService(t)
		outsider := member
		outsider.CompanyId = "globex"
		m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)
		m.users.On("GetUser", ctx, member.Id).Return(outsider, nil)

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId: member.Id,
			Role:   models.RoleMember,
		})
		assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	})

	t.Run("owner cannot demote themself", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId: owner.Id,
			Role:   models.RoleMember,
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		m.users.AssertNotCalled(t, "UpdateUserAccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("second owner rejected", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)
		m.users.On("GetUser", ctx, member.Id).Return(member, nil)
		m.users.On("CountCompanyUsersByRole", ctx, "acme", models.RoleOwner).Return(1, nil)

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId: member.Id,
			Role:   models.RoleOwner,
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Contains(t, apperr.PublicMessage(err), "only one owner")
	})

	t.Run("unknown target", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUser", ctx, owner.Id).Return(owner, nil)
		m.users.On("GetUser", ctx, "ghost").Return(models.User{}, store.ErrItemNotFound)

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId: "ghost",
			Role:   models.RoleMember,
		})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("invalid role", func(t *testing.T) {
		svc, _ := setupService(t)

		_, err := svc.UpdateUserPermissions(ctx, identityOf(owner), service.UpdateUserPermissionsRequest{
			UserId: member.Id,
			Role:   "superuser",
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	member := testUser()

	t.Run("email owned by someone else", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUserByEmail", ctx, "taken@example.com").Return(models.User{Id: "other"}, nil)

		_, err := svc.UpdateProfile(ctx, identityOf(member), service.UpdateProfileRequest{
			Name:  "Ada",
			Email: "Taken@Example.com",
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		m.users.AssertNotCalled(t, "UpdateUserProfile", mock.Anything, mock.Anything)
	})

	t.Run("member cannot move company", func(t *testing.T) {
		svc, m := setupService(t)
		m.users.On("GetUserByEmail", ctx, member.Email).Return(member, nil)
		m.users.On("GetUser", ctx, member.Id).Return(member, nil)
		m.users.On("UpdateUserProfile", ctx, mock.MatchedBy(func(u models.User) bool {
			return u.Name == "Ada L" && u.CompanyId == "acme"
		})).Return(member, nil)
		publishDone := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, "user-updated", mock.Anything).Return(nil))

		_, err := svc.UpdateProfile(ctx, identityOf(member), service.UpdateProfileRequest{
			Name:      "Ada L",
			Email:     member.Email,
			CompanyId: "globex",
		})
		require.NoError(t, err)
		waitFor(t, publishDone, "Publish")
	})

	t.Run("admin moves company and changes image", func(t *testing.T) {
		svc, m := setupService(t)
		admin := member
		admin.Role = models.RoleAdmin
		image := "data:image/png;base64,iVBORw0KGgo="

		m.users.On("GetUserByEmail", ctx, "new@example.com").Return(models.User{}, store.ErrItemNotFound)
		m.users.On("GetUser", ctx, admin.Id).Return(admin, nil)
		m.users.On("UpdateUserProfile", ctx, mock.MatchedBy(func(u models.User) bool {
			return u.CompanyId == "globex" && u.Email == "new@example.com" && u.ProfileImage == image
		})).Return(admin, nil)
		publishDone := wrapMockWithSignal(m.cache.On("Publish", mock.Anything, "user-updated", mock.Anything).Return(nil))

		_, err := svc.UpdateProfile(ctx, identityOf(admin), service.UpdateProfileRequest{
			Name:         "Ada",
			Email:        "new@example.com",
			CompanyId:    "globex",
			ProfileImage: &image,
		})
		require.NoError(t, err)
		waitFor(t, publishDone, "Publish")
	})

	t.Run("bad image", func(t *testing.T) {
		svc, m := setupService(t)
		image := "not an image"
		m.users.On("GetUserByEmail", ctx, member.Email).Return(member, nil)
		m.users.On("GetUser", ctx, member.Id).Return(member, nil)

		_, err := svc.UpdateProfile(ctx, identityOf(member), service.UpdateProfileRequest{
			Name:         "Ada",
			Email:        member.Email,
			ProfileImage: &image,
		})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		m.users.AssertNotCalled(t, "UpdateUserProfile", mock.Anything, mock.Anything)
	})
}
