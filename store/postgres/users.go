package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

const userColumns = `id, name, email, password_hash, company_id, role, capabilities, profile_image, created, updated`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var role string
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CompanyId,
		&role,
		&user.Capabilities,
		&user.ProfileImage,
		&user.Created,
		&user.Updated,
	)
	user.Role = models.Role(role)
	return user, err
}

func collectUsers(rows pgx.Rows) ([]models.User, error) {
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	userId, err := uuid.NewV4()
	if err != nil {
		return models.User{}, err
	}
	user.Id = userId.String()
	user.Email = strings.ToLower(user.Email)

	now := time.Now().Unix()
	user.Created = now
	user.Updated = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.Id,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.CompanyId,
		string(user.Role),
		user.Capabilities,
		user.ProfileImage,
		user.Created,
		user.Updated,
	)
	if err != nil {
		if isPgDuplicateError(err) {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userId string) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userId))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.User{}, store.ErrItemNotFound
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.User{}, store.ErrItemNotFound
		}
		return models.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUsers(ctx context.Context, userIds []string) ([]models.User, error) {
	if len(userIds) == 0 {
		return []models.User{}, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, userIds)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	return collectUsers(rows)
}

func (s *PostgresStore) ListCompanyUsers(ctx context.Context, companyId string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE company_id = $1 ORDER BY name`, companyId)
	if err != nil {
		return nil, fmt.Errorf("list company users: %w", err)
	}
	return collectUsers(rows)
}

func (s *PostgresStore) CountCompanyUsersByRole(ctx context.Context, companyId string, role models.Role) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE company_id = $1 AND role = $2`,
		companyId, string(role),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, user models.User) (models.User, error) {
	saved, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $1, email = $2, company_id = $3, profile_image = $4, updated = $5
		WHERE id = $6
		RETURNING `+userColumns,
		user.Name,
		strings.ToLower(user.Email),
		user.CompanyId,
		user.ProfileImage,
		user.Updated,
		user.Id,
	))
	if err != nil {
		switch {
		case isPgNoRowsError(err):
			return models.User{}, store.ErrItemNotFound
		case isPgDuplicateError(err):
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) UpdateUserAccess(ctx context.Context, userId string, role models.Role, capabilities models.Capabilities, updated int64) (models.User, error) {
	saved, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET role = $1, capabilities = $2, updated = $3
		WHERE id = $4
		RETURNING `+userColumns,
		string(role), capabilities, updated, userId,
	))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.User{}, store.ErrItemNotFound
		}
		return models.User{}, fmt.Errorf("update user access: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userId string, passwordHash string, updated int64) error {
	result, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $1, updated = $2 WHERE id = $3`,
		passwordHash, updated, userId)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrItemNotFound
	}
	return nil
}
