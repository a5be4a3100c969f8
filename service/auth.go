package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

const bcryptCost = 10

var (
	ErrInvalidCredential = apperr.Authentication("invalid credential")
	ErrExpiredCredential = apperr.Authentication("credential expired")
	ErrMissingCredential = apperr.Authentication("credential not provided")
	ErrWrongLogin        = apperr.Authentication("invalid email or password")
)

type Claims struct {
	UserId    string `json:"userId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CompanyId string `json:"companyId"`
	jwt.RegisteredClaims
}

func (s *Service) CreateJWT(user models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserId:    user.Id,
		Email:     user.Email,
		Name:      user.Name,
		CompanyId: user.CompanyId,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Options.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

// VerifyJWT checks signature and expiry. Expired tokens fail with
// ErrExpiredCredential, everything else with ErrInvalidCredential.
func (s *Service) VerifyJWT(tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, ErrMissingCredential
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, ErrExpiredCredential
		}
		return models.Identity{}, ErrInvalidCredential
	}

	if !token.Valid || claims.UserId == "" {
		return models.Identity{}, ErrInvalidCredential
	}

	return models.Identity{
		UserId:    claims.UserId,
		Email:     claims.Email,
		Name:      claims.Name,
		CompanyId: claims.CompanyId,
	}, nil
}

// AuthenticateToken resolves the identity carried by a credential.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (models.Identity, error) {
	return s.VerifyJWT(strings.TrimSpace(token))
}

// VerifySession verifies the credential and reloads its user.
func (s *Service) VerifySession(ctx context.Context, token string) (models.User, error) {
	identity, err := s.AuthenticateToken(ctx, token)
	if err != nil {
		return models.User{}, err
	}

	return s.loadUser(ctx, identity.UserId)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (models.User, string, error) {
	if err := req.Validate(); err != nil {
		return models.User{}, "", err
	}

	user, err := s.Users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, "", ErrWrongLogin
		}
		return models.User{}, "", apperr.Dependency(err, "login failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return models.User{}, "", ErrWrongLogin
	}

	token, err := s.CreateJWT(user)
	if err != nil {
		return models.User{}, "", apperr.Dependency(err, "token generation failed")
	}

	return user, token, nil
}

type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	CompanyId    string `json:"companyId"`
	Password     string `json:"password"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Register creates a member with no capabilities and signs them in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, string, error) {
	if err := req.Validate(); err != nil {
		return models.User{}, "", err
	}

	if req.ProfileImage != "" {
		if _, err := ValidateProfileImage(req.ProfileImage); err != nil {
			return models.User{}, "", err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.Users.CreateUser(ctx, models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CompanyId:    strings.TrimSpace(req.CompanyId),
		Role:         models.RoleMember,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return models.User{}, "", apperr.Validation("email already registered")
		}
		return models.User{}, "", apperr.Dependency(err, "registration failed")
	}

	token, err := s.CreateJWT(user)
	if err != nil {
		return models.User{}, "", apperr.Dependency(err, "token generation failed")
	}

	return user, token, nil
}

func (s *Service) loadUser(ctx context.Context, userId string) (models.User, error) {
	user, err := s.Users.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, apperr.NotFound("user")
		}
		return models.User{}, apperr.Dependency(err, "failed to load user")
	}
	return user, nil
}
