package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
	"github.com/zlnvch/collabdocs/worker"
)

// ForgotPasswordMessage is returned whether or not the email is registered.
const ForgotPasswordMessage = "if the email is registered, a reset link has been sent"

var ErrInvalidResetToken = apperr.New(apperr.KindNotFound, "invalid or expired reset token")

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) resetLink(token string) string {
	return strings.TrimRight(s.Options.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

// ForgotPassword replaces any previous tokens for the email and mails a new
// one. The token is rolled back when the mail cannot be sent.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	user, err := s.Users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ForgotPasswordMessage, nil
		}
		return "", apperr.Dependency(err, "password recovery failed")
	}

	if err := s.ResetTokens.DeleteResetTokens(ctx, user.Email); err != nil {
		return "", apperr.Dependency(err, "password recovery failed")
	}

	token, err := newResetToken()
	if err != nil {
		return "", apperr.Dependency(err, "password recovery failed")
	}

	resetToken := models.ResetToken{
		Email:     user.Email,
		Token:     token,
		ExpiresAt: s.now().Add(s.Options.ResetTokenTTL),
	}
	if err := s.ResetTokens.CreateResetToken(ctx, resetToken); err != nil {
		return "", apperr.Dependency(err, "password recovery failed")
	}

	if err := s.Mailer.SendPasswordReset(ctx, user.Email, user.Name, s.resetLink(token)); err != nil {
		if delErr := s.ResetTokens.DeleteResetToken(ctx, token); delErr != nil {
			s.log.LogError(ctx, delErr, "reset token rollback failed")
		}
		return "", apperr.Dependency(err, "failed to send recovery email, try again")
	}

	return ForgotPasswordMessage, nil
}

// ResetPassword consumes a valid token and sets the new password. The
// confirmation mail is queued best-effort.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	resetToken, err := s.ResetTokens.FindValidResetToken(ctx, req.Token, s.now())
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ErrInvalidResetToken
		}
		return apperr.Dependency(err, "password reset failed")
	}

	user, err := s.Users.GetUserByEmail(ctx, resetToken.Email)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return apperr.NotFound("user")
		}
		return apperr.Dependency(err, "password reset failed")
	}

	// Consumed before the password changes so a token is never usable twice
	resetToken.Used = true
	if err := s.ResetTokens.SaveResetToken(ctx, resetToken); err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return ErrInvalidResetToken
		}
		return apperr.Dependency(err, "password reset failed")
	}

	if err := s.setPassword(ctx, user, req.Password); err != nil {
		return err
	}

	s.queuePasswordChangedMail(user)
	return nil
}

func (s *Service) UpdatePassword(ctx context.Context, identity models.Identity, req UpdatePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, identity.UserId)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return apperr.Authentication("current password is incorrect")
	}

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return err
	}

	s.queuePasswordChangedMail(user)
	return nil
}

func (s *Service) setPassword(ctx context.Context, user models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.Users.UpdateUserPassword(ctx, user.Id, string(hash), s.now().Unix()); err != nil {
		return apperr.Dependency(err, "failed to update password")
	}
	return nil
}

func (s *Service) queuePasswordChangedMail(user models.User) {
	if s.MailQueue == nil {
		return
	}

	go func() {
		msg := worker.MailMessage{
			Kind:     worker.MailPasswordChanged,
			To:       user.Email,
			UserName: user.Name,
		}
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := s.MailQueue.Send(context.Background(), string(msgBytes)); err != nil {
			s.log.Logger().Warn("password changed mail not queued",
				zap.String("user_id", user.Id),
				zap.Error(apperr.BestEffort(err, "queue password changed mail")),
			)
		}
	}()
}
