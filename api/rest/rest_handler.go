package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
)

// Broadcaster pushes REST-side document changes to the realtime rooms.
type Broadcaster interface {
	DocumentEdited(documentId, text, excludeConnId string)
	DocumentDeleted(documentId string) []string
}

// Sessions is the admin view of the session registry.
type Sessions interface {
	Sessions() []collab.SessionInfo
	ClearSessions(reason string) int
	Logout(credential string)
}

type Handler struct {
	Service     *service.Service
	Broadcaster Broadcaster
	Sessions    Sessions
	AdminKey    string

	log *logger.ContextLogger
}

func NewHandler(svc *service.Service, broadcaster Broadcaster, sessions Sessions, adminKey string, log *zap.Logger) *Handler {
	return &Handler{
		Service:     svc,
		Broadcaster: broadcaster,
		Sessions:    sessions,
		AdminKey:    adminKey,
		log:         logger.NewContextLogger(log),
	}
}

var (
	errBadBody  = apperr.Validation("invalid request body")
	errAdminKey = apperr.Authorization("invalid admin key")
)

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type authResponse struct {
	Success bool                `json:"success"`
	Token   string              `json:"token"`
	User    service.UserProfile `json:"user"`
}

type userResponse struct {
	Success bool                `json:"success"`
	User    service.UserProfile `json:"user"`
}

func (h *Handler) sendResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Logger().Debug("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) sendOK(w http.ResponseWriter, resp any) {
	h.sendResponse(w, http.StatusOK, resp)
}

// sendError writes err as {success:false, code, message} with the status of
// its kind. Dependency failures are logged with their cause.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindDependency {
		h.log.LogError(r.Context(), err, "request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}
	h.sendResponse(w, apperr.Status(err), errorResponse{
		Success: false,
		Code:    string(apperr.KindOf(err)),
		Message: apperr.PublicMessage(err),
	})
}

// decodeBody reads the JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}

// authenticate resolves the bearer credential. On failure the error
// response has been written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (models.Identity, context.Context, bool) {
	identity, err := h.Service.AuthenticateToken(r.Context(), h.getTokenFromAuthHeader(r))
	if err != nil {
		h.sendError(w, r, err)
		return models.Identity{}, nil, false
	}
	return identity, logger.WithUserID(r.Context(), identity.UserId), true
}

func (h *Handler) requireAdminKey(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-Admin-Key")
	if h.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.AdminKey)) != 1 {
		h.sendError(w, r, errAdminKey)
		return false
	}
	return true
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	user, token, err := h.Service.Login(r.Context(), req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, authResponse{Success: true, Token: token, User: service.ProfileOf(user)})
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	user, token, err := h.Service.Register(r.Context(), req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, http.StatusCreated, authResponse{Success: true, Token: token, User: service.ProfileOf(user)})
}

func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ForgotPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	message, err := h.Service.ForgotPassword(r.Context(), req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, messageResponse{Success: true, Message: message})
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req service.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.Service.ResetPassword(r.Context(), req); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, messageResponse{Success: true, Message: "Password has been reset"})
}

// HandleLogout unbinds the bearer credential when one is given.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.getTokenFromAuthHeader(r); token != "" {
		h.Sessions.Logout(token)
	}
	h.sendOK(w, messageResponse{Success: true, Message: "Logged out"})
}

func (h *Handler) HandleVerifySession(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.VerifySession(r.Context(), h.getTokenFromAuthHeader(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, userResponse{Success: true, User: service.ProfileOf(user)})
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req service.UpdateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	user, err := h.Service.UpdateProfile(ctx, identity, req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, userResponse{Success: true, User: service.ProfileOf(user)})
}

func (h *Handler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req service.UpdatePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.Service.UpdatePassword(ctx, identity, req); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, messageResponse{Success: true, Message: "Password updated"})
}
