package ws

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/service"
)

// Events answering account and directory requests.
const (
	eventCompanyUsers           = "company_users"
	eventCompanyUsersAdmin      = "company_users_admin"
	eventProfileUpdated         = "profile_updated"
	eventProfileError           = "profile_error"
	eventPasswordUpdated        = "password_updated"
	eventPasswordError          = "password_error"
	eventUserPermissionsUpdated = "user_permissions_updated"
)

var errBadMessage = apperr.Validation("invalid message")

type documentRef struct {
	DocumentId string `json:"documentId"`
}

type selectDocumentMessage struct {
	DocumentId  string `json:"documentId"`
	DisplayName string `json:"displayName"`
}

type userResponse struct {
	Success bool                 `json:"success"`
	User    *service.UserProfile `json:"user,omitempty"`
	Error   *collab.ErrorData    `json:"error,omitempty"`
}

type adminUserResponse struct {
	Success bool               `json:"success"`
	User    *service.AdminUser `json:"user,omitempty"`
	Error   *collab.ErrorData  `json:"error,omitempty"`
}

type messageResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Error   *collab.ErrorData `json:"error,omitempty"`
}

type authResponse struct {
	Success bool                 `json:"success"`
	Token   string               `json:"token,omitempty"`
	User    *service.UserProfile `json:"user,omitempty"`
	Error   *collab.ErrorData    `json:"error,omitempty"`
}

func errorData(err error) *collab.ErrorData {
	data := collab.ErrorOf(err, "")
	return &data
}

// decode unpacks msg.Data into T. A malformed payload is answered with
// server_error.
func decode[T any](client *Client, msg collab.Envelope) (T, bool) {
	var v T
	if len(msg.Data) == 0 {
		return v, true
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		client.log.Debug("invalid message data", zap.String("type", msg.Type), zap.Error(err))
		client.Send(collab.Encode(collab.EventServerError, collab.ErrorOf(errBadMessage, "")))
		return v, false
	}
	return v, true
}

func (h *Handler) fail(ctx context.Context, client *Client, eventType string, err error) {
	if apperr.Is(err, apperr.KindDependency) {
		h.log.LogError(ctx, err, "websocket request failed", zap.String("event", eventType))
	}
	client.Send(collab.Encode(eventType, collab.ErrorOf(err, "")))
}

// HandleWsMessage dispatches one frame from an authenticated connection.
// It returns once the operation is done so frames are handled in order.
func (h *Handler) HandleWsMessage(ctx context.Context, client *Client, messageBytes []byte) {
	var msg collab.Envelope
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		client.Send(collab.Encode(collab.EventServerError, collab.ErrorOf(errBadMessage, "")))
		return
	}

	identity := client.Identity()
	ctx = logger.WithConnID(logger.WithUserID(ctx, identity.UserId), client.ConnId())

	switch msg.Type {
	case "select_document":
		if data, ok := decode[selectDocumentMessage](client, msg); ok {
			h.Coordinator.Select(ctx, client, data.DocumentId, data.DisplayName)
		}

	case "leave_document":
		if data, ok := decode[documentRef](client, msg); ok {
			h.Coordinator.Leave(client, data.DocumentId)
		}

	case "edit_document":
		if req, ok := decode[service.EditRequest](client, msg); ok {
			h.Coordinator.Edit(ctx, client, req)
		}

	case "start_typing":
		if data, ok := decode[documentRef](client, msg); ok {
			h.Coordinator.StartTyping(client, data.DocumentId)
		}

	case "stop_typing":
		if data, ok := decode[documentRef](client, msg); ok {
			h.Coordinator.StopTyping(client, data.DocumentId)
		}

	case "create_document":
		if req, ok := decode[service.CreateDocumentRequest](client, msg); ok {
			h.Coordinator.Create(ctx, client, req)
		}

	case "delete_document":
		if data, ok := decode[documentRef](client, msg); ok {
			h.Coordinator.Delete(ctx, client, data.DocumentId)
		}

	case "load_documents":
		h.Coordinator.LoadDocuments(ctx, client)

	case "update_document_permissions":
		if req, ok := decode[service.UpdatePermissionsRequest](client, msg); ok {
			h.Coordinator.UpdatePermissions(ctx, client, req)
		}

	case "list_company_users":
		users, err := h.Service.ListCompanyUsers(ctx, identity)
		if err != nil {
			h.fail(ctx, client, collab.EventServerError, err)
			return
		}
		client.Send(collab.Encode(eventCompanyUsers, users))

	case "list_company_users_admin":
		users, err := h.Service.ListCompanyUsersAdmin(ctx, identity)
		if err != nil {
			h.fail(ctx, client, collab.EventServerError, err)
			return
		}
		client.Send(collab.Encode(eventCompanyUsersAdmin, users))

	case "update_profile":
		req, ok := decode[service.UpdateProfileRequest](client, msg)
		if !ok {
			return
		}
		user, err := h.Service.UpdateProfile(ctx, identity, req)
		if err != nil {
			h.fail(ctx, client, eventProfileError, err)
			return
		}
		profile := service.ProfileOf(user)
		client.Send(collab.Encode(eventProfileUpdated, userResponse{Success: true, User: &profile}))

	case "update_password":
		req, ok := decode[service.UpdatePasswordRequest](client, msg)
		if !ok {
			return
		}
		if err := h.Service.UpdatePassword(ctx, identity, req); err != nil {
			h.fail(ctx, client, eventPasswordError, err)
			return
		}
		client.Send(collab.Encode(eventPasswordUpdated, messageResponse{Success: true, Message: "Password updated"}))

	case "update_user_permissions":
		req, ok := decode[service.UpdateUserPermissionsRequest](client, msg)
		if !ok {
			return
		}
		user, err := h.Service.UpdateUserPermissions(ctx, identity, req)
		if err != nil {
			h.fail(ctx, client, collab.EventServerError, err)
			return
		}
		adminUser := service.AdminUserOf(user)
		client.Send(collab.Encode(eventUserPermissionsUpdated, adminUserResponse{Success: true, User: &adminUser}))

	case "logout":
		h.Hub.LogoutPeer(client)
		client.Close(websocket.CloseNormalClosure, "Logged out")

	default:
		h.log.LogWarn(ctx, "unknown message type", zap.String("type", msg.Type))
		client.Send(collab.Encode(collab.EventServerError, collab.ErrorOf(apperr.Validation("unknown message type "+msg.Type), "")))
	}
}

// HandlePublicMessage dispatches one frame from an anonymous connection.
// Every request is answered by <type>_response.
func (h *Handler) HandlePublicMessage(ctx context.Context, client *Client, messageBytes []byte) {
	var msg collab.Envelope
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		client.Send(collab.Encode(collab.EventServerError, collab.ErrorOf(errBadMessage, "")))
		return
	}
	ctx = logger.WithConnID(ctx, client.ConnId())

	var resp any
	switch msg.Type {
	case "login":
		req, ok := decode[service.LoginRequest](client, msg)
		if !ok {
			return
		}
		user, token, err := h.Service.Login(ctx, req)
		resp = h.authResult(ctx, msg.Type, user, token, err)

	case "register":
		req, ok := decode[service.RegisterRequest](client, msg)
		if !ok {
			return
		}
		user, token, err := h.Service.Register(ctx, req)
		resp = h.authResult(ctx, msg.Type, user, token, err)

	case "forgot_password":
		req, ok := decode[service.ForgotPasswordRequest](client, msg)
		if !ok {
			return
		}
		message, err := h.Service.ForgotPassword(ctx, req)
		if err != nil {
			h.logDependency(ctx, err, msg.Type)
			resp = messageResponse{Error: errorData(err)}
		} else {
			resp = messageResponse{Success: true, Message: message}
		}

	case "reset_password":
		req, ok := decode[service.ResetPasswordRequest](client, msg)
		if !ok {
			return
		}
		if err := h.Service.ResetPassword(ctx, req); err != nil {
			h.logDependency(ctx, err, msg.Type)
			resp = messageResponse{Error: errorData(err)}
		} else {
			resp = messageResponse{Success: true, Message: "Password has been reset"}
		}

	default:
		client.Send(collab.Encode(collab.EventServerError, collab.ErrorOf(apperr.Validation("unknown message type "+msg.Type), "")))
		return
	}

	client.Send(collab.Encode(msg.Type+"_response", resp))
}

func (h *Handler) authResult(ctx context.Context, eventType string, user models.User, token string, err error) authResponse {
	if err != nil {
		h.logDependency(ctx, err, eventType)
		return authResponse{Error: errorData(err)}
	}
	profile := service.ProfileOf(user)
	return authResponse{Success: true, Token: token, User: &profile}
}

func (h *Handler) logDependency(ctx context.Context, err error, eventType string) {
	if apperr.Is(err, apperr.KindDependency) {
		h.log.LogError(ctx, err, "websocket request failed", zap.String("event", eventType))
	}
}
