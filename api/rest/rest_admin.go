package rest

import (
	"net/http"

	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/service"
)

type companyUsersResponse struct {
	Success bool                  `json:"success"`
	Users   []service.CompanyUser `json:"users"`
}

type adminUsersResponse struct {
	Success bool                `json:"success"`
	Users   []service.AdminUser `json:"users"`
}

type adminUserResponse struct {
	Success bool              `json:"success"`
	User    service.AdminUser `json:"user"`
}

type sessionsResponse struct {
	Success  bool                 `json:"success"`
	Count    int                  `json:"count"`
	Sessions []collab.SessionInfo `json:"sessions"`
}

type clearSessionsRequest struct {
	Reason string `json:"reason"`
}

type clearSessionsResponse struct {
	Success bool `json:"success"`
	Cleared int  `json:"cleared"`
}

func (h *Handler) HandleCompanyUsers(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	users, err := h.Service.ListCompanyUsers(ctx, identity)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, companyUsersResponse{Success: true, Users: users})
}

func (h *Handler) HandleAdminUsers(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	users, err := h.Service.ListCompanyUsersAdmin(ctx, identity)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, adminUsersResponse{Success: true, Users: users})
}

func (h *Handler) HandleUpdateUserPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req service.UpdateUserPermissionsRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	user, err := h.Service.UpdateUserPermissions(ctx, identity, req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, adminUserResponse{Success: true, User: service.AdminUserOf(user)})
}

// HandleSessions lists the bindings held by this process.
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdminKey(w, r) {
		return
	}

	sessions := h.Sessions.Sessions()
	if sessions == nil {
		sessions = []collab.SessionInfo{}
	}
	h.sendOK(w, sessionsResponse{Success: true, Count: len(sessions), Sessions: sessions})
}

// HandleClearSessions terminates the sessions of this process and tells
// the other processes to do the same.
func (h *Handler) HandleClearSessions(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdminKey(w, r) {
		return
	}

	var req clearSessionsRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	cleared := h.Sessions.ClearSessions(req.Reason)
	h.Service.PublishSessionsCleared(req.Reason)

	h.sendOK(w, clearSessionsResponse{Success: true, Cleared: cleared})
}
