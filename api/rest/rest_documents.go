package rest

import (
	"net/http"

	"github.com/zlnvch/collabdocs/service"
)

type documentsResponse struct {
	Success   bool                   `json:"success"`
	Documents []service.DocumentView `json:"documents"`
}

type documentResponse struct {
	Success  bool                 `json:"success"`
	Document service.DocumentView `json:"document"`
}

type permissionsResponse struct {
	Success     bool                        `json:"success"`
	Permissions service.DocumentPermissions `json:"permissions"`
}

type permissionsRequest struct {
	ReadPermissions []string `json:"readPermissions"`
	EditPermissions []string `json:"editPermissions"`
}

func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	docs, err := h.Service.ListDocuments(ctx, identity)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, documentsResponse{Success: true, Documents: docs})
}

func (h *Handler) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req service.CreateDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	doc, err := h.Service.CreateDocument(ctx, identity, req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, http.StatusCreated, documentResponse{Success: true, Document: h.Service.DocumentView(ctx, doc)})
}

func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.GetDocument(ctx, identity, r.PathValue("id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, documentResponse{Success: true, Document: h.Service.DocumentView(ctx, doc)})
}

// HandleUpdateDocument changes title and/or content. New content is pushed
// to everyone in the document's room.
func (h *Handler) HandleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req service.UpdateDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, err)
		return
	}

	doc, err := h.Service.UpdateDocument(ctx, identity, r.PathValue("id"), req)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if req.Content != nil {
		h.Broadcaster.DocumentEdited(doc.Id, doc.Content, "")
	}

	h.sendOK(w, documentResponse{Success: true, Document: h.Service.DocumentView(ctx, doc)})
}

func (h *Handler) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	documentId := r.PathValue("id")
	if err := h.Service.DeleteDocument(ctx, identity, documentId); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.Broadcaster.DocumentDeleted(documentId)
	h.sendOK(w, messageResponse{Success: true, Message: "Document deleted"})
}

func (h *Handler) HandleGetPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	perms, err := h.Service.GetPermissions(ctx, identity, r.PathValue("id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, permissionsResponse{Success: true, Permissions: perms})
}

func (h *Handler) HandleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	identity, ctx, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var body permissionsRequest
	if err := decodeBody(r, &body); err != nil {
		h.sendError(w, r, err)
		return
	}

	doc, err := h.Service.UpdatePermissions(ctx, identity, service.UpdatePermissionsRequest{
		DocumentId:      r.PathValue("id"),
		ReadPermissions: body.ReadPermissions,
		EditPermissions: body.EditPermissions,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendOK(w, permissionsResponse{Success: true, Permissions: service.PermissionsOf(doc)})
}
