package collab

import (
	"encoding/json"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/models"
)

// Server events.
const (
	EventAuthorized             = "authorized"
	EventSessionDisplacing      = "session_displacing"
	EventSessionTerminated      = "session_terminated"
	EventSelectDocumentResponse = "select_document_response"
	EventOnlineUsers            = "online_users"
	EventDocumentEdited         = "document_edited"
	EventEditRejected           = "edit_rejected"
	EventUserTyping             = "user_typing"
	EventUserStoppedTyping      = "user_stopped_typing"
	EventDocumentCreated        = "document_created"
	EventDocumentDeleted        = "document_deleted"
	EventDocumentsLoaded        = "documents_loaded"
	EventPermissionsUpdated     = "permissions_updated"
	EventPermissionsError       = "permissions_error"
	EventServerError            = "server_error"
)

// Close codes sent with a forced disconnect.
const (
	CloseSessionTerminated = 4000
	CloseSessionsCleared   = 4001
)

const displacedNotice = "Your account was signed in from another location. This session will close."

// Envelope is the frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode frames data as an event. A payload that cannot be marshalled
// becomes a server_error frame.
func Encode(eventType string, data any) []byte {
	msgBytes, err := json.Marshal(outbound{Type: eventType, Data: data})
	if err != nil {
		msgBytes, _ = json.Marshal(outbound{Type: EventServerError, Data: ErrorData{
			Code:    string(apperr.KindDependency),
			Message: "internal server error",
		}})
	}
	return msgBytes
}

type ErrorData struct {
	DocumentId string `json:"documentId,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ErrorOf converts err into a payload safe to show the client.
func ErrorOf(err error, documentId string) ErrorData {
	return ErrorData{
		DocumentId: documentId,
		Code:       string(apperr.KindOf(err)),
		Message:    apperr.PublicMessage(err),
	}
}

type AuthorizedData struct {
	ConnId   string          `json:"connId"`
	Identity models.Identity `json:"user"`
}

type NoticeData struct {
	Message string `json:"message"`
}

type OnlineUsersData struct {
	DocumentId string              `json:"documentId"`
	Users      []models.OnlineUser `json:"users"`
}

type TypingData struct {
	DocumentId  string   `json:"documentId"`
	DisplayName string   `json:"displayName"`
	Typing      []string `json:"typing"`
}

type DocumentEditedData struct {
	DocumentId string `json:"documentId"`
	Text       string `json:"text"`
}

type DocumentDeletedData struct {
	DocumentId string `json:"documentId"`
}
