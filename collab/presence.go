package collab

import (
	"cmp"
	"slices"

	"github.com/zlnvch/collabdocs/models"
)

// Presence tracks which document each connection has joined. A connection is
// in at most one room.
type Presence struct {
	byConn map[string]models.PresenceEntry
	rooms  map[string]map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[string]models.PresenceEntry),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Join places connId in documentId. It returns the document the connection
// left to do so, or "" when it was not in another room.
func (p *Presence) Join(connId, documentId, userId, displayName string) string {
	previous := ""
	if entry, ok := p.byConn[connId]; ok {
		if entry.DocumentId != documentId {
			previous = entry.DocumentId
		}
		p.Leave(connId)
	}

	p.byConn[connId] = models.PresenceEntry{
		ConnId:      connId,
		DocumentId:  documentId,
		UserId:      userId,
		DisplayName: displayName,
	}
	if p.rooms[documentId] == nil {
		p.rooms[documentId] = make(map[string]struct{})
	}
	p.rooms[documentId][connId] = struct{}{}

	return previous
}

func (p *Presence) Leave(connId string) (models.PresenceEntry, bool) {
	entry, ok := p.byConn[connId]
	if !ok {
		return models.PresenceEntry{}, false
	}

	delete(p.byConn, connId)
	delete(p.rooms[entry.DocumentId], connId)
	if len(p.rooms[entry.DocumentId]) == 0 {
		delete(p.rooms, entry.DocumentId)
	}
	return entry, true
}

func (p *Presence) Entry(connId string) (models.PresenceEntry, bool) {
	entry, ok := p.byConn[connId]
	return entry, ok
}

// InDocument lists the room ordered by connection id.
func (p *Presence) InDocument(documentId string) []models.PresenceEntry {
	room := p.rooms[documentId]
	out := make([]models.PresenceEntry, 0, len(room))
	for connId := range room {
		out = append(out, p.byConn[connId])
	}
	slices.SortFunc(out, func(a, b models.PresenceEntry) int {
		return cmp.Compare(a.ConnId, b.ConnId)
	})
	return out
}

// UserIds returns each user in the room once.
func (p *Presence) UserIds(documentId string) []string {
	var out []string
	for _, entry := range p.InDocument(documentId) {
		if !slices.Contains(out, entry.UserId) {
			out = append(out, entry.UserId)
		}
	}
	return out
}

// Purge empties the room and returns the connections it held.
func (p *Presence) Purge(documentId string) []string {
	entries := p.InDocument(documentId)
	connIds := make([]string, len(entries))
	for i, entry := range entries {
		connIds[i] = entry.ConnId
		delete(p.byConn, entry.ConnId)
	}
	delete(p.rooms, documentId)
	return connIds
}

func (p *Presence) DocumentsWithUser(userId string) []string {
	var out []string
	for _, entry := range p.byConn {
		if entry.UserId == userId && !slices.Contains(out, entry.DocumentId) {
			out = append(out, entry.DocumentId)
		}
	}
	slices.Sort(out)
	return out
}

func (p *Presence) Len() int {
	return len(p.byConn)
}
