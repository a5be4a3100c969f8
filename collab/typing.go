package collab

import "slices"

// Typing keeps the display names currently typing in each document. A
// document with nobody typing has no entry.
type Typing struct {
	docs map[string]map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{docs: make(map[string]map[string]struct{})}
}

func (t *Typing) Start(documentId, name string) []string {
	if t.docs[documentId] == nil {
		t.docs[documentId] = make(map[string]struct{})
	}
	t.docs[documentId][name] = struct{}{}
	return t.Names(documentId)
}

func (t *Typing) Stop(documentId, name string) []string {
	names, ok := t.docs[documentId]
	if !ok {
		return []string{}
	}

	delete(names, name)
	if len(names) == 0 {
		delete(t.docs, documentId)
	}
	return t.Names(documentId)
}

// Names is sorted and never nil.
func (t *Typing) Names(documentId string) []string {
	out := make([]string, 0, len(t.docs[documentId]))
	for name := range t.docs[documentId] {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (t *Typing) IsTyping(documentId, name string) bool {
	_, ok := t.docs[documentId][name]
	return ok
}

func (t *Typing) Purge(documentId string) {
	delete(t.docs, documentId)
}

func (t *Typing) Len() int {
	return len(t.docs)
}
