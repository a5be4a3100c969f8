package collab

import (
	"cmp"
	"slices"
)

// Binding ties a login credential to the connection currently speaking for
// it.
type Binding struct {
	Credential string
	ConnId     string
}

// Registry maps each credential to at most one live connection. It is owned
// by the Hub goroutine and is not safe for concurrent use.
type Registry struct {
	bindings map[string]string
}

func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]string)}
}

// Bind points credential at connId, replacing any earlier connection.
func (r *Registry) Bind(credential, connId string) {
	r.bindings[credential] = connId
}

func (r *Registry) Unbind(credential string) {
	delete(r.bindings, credential)
}

// UnbindIfBound removes the binding only while it still points at connId.
func (r *Registry) UnbindIfBound(credential, connId string) bool {
	if current, ok := r.bindings[credential]; ok && current == connId {
		delete(r.bindings, credential)
		return true
	}
	return false
}

func (r *Registry) Lookup(credential string) (string, bool) {
	connId, ok := r.bindings[credential]
	return connId, ok
}

func (r *Registry) All() []Binding {
	out := make([]Binding, 0, len(r.bindings))
	for credential, connId := range r.bindings {
		out = append(out, Binding{Credential: credential, ConnId: connId})
	}
	slices.SortFunc(out, func(a, b Binding) int {
		return cmp.Compare(a.ConnId, b.ConnId)
	})
	return out
}

func (r *Registry) Clear() {
	clear(r.bindings)
}

func (r *Registry) Len() int {
	return len(r.bindings)
}
