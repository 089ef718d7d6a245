package coordinator

import "github.com/BioHazard786/warpchat/internal/protocol"

// Roster maps participant ids to identities, preserving join order.
// It is owned by the Hub goroutine and is not safe for concurrent use.
type Roster struct {
	order []string
	byID  map[string]protocol.Identity
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]protocol.Identity)}
}

// Get returns the identity stored for id.
func (r *Roster) Get(id string) (protocol.Identity, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Upsert inserts or replaces an identity. Replacing keeps the original
// position in the join order. It reports whether a new entry was created.
func (r *Roster) Upsert(p protocol.Identity) bool {
	_, exists := r.byID[p.ID]
	r.byID[p.ID] = p
	if !exists {
		r.order = append(r.order, p.ID)
	}
	return !exists
}

// Remove deletes id and reports whether it was present.
func (r *Roster) Remove(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of identities in the roster.
func (r *Roster) Len() int {
	return len(r.order)
}

// Snapshot returns a copy of the roster in join order.
func (r *Roster) Snapshot() []protocol.Identity {
	out := make([]protocol.Identity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
