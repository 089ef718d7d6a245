package mesh

// LinkTable maps remote ids to links, at most one per remote. It keeps
// insertion order so listings are stable.
type LinkTable struct {
	links map[string]*Link
	order []string
}

func NewLinkTable() *LinkTable {
	return &LinkTable{links: make(map[string]*Link)}
}

// Get returns the link for remoteID.
func (t *LinkTable) Get(remoteID string) (*Link, bool) {
	l, ok := t.links[remoteID]
	return l, ok
}

// Put registers l. It fails with ErrLinkExists if the remote already has one.
func (t *LinkTable) Put(l *Link) error {
	if _, ok := t.links[l.remoteID]; ok {
		return ErrLinkExists
	}
	t.links[l.remoteID] = l
	t.order = append(t.order, l.remoteID)
	return nil
}

// Remove deletes the entry for remoteID and returns it.
func (t *LinkTable) Remove(remoteID string) (*Link, bool) {
	l, ok := t.links[remoteID]
	if !ok {
		return nil, false
	}
	delete(t.links, remoteID)
	for i, id := range t.order {
		if id == remoteID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return l, true
}

// Current reports whether l is the link registered for its remote.
// Events from replaced or removed links fail this check.
func (t *LinkTable) Current(l *Link) bool {
	cur, ok := t.links[l.remoteID]
	return ok && cur == l
}

func (t *LinkTable) Len() int {
	return len(t.order)
}

// All returns every link in insertion order.
func (t *LinkTable) All() []*Link {
	out := make([]*Link, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.links[id])
	}
	return out
}

// Linked returns the links whose transport is open.
func (t *LinkTable) Linked() []*Link {
	var out []*Link
	for _, id := range t.order {
		if l := t.links[id]; l.state == Linked {
			out = append(out, l)
		}
	}
	return out
}
