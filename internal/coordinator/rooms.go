package coordinator

import (
	"errors"
	"slices"
	"time"

	"github.com/BioHazard786/warpchat/internal/protocol"
)

var ErrRoomNotFound = errors.New("room not found")

// Room is a named group of participants. Rooms are bookkeeping only and
// play no part in link negotiation.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	Name string

	// CreatorID is the participant who created the room.
	CreatorID string

	// Members holds participant ids in join order.
	Members []string

	CreatedAt time.Time
}

func (r *Room) info() protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:        r.ID,
		Name:      r.Name,
		CreatorID: r.CreatorID,
		Members:   slices.Clone(r.Members),
	}
}

// RoomTable stores rooms in creation order. Owned by the Hub goroutine.
type RoomTable struct {
	order []string
	rooms map[string]*Room
	now   func() time.Time
}

func NewRoomTable() *RoomTable {
	return &RoomTable{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// Has reports whether a room with id exists.
func (t *RoomTable) Has(id string) bool {
	_, ok := t.rooms[id]
	return ok
}

func (t *RoomTable) Get(id string) (*Room, bool) {
	r, ok := t.rooms[id]
	return r, ok
}

// Create adds a room with the creator as its first member.
func (t *RoomTable) Create(id, name, creatorID string) *Room {
	room := &Room{
		ID:        id,
		Name:      name,
		CreatorID: creatorID,
		Members:   []string{creatorID},
		CreatedAt: t.now(),
	}
	t.rooms[id] = room
	t.order = append(t.order, id)
	return room
}

// Join adds memberID to the room. Joining twice is a no-op; added reports
// whether the member was new.
func (t *RoomTable) Join(roomID, memberID string) (room *Room, added bool, err error) {
	room, ok := t.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	if slices.Contains(room.Members, memberID) {
		return room, false, nil
	}
	room.Members = append(room.Members, memberID)
	return room, true, nil
}

// Leave removes memberID from one room, deleting the room if it becomes
// empty. changed reports whether anything was modified.
func (t *RoomTable) Leave(roomID, memberID string) (changed bool, err error) {
	room, ok := t.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	return t.removeFrom(room, memberID), nil
}

// RemoveMember drops memberID from every room and deletes rooms left empty.
func (t *RoomTable) RemoveMember(memberID string) bool {
	changed := false
	for _, id := range slices.Clone(t.order) {
		if t.removeFrom(t.rooms[id], memberID) {
			changed = true
		}
	}
	return changed
}

func (t *RoomTable) removeFrom(room *Room, memberID string) bool {
	i := slices.Index(room.Members, memberID)
	if i < 0 {
		return false
	}
	room.Members = slices.Delete(room.Members, i, i+1)
	if len(room.Members) == 0 {
		t.delete(room.ID)
	}
	return true
}

func (t *RoomTable) delete(id string) {
	delete(t.rooms, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// Snapshot returns the public view of all rooms in creation order.
func (t *RoomTable) Snapshot() []protocol.RoomInfo {
	out := make([]protocol.RoomInfo, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rooms[id].info())
	}
	return out
}
