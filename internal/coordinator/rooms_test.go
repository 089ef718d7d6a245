package coordinator

import (
	"errors"
	"testing"
)

func TestRoomJoinIsIdempotent(t *testing.T) {
	rooms := NewRoomTable()
	rooms.Create("r1", "general", "a")

	if _, added, err := rooms.Join("r1", "b"); err != nil || !added {
		t.Fatalf("Join(b) = added %v, err %v", added, err)
	}
	if _, added, err := rooms.Join("r1", "b"); err != nil || added {
		t.Fatalf("second Join(b) = added %v, err %v", added, err)
	}

	room, _ := rooms.Get("r1")
	if len(room.Members) != 2 {
		t.Fatalf("members = %v, want [a b]", room.Members)
	}
}

func TestRoomUnknownReference(t *testing.T) {
	rooms := NewRoomTable()

	if _, _, err := rooms.Join("missing", "a"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join err = %v, want ErrRoomNotFound", err)
	}
	if _, err := rooms.Leave("missing", "a"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Leave err = %v, want ErrRoomNotFound", err)
	}
	if rooms.RemoveMember("a") {
		t.Fatal("RemoveMember on empty table reported a change")
	}
}

func TestRemoveMemberDeletesEmptyRooms(t *testing.T) {
	rooms := NewRoomTable()
	rooms.Create("solo", "solo", "a")
	rooms.Create("pair", "pair", "a")
	rooms.Join("pair", "b")

	if !rooms.RemoveMember("a") {
		t.Fatal("RemoveMember(a) = false, want true")
	}
	if rooms.Has("solo") {
		t.Fatal("empty room solo was not deleted")
	}

	snap := rooms.Snapshot()
	if len(snap) != 1 || snap[0].ID != "pair" {
		t.Fatalf("snapshot = %+v, want only pair", snap)
	}
	if len(snap[0].Members) != 1 || snap[0].Members[0] != "b" {
		t.Fatalf("members = %v, want [b]", snap[0].Members)
	}
}

func TestGenerateRoomIDAvoidsTakenIDs(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		id := generateRoomID(func(id string) bool { return seen[id] })
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}

	// Everything three words long is taken, forcing the numeric suffix.
	id := generateRoomID(func(id string) bool { return len(id) > 0 && countDashes(id) == 2 })
	if countDashes(id) != 3 {
		t.Fatalf("id = %q, want a suffixed id", id)
	}
}

func countDashes(s string) int {
	n := 0
	for _, r := range s {
		if r == '-' {
			n++
		}
	}
	return n
}
