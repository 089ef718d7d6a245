package mesh

import (
	"errors"
	"testing"
	"time"
)

func TestLinkTablePutRejectsDuplicates(t *testing.T) {
	table := NewLinkTable()
	first := newLink("b", "Bob", Initiator, time.Now())

	if err := table.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := table.Put(newLink("b", "Bob", Responder, time.Now())); !errors.Is(err, ErrLinkExists) {
		t.Fatalf("second Put = %v, want ErrLinkExists", err)
	}
	if got, _ := table.Get("b"); got != first {
		t.Fatal("duplicate Put replaced the existing link")
	}
}

func TestLinkTableCurrent(t *testing.T) {
	table := NewLinkTable()
	old := newLink("b", "Bob", Initiator, time.Now())
	table.Put(old)
	table.Remove("b")

	fresh := newLink("b", "Bob", Responder, time.Now())
	table.Put(fresh)

	if table.Current(old) {
		t.Fatal("removed link reported current")
	}
	if !table.Current(fresh) {
		t.Fatal("registered link not current")
	}
}

func TestLinkTableOrderAndLinked(t *testing.T) {
	table := NewLinkTable()
	for _, id := range []string{"c", "a", "b"} {
		table.Put(newLink(id, id, Initiator, time.Now()))
	}
	a, _ := table.Get("a")
	a.markLinked(time.Now())
	table.Remove("c")

	all := table.All()
	if len(all) != 2 || all[0].RemoteID() != "a" || all[1].RemoteID() != "b" {
		t.Fatalf("All() order wrong: %v", all)
	}
	linked := table.Linked()
	if len(linked) != 1 || linked[0] != a {
		t.Fatalf("Linked() = %v, want only a", linked)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
}

func TestLinkStateTransitions(t *testing.T) {
	l := newLink("b", "Bob", Responder, time.Now())

	if !l.markLinked(time.Now()) {
		t.Fatal("negotiating link refused to open")
	}
	if l.markLinked(time.Now()) {
		t.Fatal("linked link opened twice")
	}
	if !l.markClosed() || l.markClosed() {
		t.Fatal("close must succeed exactly once")
	}
	if l.markLinked(time.Now()) {
		t.Fatal("closed link reopened")
	}
}

func TestCodec(t *testing.T) {
	data, err := EncodeText("héllo 👋", time.UnixMilli(1700000000000))
	if err != nil {
		t.Fatalf("EncodeText: %v", err)
	}
	if got, err := DecodeText(data); err != nil || got != "héllo 👋" {
		t.Fatalf("DecodeText = %q, %v", got, err)
	}

	if got, err := DecodeText([]byte("plain")); err != nil || got != "plain" {
		t.Fatalf("raw text = %q, %v", got, err)
	}

	for _, bad := range [][]byte{nil, {0xff, 0xfe, 0xfd}} {
		if _, err := DecodeText(bad); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("DecodeText(%v) = %v, want ErrInvalidMessage", bad, err)
		}
	}
}

func TestLinkErrorUnwraps(t *testing.T) {
	err := NewPeerError("connect to", "Bob", ErrLinkExists)
	if !errors.Is(err, ErrLinkExists) {
		t.Fatalf("%v does not unwrap to ErrLinkExists", err)
	}
	var le *LinkError
	if !errors.As(err, &le) || le.Peer != "Bob" {
		t.Fatalf("errors.As = %+v", le)
	}
}
