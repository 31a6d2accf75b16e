package realtime

import (
	"errors"
	"testing"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
)

func TestRegistryIndexes(t *testing.T) {
	r := NewSessionRegistry()
	a := newSession("a", StartRequest{MeetingID: "m1", OwnerID: "u1"}, entities.DefaultAudioFormat(), 1)
	b := newSession("b", StartRequest{MeetingID: "m2", OwnerID: "u1"}, entities.DefaultAudioFormat(), 1)
	dup := newSession("c", StartRequest{MeetingID: "m1", OwnerID: "u2"}, entities.DefaultAudioFormat(), 1)

	if err := r.reserve(a); err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	if err := r.reserve(b); err != nil {
		t.Fatalf("reserve b: %v", err)
	}
	if err := r.reserve(dup); !errors.Is(err, ucerrors.ErrSessionAlreadyActive) {
		t.Fatalf("expected ErrSessionAlreadyActive got %v", err)
	}
	if got := len(r.ownedBy("u1")); got != 2 {
		t.Fatalf("expected 2 sessions for u1 got %d", got)
	}
	if len(r.ownedBy("u2")) != 0 {
		t.Fatalf("rejected reservation must not be indexed")
	}

	r.remove(a)
	r.remove(a)
	if _, ok := r.get("a"); ok {
		t.Fatalf("a should be removed")
	}
	if _, ok := r.byMeetingID("m1"); ok {
		t.Fatalf("meeting m1 should be free")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session got %d", r.Len())
	}
}
