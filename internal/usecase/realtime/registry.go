package realtime

import (
	"sync"

	ucerrors "github.com/johnquangdev/meeting-transcriber/internal/usecase/errors"
)

// SessionRegistry indexes live sessions by id, meeting and owner.
// It is owned by one Manager and emptied by its Shutdown.
type SessionRegistry struct {
	mu        sync.RWMutex
	byID      map[string]*session
	byMeeting map[string]*session
	byOwner   map[string]map[string]*session
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byID:      make(map[string]*session),
		byMeeting: make(map[string]*session),
		byOwner:   make(map[string]map[string]*session),
	}
}

// reserve claims the meeting for s
func (r *SessionRegistry) reserve(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.byMeeting[s.meetingID]; busy {
		return ucerrors.ErrSessionAlreadyActive
	}
	r.byID[s.id] = s
	r.byMeeting[s.meetingID] = s
	if s.ownerID != "" {
		owned := r.byOwner[s.ownerID]
		if owned == nil {
			owned = make(map[string]*session)
			r.byOwner[s.ownerID] = owned
		}
		owned[s.id] = s
	}
	return nil
}

func (r *SessionRegistry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byID[s.id]; !ok || cur != s {
		return
	}
	delete(r.byID, s.id)
	if r.byMeeting[s.meetingID] == s {
		delete(r.byMeeting, s.meetingID)
	}
	if owned := r.byOwner[s.ownerID]; owned != nil {
		delete(owned, s.id)
		if len(owned) == 0 {
			delete(r.byOwner, s.ownerID)
		}
	}
}

func (r *SessionRegistry) get(id string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *SessionRegistry) byMeetingID(meetingID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byMeeting[meetingID]
	return s, ok
}

func (r *SessionRegistry) ownedBy(ownerID string) []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.byOwner[ownerID]))
	for _, s := range r.byOwner[ownerID] {
		out = append(out, s)
	}
	return out
}

func (r *SessionRegistry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
