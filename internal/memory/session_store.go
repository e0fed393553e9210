package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pawmart/chat-service/internal/domain"
)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

// Create scans for a live session in the room under the store lock,
// mirroring the partial unique index the postgres repository uses.
func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.sessions {
		if cur.RoomID == sess.RoomID && cur.Active() {
			return domain.ErrSessionAlreadyActive
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return copySession(sess), nil
}

// Claim is a compare-and-set under the store lock: the check and the
// write are one critical section, so exactly one claimer wins.
func (s *SessionStore) Claim(_ context.Context, id, staffID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Status == domain.SessionEnded {
		return nil, domain.ErrSessionClosed
	}
	if sess.StaffID != nil || sess.Status != domain.SessionOpen {
		return nil, domain.ErrSessionAlreadyClaimed
	}
	sess.StaffID = &staffID
	sess.Status = domain.SessionInProgress
	return copySession(sess), nil
}

func (s *SessionStore) End(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Status != domain.SessionEnded {
		now := time.Now().UTC()
		sess.Status = domain.SessionEnded
		sess.EndedAt = &now
	}
	return copySession(sess), nil
}

func (s *SessionStore) ListOpen(_ context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Session
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionOpen {
			out = append(out, *copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	if s.StaffID != nil {
		v := *s.StaffID
		cp.StaffID = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		cp.EndedAt = &v
	}
	return &cp
}
