package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pawmart/chat-service/internal/domain"
)

const maxTitleLen = 200

type SessionService struct {
	sessions SessionRepository
	rooms    RoomRepository
}

func NewSessionService(sessions SessionRepository, rooms RoomRepository) *SessionService {
	return &SessionService{sessions: sessions, rooms: rooms}
}

// Create opens a new consultation in the customer's room. Fails with
// domain.ErrSessionAlreadyActive while a previous session in the room
// has not ended.
func (s *SessionService) Create(ctx context.Context, roomID, customerID, title string) (*domain.Session, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CustomerID != customerID {
		return nil, domain.ErrForbidden
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = "Support request"
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		// cut on a rune boundary, never mid-character
		title = string([]rune(title)[:maxTitleLen])
	}

	sess := &domain.Session{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		CustomerID: room.CustomerID,
		Title:      title,
		Status:     domain.SessionOpen,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Claim assigns the session to staffID. The single-winner guarantee
// comes from the repository's conditional update, never from a lookup
// done here.
func (s *SessionService) Claim(ctx context.Context, sessionID, staffID string) (*domain.Session, error) {
	sess, err := s.sessions.Claim(ctx, sessionID, staffID)
	if err != nil {
		return nil, err
	}
	// Bind the winner to the room so staff views list it under "mine".
	if err := s.rooms.SetStaff(ctx, sess.RoomID, staffID); err != nil {
		slog.Warn("bind staff to room failed", "room", sess.RoomID, "staff", staffID, "err", err)
	}
	return sess, nil
}

// End closes the session. Allowed for the assigned staff member or the
// room's customer; repeated calls return the same terminal state.
func (s *SessionService) End(ctx context.Context, sessionID, byUserID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.CanEnd(byUserID) {
		return nil, domain.ErrForbidden
	}
	return s.sessions.End(ctx, sessionID)
}

// ListUnassigned feeds the staff pick-up queue. The queue is polled and
// may be stale; claim correctness does not depend on it.
func (s *SessionService) ListUnassigned(ctx context.Context) ([]domain.Session, error) {
	return s.sessions.ListOpen(ctx)
}

// ExpireIdle ends open, unclaimed sessions started before the cutoff.
// Used by the optional idle sweeper; returns how many were ended.
func (s *SessionService) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	open, err := s.sessions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("sessions.ListOpen: %w", err)
	}
	ended := 0
	for _, sess := range open {
		if !sess.StartedAt.Before(cutoff) {
			continue
		}
		if _, err := s.sessions.End(ctx, sess.ID); err != nil {
			slog.Warn("expire idle session failed", "session", sess.ID, "err", err)
			continue
		}
		ended++
	}
	return ended, nil
}

// RunIdleSweeper ends idle open sessions every interval until ctx is
// cancelled. A zero timeout disables the sweep entirely.
func (s *SessionService) RunIdleSweeper(ctx context.Context, timeout, interval time.Duration) {
	if timeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireIdle(ctx, time.Now().Add(-timeout))
			if err != nil {
				slog.Error("idle sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("expired idle sessions", "count", n)
			}
		}
	}
}
