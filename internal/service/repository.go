package service

import (
	"context"

	"github.com/pawmart/chat-service/internal/domain"
)

// Storage contracts the services depend on. Implemented by
// internal/postgres for production and internal/memory for the dev
// driver and tests.

type RoomRepository interface {
	// GetOrCreate returns the customer's room, creating it on first use.
	// Concurrent calls for the same customer yield the same room.
	GetOrCreate(ctx context.Context, customerID string) (*domain.Room, error)
	Get(ctx context.Context, id string) (*domain.Room, error)
	ListUnassigned(ctx context.Context) ([]domain.Room, error)
	ListAssignedTo(ctx context.Context, staffID string) ([]domain.Room, error)
	// SetStaff binds the staff member currently attending the room.
	SetStaff(ctx context.Context, roomID, staffID string) error
}

type SessionRepository interface {
	// Create persists a new open session. Returns
	// domain.ErrSessionAlreadyActive if the room already has a non-ended
	// session; the implementation must enforce this atomically, not by a
	// separate lookup.
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Claim atomically assigns staffID and moves the session to
	// in_progress, only if it is still open and unassigned. Exactly one
	// of N concurrent claimers wins; losers get
	// domain.ErrSessionAlreadyClaimed (or ErrSessionClosed when ended).
	Claim(ctx context.Context, id, staffID string) (*domain.Session, error)
	// End marks the session ended. Ending an already ended session
	// returns the existing terminal state, not an error.
	End(ctx context.Context, id string) (*domain.Session, error)
	ListOpen(ctx context.Context) ([]domain.Session, error)
}

type MessageRepository interface {
	// Append stores the message and fills Seq, ID and CreatedAt. Seq is
	// strictly increasing within the room.
	Append(ctx context.Context, m *domain.Message) error
	// History returns up to limit messages, newest first, strictly
	// before the cursor position; next is the cursor for the following
	// (older) page, empty when exhausted.
	History(ctx context.Context, roomID, cursor string, limit int) (msgs []domain.Message, next string, err error)
}
