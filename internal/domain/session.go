package domain

import "time"

type SessionStatus string

const (
	SessionOpen       SessionStatus = "open"
	SessionInProgress SessionStatus = "in_progress"
	SessionEnded      SessionStatus = "ended"
)

// Session is one bounded consultation inside a room.
// open -> in_progress happens exactly once, when a staff member wins the
// claim; ended is terminal. StaffID never changes once set.
type Session struct {
	ID         string        `db:"id"`
	RoomID     string        `db:"room_id"`
	CustomerID string        `db:"customer_id"`
	StaffID    *string       `db:"staff_id"`
	Title      string        `db:"title"`
	Status     SessionStatus `db:"status"`
	StartedAt  time.Time     `db:"started_at"`
	EndedAt    *time.Time    `db:"ended_at"`
}

func (s *Session) Active() bool {
	return s.Status != SessionEnded
}

// CanEnd reports whether userID may close the session: the assigned
// staff member or the room's customer.
func (s *Session) CanEnd(userID string) bool {
	if userID == s.CustomerID {
		return true
	}
	return s.StaffID != nil && *s.StaffID == userID
}
