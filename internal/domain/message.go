package domain

import "time"

// Message is immutable once appended. Seq is the per-room ordering key
// assigned by the store at append time; it is independent of wall-clock
// skew between senders. Messages belong to the room, not to a session.
type Message struct {
	Seq        int64     `db:"seq"`
	ID         string    `db:"id"`
	RoomID     string    `db:"room_id"`
	SenderID   string    `db:"sender_id"`
	SenderRole Role      `db:"sender_role"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}
