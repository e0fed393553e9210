package http

import (
	"time"

	"github.com/pawmart/chat-service/internal/domain"
)

type RoomItem struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	StaffID    *string   `json:"staff_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRoomItem(r domain.Room) RoomItem {
	return RoomItem{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		StaffID:    r.StaffID,
		CreatedAt:  r.CreatedAt,
	}
}

type RoomsListResponse struct {
	Items []RoomItem `json:"items"`
}

type SessionItem struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	CustomerID string     `json:"customer_id"`
	StaffID    *string    `json:"staff_id,omitempty"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

func toSessionItem(s domain.Session) SessionItem {
	return SessionItem{
		ID:         s.ID,
		RoomID:     s.RoomID,
		CustomerID: s.CustomerID,
		StaffID:    s.StaffID,
		Title:      s.Title,
		Status:     string(s.Status),
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
}

type SessionsListResponse struct {
	Items []SessionItem `json:"items"`
}

type CreateSessionRequest struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
}

type MessageItem struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageItem(m domain.Message) MessageItem {
	return MessageItem{
		Seq:        m.Seq,
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderRole: string(m.SenderRole),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

// MessagesResponse pages newest first; next_cursor fetches the older
// page.
type MessagesResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
