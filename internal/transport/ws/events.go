package ws

import (
	"time"

	"github.com/pawmart/chat-service/internal/domain"
)

// Event types on the persistent connection.
const (
	// client -> server
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeSendMessage = "send_message"
	TypeJoinSession = "join_session" // staff claim attempt

	// server -> client
	TypeJoinedRoom    = "joined_room"
	TypeRoomHistory   = "room_history"
	TypeNewMessage    = "new_message"
	TypeSessionJoined = "session_joined"
	TypeSessionEnded  = "session_ended"
	TypeUserLeft      = "user_left"
	TypeError         = "error"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
}

type JoinedRoomPayload struct {
	RoomID string `json:"room_id"`
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

// RoomHistoryPayload carries the initial backfill, oldest first.
type RoomHistoryPayload struct {
	RoomID     string        `json:"room_id"`
	Messages   []MessageItem `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type StaffItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type SessionJoinedPayload struct {
	SessionID string    `json:"session_id"`
	RoomID    string    `json:"room_id"`
	Staff     StaffItem `json:"staff"`
}

type SessionEndedPayload struct {
	SessionID string    `json:"session_id"`
	RoomID    string    `json:"room_id"`
	EndedAt   time.Time `json:"ended_at"`
}

type UserLeftPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorEvent(msg string) Event {
	return Event{Type: TypeError, Payload: ErrorPayload{Message: msg}}
}
