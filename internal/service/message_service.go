package service

import (
	"context"
	"strings"

	"github.com/pawmart/chat-service/internal/domain"
)

type MessageService struct {
	messages MessageRepository
	rooms    RoomRepository

	maxLen   int
	pageSize int
}

func NewMessageService(messages MessageRepository, rooms RoomRepository, maxLen, pageSize int) *MessageService {
	if maxLen <= 0 {
		maxLen = 4000
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageService{messages: messages, rooms: rooms, maxLen: maxLen, pageSize: pageSize}
}

// Append validates and stores a message. Messages persist regardless
// of session state: a room accepts them before any session exists and
// after every session has ended.
func (s *MessageService) Append(ctx context.Context, roomID, senderID string, role domain.Role, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > s.maxLen {
		return nil, domain.ErrInvalidContent
	}
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, err
	}

	m := &domain.Message{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderRole: role,
		Content:    content,
	}
	if err := s.messages.Append(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// History pages the room's messages newest first. Two callers asking
// for the same page get identical results absent concurrent appends.
func (s *MessageService) History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 || limit > s.pageSize*2 {
		limit = s.pageSize
	}
	return s.messages.History(ctx, roomID, cursor, limit)
}

func (s *MessageService) PageSize() int { return s.pageSize }
