package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/pagination"
)

type MessageStore struct {
	mu      sync.Mutex
	nextSeq int64
	byRoom  map[string][]domain.Message // ascending seq
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byRoom: make(map[string][]domain.Message)}
}

func (s *MessageStore) Append(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	m.Seq = s.nextSeq
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	s.byRoom[m.RoomID] = append(s.byRoom[m.RoomID], *m)
	return nil
}

// History walks the room's log backwards from the cursor position,
// using the shared keyset cursor codec.
func (s *MessageStore) History(_ context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.byRoom[roomID]
	i := len(log) - 1
	if cur != nil {
		// log is ascending by seq; find the last entry before the cursor.
		for i >= 0 && log[i].Seq >= cur.Seq {
			i--
		}
	}

	var out []domain.Message
	for ; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}

	var next string
	if len(out) == limit {
		if c, e := pagination.EncodeCursor(pagination.Cursor{Seq: out[len(out)-1].Seq}); e == nil {
			next = c
		}
	}
	return out, next, nil
}
