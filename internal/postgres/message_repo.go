package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/pagination"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append assigns seq from the bigserial at insert time, so ordering is
// decided by the store, not by sender clocks.
func (r *MessageRepository) Append(ctx context.Context, m *domain.Message) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, sender_role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, id, created_at
	`, m.RoomID, m.SenderID, m.SenderRole, m.Content).Scan(&m.Seq, &m.ID, &m.CreatedAt)
}

// History pages newest first with a keyset on seq. seq is unique per
// table so page boundaries are exact.
func (r *MessageRepository) History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	var beforeSeq any
	if cur != nil {
		beforeSeq = cur.Seq
	}

	rows, err := r.db.Query(ctx, `
		SELECT seq, id, room_id, sender_id, sender_role, content, created_at
		FROM messages
		WHERE room_id = $1
		  AND ($2::bigint IS NULL OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3
	`, roomID, beforeSeq, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.RoomID, &m.SenderID,
			&m.SenderRole, &m.Content, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		if c, e := pagination.EncodeCursor(pagination.Cursor{Seq: out[len(out)-1].Seq}); e == nil {
			next = c
		}
	}
	return out, next, nil
}
