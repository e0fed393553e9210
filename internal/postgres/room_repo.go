package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/chat-service/internal/domain"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetOrCreate relies on the unique index on customer_id: the insert is
// a no-op when the room exists, and the follow-up select always sees
// exactly one row, even under concurrent first requests.
func (r *RoomRepository) GetOrCreate(ctx context.Context, customerID string) (*domain.Room, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rooms (customer_id)
		VALUES ($1)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID)
	if err != nil {
		return nil, err
	}

	var rm domain.Room
	err = r.db.QueryRow(ctx, `
		SELECT id, customer_id, staff_id, created_at
		FROM rooms WHERE customer_id = $1
	`, customerID).Scan(&rm.ID, &rm.CustomerID, &rm.StaffID, &rm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	var rm domain.Room
	err := r.db.QueryRow(ctx, `
		SELECT id, customer_id, staff_id, created_at
		FROM rooms WHERE id = $1
	`, id).Scan(&rm.ID, &rm.CustomerID, &rm.StaffID, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (r *RoomRepository) ListUnassigned(ctx context.Context) ([]domain.Room, error) {
	return r.list(ctx, `
		SELECT id, customer_id, staff_id, created_at
		FROM rooms WHERE staff_id IS NULL
		ORDER BY created_at DESC, id DESC
	`)
}

func (r *RoomRepository) ListAssignedTo(ctx context.Context, staffID string) ([]domain.Room, error) {
	return r.list(ctx, `
		SELECT id, customer_id, staff_id, created_at
		FROM rooms WHERE staff_id = $1
		ORDER BY created_at DESC, id DESC
	`, staffID)
}

func (r *RoomRepository) SetStaff(ctx context.Context, roomID, staffID string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE rooms SET staff_id = $2 WHERE id = $1`, roomID, staffID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) list(ctx context.Context, query string, args ...any) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.CustomerID, &rm.StaffID, &rm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}
