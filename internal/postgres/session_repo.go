package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/chat-service/internal/domain"
)

const uniqueViolation = "23505"

const sessionColumns = `id, room_id, customer_id, staff_id, title, status, started_at, ended_at`

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create depends on the partial unique index
// sessions_one_active_per_room (room_id WHERE status <> 'ended'):
// a second non-ended session in the same room hits the unique
// violation no matter how the two inserts interleave.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, room_id, customer_id, title, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.RoomID, s.CustomerID, s.Title, s.Status, s.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrSessionAlreadyActive
		}
		return err
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// Claim is the single conditional write the whole claim protocol rests
// on. When zero rows come back the session is re-read once, only to
// pick the right error for the loser.
func (r *SessionRepository) Claim(ctx context.Context, id, staffID string) (*domain.Session, error) {
	sess, err := r.scanOne(r.db.QueryRow(ctx, `
		UPDATE sessions
		SET staff_id = $2, status = $3
		WHERE id = $1 AND staff_id IS NULL AND status = $4
		RETURNING `+sessionColumns,
		id, staffID, domain.SessionInProgress, domain.SessionOpen))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	cur, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if cur.Status == domain.SessionEnded {
		return nil, domain.ErrSessionClosed
	}
	return nil, domain.ErrSessionAlreadyClaimed
}

// End is conditional the same way: the first caller flips the row, any
// later caller falls through to the terminal state already stored.
func (r *SessionRepository) End(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := r.scanOne(r.db.QueryRow(ctx, `
		UPDATE sessions
		SET status = $2, ended_at = now()
		WHERE id = $1 AND status <> $2
		RETURNING `+sessionColumns,
		id, domain.SessionEnded))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *SessionRepository) ListOpen(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE status = $1
		ORDER BY started_at ASC, id ASC
	`, domain.SessionOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.RoomID, &s.CustomerID, &s.StaffID,
			&s.Title, &s.Status, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) scanOne(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.RoomID, &s.CustomerID, &s.StaffID,
		&s.Title, &s.Status, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}
