// Package memory holds in-memory repository implementations with the
// same semantics as internal/postgres. They back the "memory" storage
// driver and the concurrency tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawmart/chat-service/internal/domain"
)

type RoomStore struct {
	mu         sync.RWMutex
	rooms      map[string]*domain.Room
	byCustomer map[string]string // customerID -> roomID
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:      make(map[string]*domain.Room),
		byCustomer: make(map[string]string),
	}
}

func (s *RoomStore) GetOrCreate(_ context.Context, customerID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byCustomer[customerID]; ok {
		return copyRoom(s.rooms[id]), nil
	}
	room := &domain.Room{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	s.byCustomer[customerID] = room.ID
	return copyRoom(room), nil
}

func (s *RoomStore) Get(_ context.Context, id string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return copyRoom(room), nil
}

func (s *RoomStore) ListUnassigned(_ context.Context) ([]domain.Room, error) {
	return s.filter(func(r *domain.Room) bool { return r.StaffID == nil }), nil
}

func (s *RoomStore) ListAssignedTo(_ context.Context, staffID string) ([]domain.Room, error) {
	return s.filter(func(r *domain.Room) bool {
		return r.StaffID != nil && *r.StaffID == staffID
	}), nil
}

func (s *RoomStore) SetStaff(_ context.Context, roomID, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.StaffID = &staffID
	return nil
}

func (s *RoomStore) filter(keep func(*domain.Room) bool) []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Room
	for _, r := range s.rooms {
		if keep(r) {
			out = append(out, *copyRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func copyRoom(r *domain.Room) *domain.Room {
	cp := *r
	if r.StaffID != nil {
		v := *r.StaffID
		cp.StaffID = &v
	}
	return &cp
}
