package service

import (
	"context"
	"fmt"

	"github.com/pawmart/chat-service/internal/domain"
)

type RoomService struct {
	rooms RoomRepository
}

func NewRoomService(rooms RoomRepository) *RoomService {
	return &RoomService{rooms: rooms}
}

// GetOrCreateCustomerRoom is idempotent: a customer has exactly one
// room, lazily created on the first support request.
func (s *RoomService) GetOrCreateCustomerRoom(ctx context.Context, customerID string) (*domain.Room, error) {
	room, err := s.rooms.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("rooms.GetOrCreate: %w", err)
	}
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	return s.rooms.Get(ctx, id)
}

// AuthorizeRoom resolves the room and checks the caller is a party to
// it. Returns domain.ErrRoomNotFound or domain.ErrForbidden.
func (s *RoomService) AuthorizeRoom(ctx context.Context, roomID string, ident domain.Identity) (*domain.Room, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.Party(ident) {
		return nil, domain.ErrForbidden
	}
	return room, nil
}

// ListRooms returns the rooms visible to the caller: customers see
// their own room, staff see the unassigned pool or the rooms bound to
// them depending on filter ("unassigned" | "mine").
func (s *RoomService) ListRooms(ctx context.Context, ident domain.Identity, filter string) ([]domain.Room, error) {
	if ident.Role == domain.RoleCustomer {
		room, err := s.rooms.GetOrCreate(ctx, ident.UserID)
		if err != nil {
			return nil, err
		}
		return []domain.Room{*room}, nil
	}
	if filter == "mine" {
		return s.rooms.ListAssignedTo(ctx, ident.UserID)
	}
	return s.rooms.ListUnassigned(ctx)
}
