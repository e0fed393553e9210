package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/memory"
	"github.com/pawmart/chat-service/internal/service"
)

func newMessageFixture(t *testing.T) (*service.MessageService, *service.SessionService, *domain.Room) {
	t.Helper()

	rooms := memory.NewRoomStore()
	roomSvc := service.NewRoomService(rooms)
	sessionSvc := service.NewSessionService(memory.NewSessionStore(), rooms)
	messageSvc := service.NewMessageService(memory.NewMessageStore(), rooms, 100, 10)

	room, err := roomSvc.GetOrCreateCustomerRoom(context.Background(), "cust-1")
	require.NoError(t, err)
	return messageSvc, sessionSvc, room
}

func TestAppend_Validation(t *testing.T) {
	svc, _, room := newMessageFixture(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidContent)

	_, err = svc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, strings.Repeat("x", 101))
	assert.ErrorIs(t, err, domain.ErrInvalidContent)

	_, err = svc.Append(ctx, "missing", "cust-1", domain.RoleCustomer, "hello")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	msg, err := svc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.NotZero(t, msg.Seq)
	assert.NotEmpty(t, msg.ID)
}

func TestAppend_SurvivesSessionLifecycle(t *testing.T) {
	msgSvc, sessSvc, room := newMessageFixture(t)
	ctx := context.Background()

	// message lands before any session exists
	early, err := msgSvc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "Xin chào")
	require.NoError(t, err)

	sess, err := sessSvc.Create(ctx, room.ID, "cust-1", "Tư vấn")
	require.NoError(t, err)
	_, err = sessSvc.Claim(ctx, sess.ID, "staff-a")
	require.NoError(t, err)

	during, err := msgSvc.Append(ctx, room.ID, "staff-a", domain.RoleStaff, "Chào bạn")
	require.NoError(t, err)

	_, err = sessSvc.End(ctx, sess.ID, "staff-a")
	require.NoError(t, err)

	after, err := msgSvc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "Cảm ơn")
	require.NoError(t, err)

	// all three retrievable after the session ended, in append order
	msgs, next, err := msgSvc.History(ctx, room.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, msgs, 3)
	// newest first
	assert.Equal(t, after.Seq, msgs[0].Seq)
	assert.Equal(t, during.Seq, msgs[1].Seq)
	assert.Equal(t, early.Seq, msgs[2].Seq)
}

func TestHistory_ReplayDeterminism(t *testing.T) {
	svc, _, room := newMessageFixture(t)
	ctx := context.Background()

	for _, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		_, err := svc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, text)
		require.NoError(t, err)
	}

	first, next1, err := svc.History(ctx, room.ID, "", 3)
	require.NoError(t, err)
	second, next2, err := svc.History(ctx, room.ID, "", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, next1, next2)
}
