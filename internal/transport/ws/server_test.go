package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawmart/chat-service/internal/auth"
	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/memory"
	"github.com/pawmart/chat-service/internal/service"
	"github.com/pawmart/chat-service/internal/transport/ws"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string, role domain.Role) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"name": strings.ToUpper(userID),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type wsFixture struct {
	srv        *httptest.Server
	roomSvc    *service.RoomService
	sessionSvc *service.SessionService
	messageSvc *service.MessageService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	rooms := memory.NewRoomStore()
	roomSvc := service.NewRoomService(rooms)
	sessionSvc := service.NewSessionService(memory.NewSessionStore(), rooms)
	messageSvc := service.NewMessageService(memory.NewMessageStore(), rooms, 4000, 50)

	hub := ws.NewHub()
	server := ws.NewServer(hub, auth.NewVerifier(testSecret, ""), roomSvc, sessionSvc, messageSvc)

	srv := httptest.NewServer(http.HandlerFunc(server.HandleWS))
	t.Cleanup(srv.Close)

	return &wsFixture{srv: srv, roomSvc: roomSvc, sessionSvc: sessionSvc, messageSvc: messageSvc}
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, ev ws.Event) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ev))
}

type rawEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readEvent(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev rawEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandleWS_RejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWS_JoinReplaysHistoryThenLive(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)
	m1, err := f.messageSvc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "m1")
	require.NoError(t, err)
	m2, err := f.messageSvc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, "m2")
	require.NoError(t, err)

	customer := f.dial(t, signToken(t, "cust-1", domain.RoleCustomer))
	send(t, customer, ws.Event{Type: ws.TypeJoinRoom, Payload: ws.JoinRoomPayload{RoomID: room.ID}})

	joined := readEvent(t, customer)
	assert.Equal(t, ws.TypeJoinedRoom, joined.Type)

	history := readEvent(t, customer)
	require.Equal(t, ws.TypeRoomHistory, history.Type)
	var hp ws.RoomHistoryPayload
	require.NoError(t, json.Unmarshal(history.Payload, &hp))
	require.Len(t, hp.Messages, 2)
	// oldest first on replay
	assert.Equal(t, m1.Seq, hp.Messages[0].Seq)
	assert.Equal(t, m2.Seq, hp.Messages[1].Seq)

	// live delivery resumes after the snapshot
	staff := f.dial(t, signToken(t, "staff-a", domain.RoleStaff))
	send(t, staff, ws.Event{Type: ws.TypeJoinRoom, Payload: ws.JoinRoomPayload{RoomID: room.ID}})
	readEvent(t, staff) // joined_room
	readEvent(t, staff) // room_history
	send(t, staff, ws.Event{Type: ws.TypeSendMessage, Payload: ws.SendMessagePayload{RoomID: room.ID, Content: "hello"}})

	live := readEvent(t, customer)
	require.Equal(t, ws.TypeNewMessage, live.Type)
	var item ws.MessageItem
	require.NoError(t, json.Unmarshal(live.Payload, &item))
	assert.Equal(t, "hello", item.Content)
	assert.Greater(t, item.Seq, m2.Seq)
}

func TestHandleWS_ForbiddenRoom(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)

	other := f.dial(t, signToken(t, "cust-2", domain.RoleCustomer))
	send(t, other, ws.Event{Type: ws.TypeJoinRoom, Payload: ws.JoinRoomPayload{RoomID: room.ID}})

	ev := readEvent(t, other)
	assert.Equal(t, ws.TypeError, ev.Type)
}

func TestHandleWS_ClaimRaceOverLiveProtocol(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)
	sess, err := f.sessionSvc.Create(ctx, room.ID, "cust-1", "Tư vấn")
	require.NoError(t, err)

	customer := f.dial(t, signToken(t, "cust-1", domain.RoleCustomer))
	send(t, customer, ws.Event{Type: ws.TypeJoinRoom, Payload: ws.JoinRoomPayload{RoomID: room.ID}})
	readEvent(t, customer) // joined_room
	readEvent(t, customer) // room_history

	winner := f.dial(t, signToken(t, "staff-a", domain.RoleStaff))
	send(t, winner, ws.Event{Type: ws.TypeJoinSession, Payload: ws.JoinSessionPayload{SessionID: sess.ID}})

	// the customer sees the claim on the live protocol
	ev := readEvent(t, customer)
	require.Equal(t, ws.TypeSessionJoined, ev.Type)
	var sj ws.SessionJoinedPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &sj))
	assert.Equal(t, sess.ID, sj.SessionID)
	assert.Equal(t, "staff-a", sj.Staff.ID)

	// the loser gets a plain error event, not a stale success
	loser := f.dial(t, signToken(t, "staff-b", domain.RoleStaff))
	send(t, loser, ws.Event{Type: ws.TypeJoinSession, Payload: ws.JoinSessionPayload{SessionID: sess.ID}})
	lev := readEvent(t, loser)
	require.Equal(t, ws.TypeError, lev.Type)
	var ep ws.ErrorPayload
	require.NoError(t, json.Unmarshal(lev.Payload, &ep))
	assert.Contains(t, ep.Message, "another agent")
}

func TestHandleWS_CustomerCannotClaim(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)
	sess, err := f.sessionSvc.Create(ctx, room.ID, "cust-1", "x")
	require.NoError(t, err)

	customer := f.dial(t, signToken(t, "cust-1", domain.RoleCustomer))
	send(t, customer, ws.Event{Type: ws.TypeJoinSession, Payload: ws.JoinSessionPayload{SessionID: sess.ID}})

	ev := readEvent(t, customer)
	assert.Equal(t, ws.TypeError, ev.Type)
}

func TestHandleWS_InvalidMessageRejected(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)

	customer := f.dial(t, signToken(t, "cust-1", domain.RoleCustomer))
	send(t, customer, ws.Event{Type: ws.TypeJoinRoom, Payload: ws.JoinRoomPayload{RoomID: room.ID}})
	readEvent(t, customer) // joined_room
	readEvent(t, customer) // room_history

	send(t, customer, ws.Event{Type: ws.TypeSendMessage, Payload: ws.SendMessagePayload{RoomID: room.ID, Content: "   "}})
	ev := readEvent(t, customer)
	assert.Equal(t, ws.TypeError, ev.Type)
}
