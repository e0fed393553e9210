package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawmart/chat-service/internal/auth"
	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/memory"
	"github.com/pawmart/chat-service/internal/service"
	httpx "github.com/pawmart/chat-service/internal/transport/http"
	"github.com/pawmart/chat-service/internal/transport/ws"
)

const testSecret = "handler-secret"

type apiFixture struct {
	srv        *httptest.Server
	roomSvc    *service.RoomService
	sessionSvc *service.SessionService
	messageSvc *service.MessageService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	rooms := memory.NewRoomStore()
	roomSvc := service.NewRoomService(rooms)
	sessionSvc := service.NewSessionService(memory.NewSessionStore(), rooms)
	messageSvc := service.NewMessageService(memory.NewMessageStore(), rooms, 4000, 50)

	verifier := auth.NewVerifier(testSecret, "")
	wsServer := ws.NewServer(ws.NewHub(), verifier, roomSvc, sessionSvc, messageSvc)
	handler := httpx.NewHandler(roomSvc, sessionSvc, messageSvc, wsServer)

	srv := httptest.NewServer(httpx.NewRouter(handler, verifier, wsServer))
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, roomSvc: roomSvc, sessionSvc: sessionSvc, messageSvc: messageSvc}
}

func token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func TestAPI_RequiresAuth(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/rooms", "bad-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_CreateRoomIsIdempotentPerCustomer(t *testing.T) {
	f := newAPIFixture(t)
	cust := token(t, "cust-1", domain.RoleCustomer)

	resp, body := f.do(t, http.MethodPost, "/api/rooms", cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first httpx.RoomItem
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "cust-1", first.CustomerID)

	resp, body = f.do(t, http.MethodPost, "/api/rooms", cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second httpx.RoomItem
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, first.ID, second.ID)
}

func TestAPI_StaffCannotCreateRoom(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/rooms", token(t, "staff-a", domain.RoleStaff), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_RoomAccessControl(t *testing.T) {
	f := newAPIFixture(t)

	room, err := f.roomSvc.GetOrCreateCustomerRoom(context.Background(), "cust-1")
	require.NoError(t, err)

	// foreign customer
	resp, _ := f.do(t, http.MethodGet, "/api/rooms/"+room.ID, token(t, "cust-2", domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// staff can view any room
	resp, _ = f.do(t, http.MethodGet, "/api/rooms/"+room.ID, token(t, "staff-a", domain.RoleStaff), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// unknown room
	resp, _ = f.do(t, http.MethodGet, "/api/rooms/nope", token(t, "staff-a", domain.RoleStaff), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	cust := token(t, "cust-1", domain.RoleCustomer)
	staff := token(t, "staff-a", domain.RoleStaff)

	room, err := f.roomSvc.GetOrCreateCustomerRoom(context.Background(), "cust-1")
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, "/api/sessions", cust, httpx.CreateSessionRequest{RoomID: room.ID, Title: "Khám da liễu"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess httpx.SessionItem
	require.NoError(t, json.Unmarshal(body, &sess))
	assert.Equal(t, "open", sess.Status)

	// a second active session for the room is rejected
	resp, _ = f.do(t, http.MethodPost, "/api/sessions", cust, httpx.CreateSessionRequest{RoomID: room.ID, Title: "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// sits in the pick-up queue
	resp, body = f.do(t, http.MethodGet, "/api/sessions/unassigned", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queue httpx.SessionsListResponse
	require.NoError(t, json.Unmarshal(body, &queue))
	require.Len(t, queue.Items, 1)
	assert.Equal(t, sess.ID, queue.Items[0].ID)

	// claim
	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/claim", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claimed httpx.SessionItem
	require.NoError(t, json.Unmarshal(body, &claimed))
	assert.Equal(t, "in_progress", claimed.Status)
	require.NotNil(t, claimed.StaffID)
	assert.Equal(t, "staff-a", *claimed.StaffID)

	// losing staff gets a conflict
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/claim", token(t, "staff-b", domain.RoleStaff), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// end twice, same terminal state both times
	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/end", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ended httpx.SessionItem
	require.NoError(t, json.Unmarshal(body, &ended))
	assert.Equal(t, "ended", ended.Status)
	require.NotNil(t, ended.EndedAt)

	resp, body = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/end", staff, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var again httpx.SessionItem
	require.NoError(t, json.Unmarshal(body, &again))
	require.NotNil(t, again.EndedAt)
	assert.True(t, ended.EndedAt.Equal(*again.EndedAt))
}

func TestAPI_ClaimRaceSingleWinner(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)
	sess, err := f.sessionSvc.Create(ctx, room.ID, "cust-1", "race")
	require.NoError(t, err)

	const racers = 10
	codes := make([]int, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			staff := token(t, fmt.Sprintf("staff-%02d", n), domain.RoleStaff)
			resp, _ := f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/claim", staff, nil)
			codes[n] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			wins++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestAPI_MessagesPagination(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	cust := token(t, "cust-1", domain.RoleCustomer)

	room, err := f.roomSvc.GetOrCreateCustomerRoom(ctx, "cust-1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.messageSvc.Append(ctx, room.ID, "cust-1", domain.RoleCustomer, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	resp, body := f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=3", cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page httpx.MessagesResponse
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 3)
	// newest first
	assert.Equal(t, "msg 4", page.Items[0].Content)
	require.NotEmpty(t, page.NextCursor)

	resp, body = f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=3&cursor="+page.NextCursor, cust, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var older httpx.MessagesResponse
	require.NoError(t, json.Unmarshal(body, &older))
	require.Len(t, older.Items, 2)
	assert.Equal(t, "msg 1", older.Items[0].Content)
	assert.Equal(t, "msg 0", older.Items[1].Content)

	// garbage cursor
	resp, _ = f.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/messages?cursor=%24%24%24", cust, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
