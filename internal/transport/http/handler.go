package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pawmart/chat-service/internal/domain"
	"github.com/pawmart/chat-service/internal/pagination"
	"github.com/pawmart/chat-service/internal/service"
	httpmw "github.com/pawmart/chat-service/internal/transport/http/middleware"
	"github.com/pawmart/chat-service/internal/transport/ws"
	"github.com/pawmart/chat-service/pkg/httputil"
)

// SessionNotifier pushes session lifecycle notices to connections
// bound to the room, so REST mutations are visible on the live
// protocol too. Implemented by the ws server.
type SessionNotifier interface {
	NotifySessionClaimed(ctx context.Context, sess *domain.Session, staff ws.StaffItem)
	NotifySessionEnded(ctx context.Context, sess *domain.Session)
}

type Handler struct {
	roomSvc    *service.RoomService
	sessionSvc *service.SessionService
	messageSvc *service.MessageService
	notifier   SessionNotifier
}

func NewHandler(room *service.RoomService, session *service.SessionService, message *service.MessageService, notifier SessionNotifier) *Handler {
	return &Handler{
		roomSvc:    room,
		sessionSvc: session,
		messageSvc: message,
		notifier:   notifier,
	}
}

// GET /api/rooms?filter=unassigned|mine
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())

	rooms, err := h.roomSvc.ListRooms(r.Context(), ident, r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, r, "ListRooms", err)
		return
	}
	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms))}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, toRoomItem(rm))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// POST /api/rooms — get-or-create the caller's room (customer only).
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())
	if ident.Role != domain.RoleCustomer {
		h.writeError(w, r, "CreateRoom", domain.ErrForbidden)
		return
	}

	room, err := h.roomSvc.GetOrCreateCustomerRoom(r.Context(), ident.UserID)
	if err != nil {
		h.writeError(w, r, "CreateRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, toRoomItem(*room))
}

// GET /api/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())

	room, err := h.roomSvc.AuthorizeRoom(r.Context(), chi.URLParam(r, "id"), ident)
	if err != nil {
		h.writeError(w, r, "GetRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, toRoomItem(*room))
}

// GET /api/rooms/{id}/messages?cursor=&limit=
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())

	room, err := h.roomSvc.AuthorizeRoom(r.Context(), chi.URLParam(r, "id"), ident)
	if err != nil {
		h.writeError(w, r, "GetRoomMessages", err)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	msgs, next, err := h.messageSvc.History(r.Context(), room.ID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			httputil.Error(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		h.writeError(w, r, "GetRoomMessages", err)
		return
	}

	resp := MessagesResponse{Items: make([]MessageItem, 0, len(msgs)), NextCursor: next}
	for _, m := range msgs {
		resp.Items = append(resp.Items, toMessageItem(m))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())
	if ident.Role != domain.RoleCustomer {
		h.writeError(w, r, "CreateSession", domain.ErrForbidden)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	sess, err := h.sessionSvc.Create(r.Context(), req.RoomID, ident.UserID, req.Title)
	if err != nil {
		h.writeError(w, r, "CreateSession", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toSessionItem(*sess))
}

// GET /api/sessions/unassigned — the staff pick-up queue. Polled;
// claim correctness never depends on its freshness.
func (h *Handler) ListUnassignedSessions(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())
	if ident.Role != domain.RoleStaff {
		h.writeError(w, r, "ListUnassignedSessions", domain.ErrForbidden)
		return
	}

	sessions, err := h.sessionSvc.ListUnassigned(r.Context())
	if err != nil {
		h.writeError(w, r, "ListUnassignedSessions", err)
		return
	}
	resp := SessionsListResponse{Items: make([]SessionItem, 0, len(sessions))}
	for _, s := range sessions {
		resp.Items = append(resp.Items, toSessionItem(s))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// POST /api/sessions/{id}/claim
func (h *Handler) ClaimSession(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())
	if ident.Role != domain.RoleStaff {
		h.writeError(w, r, "ClaimSession", domain.ErrForbidden)
		return
	}

	sess, err := h.sessionSvc.Claim(r.Context(), chi.URLParam(r, "id"), ident.UserID)
	if err != nil {
		h.writeError(w, r, "ClaimSession", err)
		return
	}
	if h.notifier != nil {
		h.notifier.NotifySessionClaimed(r.Context(), sess, ws.StaffItem{
			ID:          ident.UserID,
			DisplayName: ident.DisplayName,
			AvatarURL:   ident.AvatarURL,
		})
	}
	httputil.JSON(w, http.StatusOK, toSessionItem(*sess))
}

// POST /api/sessions/{id}/end — idempotent: a retried end returns the
// same terminal state with 200.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	ident, _ := httpmw.IdentityFromCtx(r.Context())

	sess, err := h.sessionSvc.End(r.Context(), chi.URLParam(r, "id"), ident.UserID)
	if err != nil {
		h.writeError(w, r, "EndSession", err)
		return
	}
	if h.notifier != nil {
		h.notifier.NotifySessionEnded(r.Context(), sess)
	}
	httputil.JSON(w, http.StatusOK, toSessionItem(*sess))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("handler."+op, "err", err)
		httputil.Error(w, status, "internal error")
		return
	}
	httputil.Error(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionAlreadyActive), errors.Is(err, domain.ErrSessionAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
