package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pawmart/chat-service/internal/domain"
)

type RoomSvc interface {
	AuthorizeRoom(ctx context.Context, roomID string, ident domain.Identity) (*domain.Room, error)
}

type SessionSvc interface {
	Claim(ctx context.Context, sessionID, staffID string) (*domain.Session, error)
}

type MessageSvc interface {
	Append(ctx context.Context, roomID, senderID string, role domain.Role, content string) (*domain.Message, error)
	History(ctx context.Context, roomID, cursor string, limit int) ([]domain.Message, string, error)
	PageSize() int
}

type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	verifier TokenVerifier

	roomSvc    RoomSvc
	sessionSvc SessionSvc
	messageSvc MessageSvc

	relay *Relay // nil when running single-process
}

func NewServer(hub *Hub, verifier TokenVerifier, room RoomSvc, session SessionSvc, message MessageSvc) *Server {
	return &Server{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		roomSvc:    room,
		sessionSvc: session,
		messageSvc: message,
	}
}

// SetRelay routes broadcasts through a cross-process relay instead of
// direct local fan-out.
func (s *Server) SetRelay(relay *Relay) { s.relay = relay }

// HandleWS upgrades GET /ws?access_token=... . The connection must
// authenticate before any room operation: no token, no upgrade.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(h[7:])
		}
	}
	ident, err := s.verifier.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "user", ident.UserID, "err", err)
		return
	}

	c := newWSConn(conn, ident)
	slog.Info("ws connected", "user", ident.UserID, "role", ident.Role)

	go c.writeLoop()
	s.readLoop(r.Context(), c)

	// Disconnect is the implicit leave_room for every bound room; the
	// authoritative room/session/message state is untouched and the
	// client recovers by re-joining.
	for _, roomID := range s.hub.UnbindAll(c) {
		s.broadcast(context.Background(), roomID, Event{
			Type:    TypeUserLeft,
			Payload: UserLeftPayload{RoomID: roomID, UserID: c.ident.UserID},
		})
	}
	_ = c.Close()
	slog.Info("ws disconnected", "user", ident.UserID)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "user", c.ident.UserID, "err", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.Enqueue(errorEvent("malformed event"))
			continue
		}
		s.handleEvent(ctx, c, ev)
	}
}

func (s *Server) handleEvent(ctx context.Context, c *wsConn, ev Event) {
	switch ev.Type {
	case TypeJoinRoom:
		var p JoinRoomPayload
		if decode(ev.Payload, &p) != nil || p.RoomID == "" {
			c.Enqueue(errorEvent("join_room requires room_id"))
			return
		}
		s.handleJoinRoom(ctx, c, p.RoomID)

	case TypeLeaveRoom:
		var p LeaveRoomPayload
		if decode(ev.Payload, &p) != nil || p.RoomID == "" {
			c.Enqueue(errorEvent("leave_room requires room_id"))
			return
		}
		if s.hub.Unbind(p.RoomID, c) {
			s.broadcast(ctx, p.RoomID, Event{
				Type:    TypeUserLeft,
				Payload: UserLeftPayload{RoomID: p.RoomID, UserID: c.ident.UserID},
			})
		}

	case TypeSendMessage:
		var p SendMessagePayload
		if decode(ev.Payload, &p) != nil || p.RoomID == "" {
			c.Enqueue(errorEvent("send_message requires room_id"))
			return
		}
		s.handleSendMessage(ctx, c, p)

	case TypeJoinSession:
		var p JoinSessionPayload
		if decode(ev.Payload, &p) != nil || p.SessionID == "" {
			c.Enqueue(errorEvent("join_session requires session_id"))
			return
		}
		s.handleJoinSession(ctx, c, p.SessionID)

	default:
		c.Enqueue(errorEvent("unknown event type"))
	}
}

// handleJoinRoom binds the connection and replays a history page to it
// under the room's ordering point, then live delivery resumes with no
// gap or duplicate in between.
func (s *Server) handleJoinRoom(ctx context.Context, c *wsConn, roomID string) {
	room, err := s.roomSvc.AuthorizeRoom(ctx, roomID, c.ident)
	if err != nil {
		c.Enqueue(errorEvent(clientMessage(err)))
		return
	}

	err = s.hub.Bind(room.ID, c, func(send func(Event)) error {
		msgs, next, err := s.messageSvc.History(ctx, room.ID, "", s.messageSvc.PageSize())
		if err != nil {
			return err
		}
		send(Event{Type: TypeJoinedRoom, Payload: JoinedRoomPayload{RoomID: room.ID}})

		// history comes newest first; replay oldest first
		items := make([]MessageItem, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			items = append(items, toMessageItem(msgs[i]))
		}
		send(Event{Type: TypeRoomHistory, Payload: RoomHistoryPayload{
			RoomID:     room.ID,
			Messages:   items,
			NextCursor: next,
		}})
		return nil
	})
	if err != nil {
		slog.Error("room history replay failed", "room", room.ID, "user", c.ident.UserID, "err", err)
		c.Enqueue(errorEvent("history unavailable"))
	}
}

func (s *Server) handleSendMessage(ctx context.Context, c *wsConn, p SendMessagePayload) {
	if _, err := s.roomSvc.AuthorizeRoom(ctx, p.RoomID, c.ident); err != nil {
		c.Enqueue(errorEvent(clientMessage(err)))
		return
	}

	// Append and fan-out are one step under the room lock: if the store
	// orders A before B, every bound connection observes A before B.
	err := s.hub.Dispatch(p.RoomID, func(deliver func(Event)) error {
		msg, err := s.messageSvc.Append(ctx, p.RoomID, c.ident.UserID, c.ident.Role, p.Content)
		if err != nil {
			return err
		}
		ev := Event{Type: TypeNewMessage, Payload: toMessageItem(*msg)}
		if s.relay != nil {
			if err := s.relay.Publish(ctx, p.RoomID, ev); err == nil {
				return nil
			}
			slog.Warn("relay publish failed, delivering locally", "room", p.RoomID)
		}
		deliver(ev)
		return nil
	})
	if err != nil {
		c.Enqueue(errorEvent(clientMessage(err)))
	}
}

func (s *Server) handleJoinSession(ctx context.Context, c *wsConn, sessionID string) {
	if c.ident.Role != domain.RoleStaff {
		c.Enqueue(errorEvent(clientMessage(domain.ErrForbidden)))
		return
	}
	sess, err := s.sessionSvc.Claim(ctx, sessionID, c.ident.UserID)
	if err != nil {
		// a lost race is a normal outcome, reported but not logged as a fault
		c.Enqueue(errorEvent(clientMessage(err)))
		return
	}
	s.NotifySessionClaimed(ctx, sess, StaffItem{
		ID:          c.ident.UserID,
		DisplayName: c.ident.DisplayName,
		AvatarURL:   c.ident.AvatarURL,
	})
}

// NotifySessionClaimed broadcasts session_joined to the session's
// room. Also called by the REST handler so claims made without a live
// connection still reach everyone bound to the room.
func (s *Server) NotifySessionClaimed(ctx context.Context, sess *domain.Session, staff StaffItem) {
	s.broadcast(ctx, sess.RoomID, Event{
		Type: TypeSessionJoined,
		Payload: SessionJoinedPayload{
			SessionID: sess.ID,
			RoomID:    sess.RoomID,
			Staff:     staff,
		},
	})
}

// NotifySessionEnded broadcasts session_ended to the session's room.
func (s *Server) NotifySessionEnded(ctx context.Context, sess *domain.Session) {
	endedAt := time.Now().UTC()
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}
	s.broadcast(ctx, sess.RoomID, Event{
		Type: TypeSessionEnded,
		Payload: SessionEndedPayload{
			SessionID: sess.ID,
			RoomID:    sess.RoomID,
			EndedAt:   endedAt,
		},
	})
}

func (s *Server) broadcast(ctx context.Context, roomID string, ev Event) {
	if s.relay != nil {
		if err := s.relay.Publish(ctx, roomID, ev); err == nil {
			return
		}
		slog.Warn("relay publish failed, delivering locally", "room", roomID, "type", ev.Type)
	}
	s.hub.Broadcast(roomID, ev)
}

// clientMessage maps an operation error to the error-event text. All
// rejected operations surface here; nothing is silently dropped or
// retried server-side.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return "not a party to this room"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, domain.ErrInvalidContent):
		return "message is empty or too long"
	case errors.Is(err, domain.ErrSessionAlreadyActive):
		return "a consultation is already active in this room"
	case errors.Is(err, domain.ErrSessionAlreadyClaimed):
		return "another agent picked this up"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session already ended"
	default:
		return "internal error"
	}
}

func decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}
