package ws

import (
	"sync"
)

// Conn is one live client connection as the hub sees it. Enqueue must
// not block; it reports false when the connection can no longer accept
// events (closed, or its outbound buffer is full).
type Conn interface {
	UserID() string
	Enqueue(ev Event) bool
	Close() error
}

// Hub tracks which connections are bound to which rooms and owns the
// per-room ordering point. Everything that must be observed in store
// order — history replay, append, fan-out — runs under the room's
// lock, while distinct rooms proceed in parallel. Bindings are pure
// in-memory state: dropping one never touches room, session or
// message data.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	mu sync.Mutex
	// set when the hub evicts the empty room; a waiter that locked a
	// stale pointer must re-fetch instead of binding to it
	dead  bool
	conns map[Conn]*binding
}

// binding remembers the highest seq included in the history snapshot
// replayed to this connection, so a message already in the snapshot is
// never delivered twice. Live messages never raise the boundary: fan-out
// can arrive out of seq order (a relay fallback, a second process) and a
// late lower-seq message still has to reach the client.
type binding struct {
	replaySeq int64
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) room(id string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[id]
	if !ok {
		r = &room{conns: make(map[Conn]*binding)}
		h.rooms[id] = r
	}
	return r
}

// lockRoom returns the room for id with its lock held, retrying when
// the fetched entry was evicted before the lock was acquired.
func (h *Hub) lockRoom(id string) *room {
	for {
		r := h.room(id)
		r.mu.Lock()
		if !r.dead {
			return r
		}
		r.mu.Unlock()
	}
}

// evictIfEmpty removes the room entry once its last binding is gone,
// so the map does not grow with every room ID ever joined.
func (h *Hub) evictIfEmpty(roomID string, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) == 0 && h.rooms[roomID] == r {
		r.dead = true
		delete(h.rooms, roomID)
	}
}

// Bind registers c in the room and runs replay under the room's
// ordering point. Events given to send reach only c; any append that
// races with the bind is serialized after it, so there is no gap and
// no duplicate between the last history message and the first live
// one. Re-binding an already bound connection is a no-op apart from
// the replay.
func (h *Hub) Bind(roomID string, c Conn, replay func(send func(Event)) error) error {
	r := h.lockRoom(roomID)

	b, ok := r.conns[c]
	if !ok {
		b = &binding{}
		r.conns[c] = b
	}
	var err error
	if replay != nil {
		if err = replay(func(ev Event) { deliverOne(c, b, ev) }); err != nil && !ok {
			delete(r.conns, c)
		}
	}
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if empty {
		h.evictIfEmpty(roomID, r)
	}
	return err
}

// Unbind removes c from the room; unbinding a connection that is not
// bound is not an error. Reports whether c was bound.
func (h *Hub) Unbind(roomID string, c Conn) bool {
	r := h.lockRoom(roomID)
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		h.evictIfEmpty(roomID, r)
		return false
	}
	delete(r.conns, c)
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if empty {
		h.evictIfEmpty(roomID, r)
	}
	return true
}

// UnbindAll drops c from every room and returns the rooms it was
// bound to. Called on disconnect: the implicit leave_room.
func (h *Hub) UnbindAll(c Conn) []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.rooms))
	rooms := make([]*room, 0, len(h.rooms))
	for id, r := range h.rooms {
		ids = append(ids, id)
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	var left []string
	for i, r := range rooms {
		r.mu.Lock()
		_, ok := r.conns[c]
		if ok {
			delete(r.conns, c)
			left = append(left, ids[i])
		}
		empty := len(r.conns) == 0
		r.mu.Unlock()

		if empty {
			h.evictIfEmpty(ids[i], r)
		}
	}
	return left
}

// Dispatch runs fn under the room's ordering point. Events passed to
// deliver inside fn reach every bound connection in call order, and no
// other dispatch, bind or broadcast for the room interleaves with fn.
// This is how append+broadcast stays a single ordered step.
func (h *Hub) Dispatch(roomID string, fn func(deliver func(Event)) error) error {
	r := h.lockRoom(roomID)
	err := fn(func(ev Event) { r.deliverLocked(ev) })
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if empty {
		h.evictIfEmpty(roomID, r)
	}
	return err
}

// Broadcast fans ev out to every connection bound to the room.
func (h *Hub) Broadcast(roomID string, ev Event) {
	r := h.lockRoom(roomID)
	r.deliverLocked(ev)
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if empty {
		h.evictIfEmpty(roomID, r)
	}
}

// BoundCount is used by tests and the stats endpoint.
func (h *Hub) BoundCount(roomID string) int {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *room) deliverLocked(ev Event) {
	for c, b := range r.conns {
		if !deliverOne(c, b, ev) {
			// slow or dead consumer: drop the binding, never the data
			delete(r.conns, c)
			_ = c.Close()
		}
	}
}

// deliverOne enqueues ev, suppressing messages the connection already
// received inside its history snapshot.
func deliverOne(c Conn, b *binding, ev Event) bool {
	switch p := ev.Payload.(type) {
	case MessageItem:
		if p.Seq <= b.replaySeq {
			return true
		}
	case RoomHistoryPayload:
		if n := len(p.Messages); n > 0 {
			if last := p.Messages[n-1].Seq; last > b.replaySeq {
				b.replaySeq = last
			}
		}
	}
	return c.Enqueue(ev)
}
