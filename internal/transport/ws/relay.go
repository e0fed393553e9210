package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const relayChannel = "chat:events"

// Relay carries room events over redis pub/sub so fan-out works when
// several server processes hold connections to the same room. Claim
// and ordering correctness live in the store; the relay only moves
// already-ordered events. Per-room publish order is preserved because
// publishes happen under the room's ordering point and the channel is
// FIFO.
type Relay struct {
	rdb *redis.Client
	hub *Hub
}

func NewRelay(rdb *redis.Client, hub *Hub) *Relay {
	return &Relay{rdb: rdb, hub: hub}
}

type relayEnvelope struct {
	RoomID  string          `json:"room_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (r *Relay) Publish(ctx context.Context, roomID string, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(relayEnvelope{RoomID: roomID, Type: ev.Type, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel, data).Err()
}

// Run consumes the relay channel and fans events out to locally bound
// connections until ctx is cancelled. Runs in its own goroutine.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("relay: bad envelope", "err", err)
				continue
			}
			r.hub.Broadcast(env.RoomID, env.decodeEvent())
		}
	}
}

// decodeEvent rebuilds typed payloads where the hub needs them; the
// new_message seq in particular drives per-connection deduplication.
func (env relayEnvelope) decodeEvent() Event {
	ev := Event{Type: env.Type}
	switch env.Type {
	case TypeNewMessage:
		var p MessageItem
		if json.Unmarshal(env.Payload, &p) == nil {
			ev.Payload = p
			return ev
		}
	case TypeSessionJoined:
		var p SessionJoinedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			ev.Payload = p
			return ev
		}
	case TypeSessionEnded:
		var p SessionEndedPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			ev.Payload = p
			return ev
		}
	case TypeUserLeft:
		var p UserLeftPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			ev.Payload = p
			return ev
		}
	}
	ev.Payload = env.Payload
	return ev
}
