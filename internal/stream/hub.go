package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"backend-platego/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	redisBroadcastChannel = "stream:broadcast"
	liveLocationTTL       = 2 * time.Minute

	// Location frames above this rate are dropped per connection.
	locationRate  = rate.Limit(2)
	locationBurst = 5
)

// LocationSink receives validated live location updates for persistence.
type LocationSink interface {
	RecordVolunteerPosition(ctx context.Context, rescueID string, p geo.Point)
}

type Hub struct {
	id    string
	redis *redis.Client
	sink  LocationSink

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

type Client struct {
	UserID string
	Role   string
	Send   chan []byte

	hub     *Hub
	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]struct{}
}

// fanout is the cross-instance pub/sub frame; src lets an instance skip its
// own publications so no client sees an event twice.
type fanout struct {
	Src     string          `json:"src"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:    uuid.NewString(),
		redis: redisClient,
		rooms: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// SetLocationSink wires a persistence hook for live positions. Must be called
// before any client connects.
func (h *Hub) SetLocationSink(sink LocationSink) {
	h.sink = sink
}

func (h *Hub) Register(userID, role string) *Client {
	client := &Client{
		UserID:  userID,
		Role:    role,
		Send:    make(chan []byte, 64),
		hub:     h,
		limiter: rate.NewLimiter(locationRate, locationBurst),
		rooms:   map[string]struct{}{},
	}
	return client
}

func (h *Hub) Unregister(client *Client) {
	client.mu.Lock()
	joined := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		joined = append(joined, room)
	}
	client.rooms = map[string]struct{}{}
	client.mu.Unlock()

	h.mu.Lock()
	for _, room := range joined {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	// Closed under the same lock deliver sends under, so an in-flight
	// broadcast can never hit a closed channel.
	close(client.Send)
	h.mu.Unlock()
}

func (h *Hub) join(client *Client, room string) {
	client.mu.Lock()
	if _, already := client.rooms[room]; already {
		client.mu.Unlock()
		return
	}
	client.rooms[room] = struct{}{}
	client.mu.Unlock()

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[*Client]struct{}{}
	}
	h.rooms[room][client] = struct{}{}
	h.mu.Unlock()
}

// Broadcast delivers an event to every member of a room, locally and via
// redis to other instances.
func (h *Hub) Broadcast(room, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("stream: marshal %s: %v", event, err)
		return
	}
	payload, _ := json.Marshal(Envelope{Event: event, Data: raw})

	h.deliver(room, payload)

	if h.redis != nil {
		frame, _ := json.Marshal(fanout{Src: h.id, Room: room, Payload: payload})
		if err := h.redis.Publish(context.Background(), redisBroadcastChannel, frame).Err(); err != nil {
			log.Printf("stream: redis publish: %v", err)
		}
	}
}

// deliver sends while holding the read lock: the sends are non-blocking, and
// membership changes (join, Unregister and its channel close) take the write
// lock, so delivery never races a map mutation or a closed Send channel.
func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	pubsub := h.redis.Subscribe(context.Background(), redisBroadcastChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var frame fanout
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			continue
		}
		if frame.Src == h.id {
			continue
		}
		h.deliver(frame.Room, frame.Payload)
	}
}

// LiveVolunteerPosition returns the cached live position for a rescue, if any.
func (h *Hub) LiveVolunteerPosition(ctx context.Context, rescueID string) (geo.Point, bool) {
	if h.redis == nil {
		return geo.Point{}, false
	}
	raw, err := h.redis.Get(ctx, liveLocationKey(rescueID)).Bytes()
	if err != nil {
		return geo.Point{}, false
	}
	var p geo.Point
	if err := json.Unmarshal(raw, &p); err != nil || !p.Known() {
		return geo.Point{}, false
	}
	return p, true
}

func (h *Hub) cacheVolunteerPosition(ctx context.Context, rescueID string, p geo.Point) {
	if h.redis == nil {
		return
	}
	raw, _ := json.Marshal(p)
	if err := h.redis.Set(ctx, liveLocationKey(rescueID), raw, liveLocationTTL).Err(); err != nil {
		log.Printf("stream: cache position: %v", err)
	}
}

func liveLocationKey(rescueID string) string {
	return "rescue:" + rescueID + ":volunteer"
}
