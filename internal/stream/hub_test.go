package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"backend-platego/internal/auth"
	"backend-platego/internal/shared/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func recvEnvelope(t *testing.T, client *Client) Envelope {
	t.Helper()
	select {
	case msg := <-client.Send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return env
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
		return Envelope{}
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(client)

	hub.HandleFrame(context.Background(), client, []byte(`{"event":"joinRescue","data":"abc123"}`))
	hub.Broadcast(RescueRoom("abc123"), EventRescueLocation, geo.Point{Lat: 32.11, Lng: 34.82})

	env := recvEnvelope(t, client)
	if env.Event != EventRescueLocation {
		t.Fatalf("unexpected event: %s", env.Event)
	}

	var p geo.Point
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Lat != 32.11 {
		t.Fatalf("unexpected payload: %s", env.Data)
	}
}

func TestHubBroadcastSkipsOtherRooms(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(client)

	hub.HandleFrame(context.Background(), client, []byte(`{"event":"joinRescue","data":"abc123"}`))
	hub.Broadcast(RescueRoom("other"), EventRescueLocation, geo.Point{Lat: 1, Lng: 1})

	select {
	case msg := <-client.Send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesAndLeavesRooms(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("user-2", auth.RoleRequester)
	hub.HandleFrame(context.Background(), client, []byte(`{"event":"joinUser","data":"user-2"}`))

	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if len(hub.rooms) != 0 {
		t.Fatalf("expected empty room table, got %d", len(hub.rooms))
	}
}

func TestJoinAsVolunteerRequiresRole(t *testing.T) {
	hub := NewHub(nil)
	requester := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(requester)
	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	ctx := context.Background()
	hub.HandleFrame(ctx, requester, []byte(`{"event":"joinAsVolunteer"}`))
	hub.HandleFrame(ctx, volunteer, []byte(`{"event":"joinAsVolunteer"}`))

	hub.Broadcast(VolunteersRoom, EventNewRescueRequest, map[string]string{"rescueId": "r1"})

	env := recvEnvelope(t, volunteer)
	if env.Event != EventNewRescueRequest {
		t.Fatalf("unexpected event: %s", env.Event)
	}

	select {
	case msg := <-requester.Send:
		t.Fatalf("requester must not receive volunteer events: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocationUpdateRebroadcastInOrder(t *testing.T) {
	hub := NewHub(nil)
	watcher := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(watcher)
	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	ctx := context.Background()
	hub.HandleFrame(ctx, watcher, []byte(`{"event":"joinRescue","data":"abc123"}`))

	for i := 0; i < 3; i++ {
		frame := fmt.Sprintf(`{"event":"rescueLocationUpdate","data":{"rescueId":"abc123","lat":32.1,"lng":%v}}`, 34.81+float64(i)/100)
		hub.HandleFrame(ctx, volunteer, []byte(frame))
	}

	for i := 0; i < 3; i++ {
		env := recvEnvelope(t, watcher)
		if env.Event != EventRescueLocation {
			t.Fatalf("unexpected event: %s", env.Event)
		}
		var p geo.Point
		_ = json.Unmarshal(env.Data, &p)
		want := 34.81 + float64(i)/100
		if p.Lng < want-1e-9 || p.Lng > want+1e-9 {
			t.Fatalf("out of order: got %v want %v", p.Lng, want)
		}
	}
}

func TestLocationUpdateDropsMalformed(t *testing.T) {
	hub := NewHub(nil)
	watcher := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(watcher)
	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	ctx := context.Background()
	hub.HandleFrame(ctx, watcher, []byte(`{"event":"joinRescue","data":"abc123"}`))

	frames := [][]byte{
		[]byte(`{"event":"rescueLocationUpdate","data":{"lat":1,"lng":1}}`),
		[]byte(`{"event":"rescueLocationUpdate","data":{"rescueId":"abc123","lat":0,"lng":0}}`),
		[]byte(`{"event":"rescueLocationUpdate","data":{"rescueId":"abc123","lat":999,"lng":1}}`),
		[]byte(`{"event":"rescueLocationUpdate","data":"garbage"}`),
		[]byte(`not json at all`),
	}
	for _, frame := range frames {
		hub.HandleFrame(ctx, volunteer, frame)
	}

	select {
	case msg := <-watcher.Send:
		t.Fatalf("malformed frame leaked: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocationUpdateThrottled(t *testing.T) {
	hub := NewHub(nil)
	watcher := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(watcher)
	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	ctx := context.Background()
	hub.HandleFrame(ctx, watcher, []byte(`{"event":"joinRescue","data":"abc123"}`))

	for i := 0; i < locationBurst*3; i++ {
		hub.HandleFrame(ctx, volunteer, []byte(`{"event":"rescueLocationUpdate","data":{"rescueId":"abc123","lat":32.1,"lng":34.8}}`))
	}

	delivered := 0
	for {
		select {
		case <-watcher.Send:
			delivered++
		case <-time.After(50 * time.Millisecond):
			if delivered == 0 || delivered > locationBurst+1 {
				t.Fatalf("throttle delivered %d frames", delivered)
			}
			return
		}
	}
}

type sinkRecorder struct {
	rescueID string
	point    geo.Point
	calls    int
}

func (s *sinkRecorder) RecordVolunteerPosition(_ context.Context, rescueID string, p geo.Point) {
	s.rescueID = rescueID
	s.point = p
	s.calls++
}

func TestLocationUpdateFeedsSink(t *testing.T) {
	hub := NewHub(nil)
	sink := &sinkRecorder{}
	hub.SetLocationSink(sink)

	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	hub.HandleFrame(context.Background(), volunteer, []byte(`{"event":"volunteerLocationUpdate","data":{"rescueId":"abc123","lat":32.11,"lng":34.82}}`))

	if sink.calls != 1 || sink.rescueID != "abc123" || sink.point.Lat != 32.11 {
		t.Fatalf("sink not fed: %+v", sink)
	}
}

func TestChatEventsRelayed(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Register("user-a", auth.RoleRequester)
	defer hub.Unregister(a)
	b := hub.Register("user-b", auth.RoleRequester)
	defer hub.Unregister(b)

	ctx := context.Background()
	hub.HandleFrame(ctx, a, []byte(`{"event":"joinChat","data":"chat-1"}`))
	hub.HandleFrame(ctx, b, []byte(`{"event":"joinChat","data":"chat-1"}`))

	hub.HandleFrame(ctx, b, []byte(`{"event":"typing","data":{"chatId":"chat-1"}}`))
	env := recvEnvelope(t, a)
	if env.Event != EventTyping {
		t.Fatalf("unexpected event: %s", env.Event)
	}
	var ev ChatEvent
	_ = json.Unmarshal(env.Data, &ev)
	if ev.SenderID != "user-b" {
		t.Fatalf("sender not stamped: %+v", ev)
	}

	hub.HandleFrame(ctx, b, []byte(`{"event":"messageSent","data":{"chatId":"chat-1","messageId":"m1"}}`))
	env = recvEnvelope(t, a)
	if env.Event != EventNewMessage {
		t.Fatalf("unexpected event: %s", env.Event)
	}
}

func TestHubRedisCacheAndFanout(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	hub := NewHub(client)
	volunteer := hub.Register("vol-1", auth.RoleVolunteer)
	defer hub.Unregister(volunteer)

	ctx := context.Background()
	hub.HandleFrame(ctx, volunteer, []byte(`{"event":"rescueLocationUpdate","data":{"rescueId":"abc123","lat":32.11,"lng":34.82}}`))

	p, ok := hub.LiveVolunteerPosition(ctx, "abc123")
	if !ok || p.Lat != 32.11 || p.Lng != 34.82 {
		t.Fatalf("live position not cached: %+v %v", p, ok)
	}

	if _, ok := hub.LiveVolunteerPosition(ctx, "missing"); ok {
		t.Fatalf("expected no position for unknown rescue")
	}

	// A frame published by another instance reaches local room members.
	other := NewHub(client)
	watcher := other.Register("user-1", auth.RoleRequester)
	defer other.Unregister(watcher)
	other.HandleFrame(ctx, watcher, []byte(`{"event":"joinRescue","data":"abc123"}`))

	time.Sleep(20 * time.Millisecond)
	hub.Broadcast(RescueRoom("abc123"), EventRescueLocation, geo.Point{Lat: 32.12, Lng: 34.83})

	env := recvEnvelope(t, watcher)
	if env.Event != EventRescueLocation {
		t.Fatalf("unexpected event: %s", env.Event)
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client)
	node := hub.Register("user-1", auth.RoleRequester)
	defer hub.Unregister(node)

	hub.Broadcast(RescueRoom("abc123"), EventRescueLocation, geo.Point{Lat: 1, Lng: 1})
}

func TestBroadcastConcurrentWithMembershipChurn(t *testing.T) {
	hub := NewHub(nil)
	room := RescueRoom("abc123")

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					hub.Broadcast(room, EventRescueLocation, geo.Point{Lat: 1, Lng: 1})
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		client := hub.Register(fmt.Sprintf("vol-%d", i), auth.RoleVolunteer)
		hub.join(client, room)
		hub.Unregister(client)
	}

	close(done)
	wg.Wait()
}
