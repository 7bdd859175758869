package stream

import (
	"context"
	"encoding/json"
	"log"

	"backend-platego/internal/auth"
	"backend-platego/internal/shared/geo"
)

// HandleFrame parses one inbound frame and applies it. Malformed frames are
// dropped; they never tear down the connection.
func (h *Hub) HandleFrame(ctx context.Context, client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("stream: bad frame from %s: %v", client.UserID, err)
		return
	}

	switch env.Event {
	case EventJoinUser:
		// Clients may only join their own user room; the id in the payload
		// is ignored in favor of the authenticated identity.
		h.join(client, UserRoom(client.UserID))

	case EventJoinAsVolunteer:
		if client.Role != auth.RoleVolunteer {
			return
		}
		h.join(client, VolunteersRoom)

	case EventJoinRescue:
		id := stringPayload(env.Data)
		if id == "" {
			return
		}
		h.join(client, RescueRoom(id))

	case EventJoinChat:
		id := stringPayload(env.Data)
		if id == "" {
			return
		}
		h.join(client, ChatRoom(id))

	case EventRescueLocationUpdate, EventVolunteerLocationUpdate:
		h.handleLocationUpdate(ctx, client, env.Data)

	case EventTyping, EventStopTyping:
		var ev ChatEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ChatID == "" {
			return
		}
		ev.SenderID = client.UserID
		h.Broadcast(ChatRoom(ev.ChatID), env.Event, ev)

	case EventMessageSent:
		var ev ChatEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ChatID == "" {
			return
		}
		ev.SenderID = client.UserID
		h.Broadcast(ChatRoom(ev.ChatID), EventNewMessage, ev)

	case EventMessageRead:
		var ev ChatEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.ChatID == "" {
			return
		}
		ev.SenderID = client.UserID
		h.Broadcast(ChatRoom(ev.ChatID), EventMessageRead, ev)

	default:
		log.Printf("stream: unknown event %q from %s", env.Event, client.UserID)
	}
}

func (h *Hub) handleLocationUpdate(ctx context.Context, client *Client, data json.RawMessage) {
	var update LocationUpdate
	if err := json.Unmarshal(data, &update); err != nil || update.RescueID == "" {
		return
	}

	p := geo.Point{Lat: update.Lat, Lng: update.Lng}
	if !p.Valid() || !p.Known() {
		return
	}
	if !client.limiter.Allow() {
		return
	}

	h.cacheVolunteerPosition(ctx, update.RescueID, p)
	if h.sink != nil {
		h.sink.RecordVolunteerPosition(ctx, update.RescueID, p)
	}
	h.Broadcast(RescueRoom(update.RescueID), EventRescueLocation, p)
}

// stringPayload accepts both a bare JSON string and an {"id": ...} object,
// matching what the pages historically sent.
func stringPayload(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj struct {
		ID       string `json:"id"`
		RescueID string `json:"rescueId"`
		ChatID   string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	if obj.ID != "" {
		return obj.ID
	}
	if obj.RescueID != "" {
		return obj.RescueID
	}
	return obj.ChatID
}
