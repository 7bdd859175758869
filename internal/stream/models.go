package stream

import "encoding/json"

// Envelope is the wire frame for every realtime message, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventRescueLocation         = "rescueLocation"
	EventRescueAccepted         = "rescueAccepted"
	EventNewRescueRequest       = "newRescueRequest"
	EventNewReportNotification  = "newReportNotification"
	EventNewMessageNotification = "newMessageNotification"
	EventNewMessage             = "newMessage"
	EventTyping                 = "typing"
	EventStopTyping             = "stopTyping"
	EventMessageRead            = "messageRead"
)

// Inbound event names.
const (
	EventJoinUser                = "joinUser"
	EventJoinAsVolunteer         = "joinAsVolunteer"
	EventJoinRescue              = "joinRescue"
	EventJoinChat                = "joinChat"
	EventRescueLocationUpdate    = "rescueLocationUpdate"
	EventVolunteerLocationUpdate = "volunteerLocationUpdate"
	EventMessageSent             = "messageSent"
)

type LocationUpdate struct {
	RescueID string  `json:"rescueId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

type ChatEvent struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
}

func UserRoom(userID string) string     { return "user:" + userID }
func RescueRoom(rescueID string) string { return "rescue:" + rescueID }
func ChatRoom(chatID string) string     { return "chat:" + chatID }

const VolunteersRoom = "volunteers"
