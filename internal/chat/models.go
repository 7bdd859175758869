package chat

import "time"

// Chat links the user who looked up a plate with the car's owner.
type Chat struct {
	ID        string    `json:"id"`
	Plate     string    `json:"plate"`
	StarterID string    `json:"starterId"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	SenderID  string     `json:"senderId"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type OpenRequest struct {
	Plate string `json:"plate" validate:"required"`
}

type SendRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// Summary is a chat row with the last message and unread count, shaped for
// the conversation list.
type Summary struct {
	ID          string    `json:"id"`
	Plate       string    `json:"plate"`
	PeerID      string    `json:"peerId"`
	LastMessage string    `json:"lastMessage,omitempty"`
	Unread      int       `json:"unread"`
	CreatedAt   time.Time `json:"created_at"`
}
