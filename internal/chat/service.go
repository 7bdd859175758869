package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"backend-platego/internal/db"
	"backend-platego/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrPlateUnknown = errors.New("no car registered with this plate")
	ErrNotFound     = errors.New("chat not found")
	ErrNotMember    = errors.New("not a member of this chat")
	ErrSelfChat     = errors.New("cannot open a chat with yourself")
	ErrEmptyMessage = errors.New("message body required")
)

type Service struct {
	db       db.Querier
	hub      *stream.Hub
	validate *validator.Validate
}

func NewService(querier db.Querier, hub *stream.Hub) *Service {
	return &Service{db: querier, hub: hub, validate: validator.New()}
}

// Open finds or creates the chat between starter and the owner of the plate.
func (s *Service) Open(ctx context.Context, starterID string, req OpenRequest) (Chat, error) {
	if err := s.validate.Struct(req); err != nil {
		return Chat{}, err
	}
	plate := normalizePlate(req.Plate)

	var ownerID string
	row := s.db.QueryRow(ctx, `SELECT owner_id FROM cars WHERE plate=$1 LIMIT 1`, plate)
	if err := row.Scan(&ownerID); err != nil {
		return Chat{}, ErrPlateUnknown
	}
	if ownerID == starterID {
		return Chat{}, ErrSelfChat
	}

	chat := Chat{Plate: plate, StarterID: starterID, OwnerID: ownerID}
	row = s.db.QueryRow(ctx, `
		SELECT id, created_at FROM chats WHERE plate=$1 AND starter_id=$2
	`, plate, starterID)
	if err := row.Scan(&chat.ID, &chat.CreatedAt); err == nil {
		return chat, nil
	}

	chat.ID = uuid.NewString()
	row = s.db.QueryRow(ctx, `
		INSERT INTO chats (id, plate, starter_id, owner_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, chat.ID, chat.Plate, chat.StarterID, chat.OwnerID)
	if err := row.Scan(&chat.CreatedAt); err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// List returns the user's chats with last message and unread count.
func (s *Service) List(ctx context.Context, userID string) ([]Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.plate,
		       CASE WHEN c.starter_id=$1 THEN c.owner_id ELSE c.starter_id END,
		       COALESCE((SELECT body FROM messages WHERE chat_id=c.id ORDER BY created_at DESC LIMIT 1), ''),
		       (SELECT COUNT(*) FROM messages WHERE chat_id=c.id AND sender_id<>$1 AND read_at IS NULL),
		       c.created_at
		FROM chats c
		WHERE c.starter_id=$1 OR c.owner_id=$1
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Summary
	for rows.Next() {
		var c Summary
		if err := rows.Scan(&c.ID, &c.Plate, &c.PeerID, &c.LastMessage, &c.Unread, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}

// Messages returns a chat's history, oldest first. The caller must be a
// member.
func (s *Service) Messages(ctx context.Context, chatID, userID string) ([]Message, error) {
	if _, err := s.peerOf(ctx, chatID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, chat_id, sender_id, body, read_at, created_at
		FROM messages WHERE chat_id=$1
		ORDER BY created_at
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Send stores a message, relays it to the chat room and notifies the peer.
func (s *Service) Send(ctx context.Context, chatID, senderID string, req SendRequest) (Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return Message{}, ErrEmptyMessage
	}

	peerID, err := s.peerOf(ctx, chatID, senderID)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		SenderID: senderID,
		Body:     req.Body,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, body)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Body)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if s.hub != nil {
		s.hub.Broadcast(stream.ChatRoom(chatID), stream.EventNewMessage, msg)
		s.hub.Broadcast(stream.UserRoom(peerID), stream.EventNewMessageNotification, stream.ChatEvent{
			ChatID:    chatID,
			MessageID: msg.ID,
			SenderID:  senderID,
		})
	}

	// Best effort: the message is already stored and relayed.
	if _, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, chat_id)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), peerID, "message", "You have a new message", chatID); err != nil {
		log.Printf("chat: save notification: %v", err)
	}
	return msg, nil
}

// MarkRead marks the peer's messages as read and relays a read receipt.
func (s *Service) MarkRead(ctx context.Context, chatID, readerID string) error {
	if _, err := s.peerOf(ctx, chatID, readerID); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE messages SET read_at=now()
		WHERE chat_id=$1 AND sender_id<>$2 AND read_at IS NULL
	`, chatID, readerID); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.Broadcast(stream.ChatRoom(chatID), stream.EventMessageRead, stream.ChatEvent{
			ChatID:   chatID,
			SenderID: readerID,
		})
	}
	return nil
}

// peerOf resolves the other member of a chat, or an error if userID is not a
// member.
func (s *Service) peerOf(ctx context.Context, chatID, userID string) (string, error) {
	var starterID, ownerID string
	row := s.db.QueryRow(ctx, `SELECT starter_id, owner_id FROM chats WHERE id=$1`, chatID)
	if err := row.Scan(&starterID, &ownerID); err != nil {
		return "", ErrNotFound
	}
	switch userID {
	case starterID:
		return ownerID, nil
	case ownerID:
		return starterID, nil
	default:
		return "", ErrNotMember
	}
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), "-", ""))
}
