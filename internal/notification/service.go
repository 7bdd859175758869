package notification

import (
	"context"

	"backend-platego/internal/db"
	"backend-platego/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Service struct {
	db       db.Querier
	hub      *stream.Hub
	validate *validator.Validate
}

func NewService(querier db.Querier, hub *stream.Hub) *Service {
	return &Service{db: querier, hub: hub, validate: validator.New()}
}

// My returns the user's notifications, unread first, newest first.
func (s *Service) My(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, message,
		       COALESCE(rescue_id,''), COALESCE(chat_id,''), COALESCE(report_id,''),
		       read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY read ASC, created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.RescueID, &n.ChatID, &n.ReportID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}

// MarkRead marks all of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE
	`, userID)
	return err
}

// Create saves a notification for the user and pushes it to their room. Used
// by the client's best-effort save path and by the report flow.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Notification, error) {
	if err := s.validate.Struct(req); err != nil {
		return Notification{}, err
	}

	n := Notification{
		ID:       uuid.NewString(),
		UserID:   userID,
		Kind:     req.Kind,
		Message:  req.Message,
		RescueID: req.RescueID,
		ChatID:   req.ChatID,
		ReportID: req.ReportID,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, rescue_id, chat_id, report_id)
		VALUES ($1,$2,$3,$4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''))
		RETURNING created_at
	`, n.ID, n.UserID, n.Kind, n.Message, n.RescueID, n.ChatID, n.ReportID)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return Notification{}, err
	}

	if s.hub != nil && req.Kind == KindReport {
		s.hub.Broadcast(stream.UserRoom(userID), stream.EventNewReportNotification, n)
	}
	return n, nil
}

// Unread returns the unread count for the badge.
func (s *Service) Unread(ctx context.Context, userID string) (int, error) {
	var count int
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE
	`, userID)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
