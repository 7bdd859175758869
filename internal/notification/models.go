package notification

import "time"

const (
	KindRescue  = "rescue"
	KindReport  = "report"
	KindMessage = "message"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	RescueID  string    `json:"rescueId,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	ReportID  string    `json:"reportId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=rescue report message"`
	Message  string `json:"message" validate:"required"`
	RescueID string `json:"rescueId,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	ReportID string `json:"reportId,omitempty"`
}
