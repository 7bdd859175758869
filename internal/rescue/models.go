package rescue

import (
	"time"

	"backend-platego/internal/shared/geo"
)

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Rescue struct {
	ID           string    `json:"id"`
	RequesterID  string    `json:"requester_id"`
	VolunteerID  string    `json:"volunteer_id,omitempty"`
	Status       string    `json:"status"`
	Location     string    `json:"location"`
	Reason       string    `json:"reason"`
	RequestedFor time.Time `json:"requested_for,omitempty"`
	RequesterPos geo.Point `json:"requester_pos"`
	VolunteerPos geo.Point `json:"volunteer_pos"`
	CreatedAt    time.Time `json:"created_at"`
	AcceptedAt   time.Time `json:"accepted_at,omitempty"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

type CreateRequest struct {
	Location string `json:"location" validate:"required"`
	Time     string `json:"time"`
	Reason   string `json:"reason" validate:"required"`
}

// Positions is the initial-state payload for the tracking page. A side is nil
// until that party has ever reported a real coordinate; the stored (0,0)
// default is never surfaced as a position.
type Positions struct {
	Requester *geo.Point `json:"requester,omitempty"`
	Volunteer *geo.Point `json:"volunteer,omitempty"`
}

type AcceptedEvent struct {
	RescueID   string `json:"rescueId"`
	AcceptedBy string `json:"acceptedBy"`
}

type NewRequestEvent struct {
	RescueID string `json:"rescueId"`
	Location string `json:"location"`
	Message  string `json:"message"`
	Time     string `json:"time"`
}
