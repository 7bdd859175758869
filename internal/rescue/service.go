package rescue

import (
	"context"
	"errors"
	"log"
	"time"

	"backend-platego/internal/db"
	"backend-platego/internal/shared/geo"
	"backend-platego/internal/stream"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrAlreadyTaken = errors.New("rescue already taken")
	ErrNotFound     = errors.New("rescue not found")
)

// Geocoder resolves the free-text address a requester typed into coordinates.
type Geocoder interface {
	Forward(ctx context.Context, address string) (geo.Point, error)
}

type Service struct {
	db       db.Querier
	hub      *stream.Hub
	geocoder Geocoder
	validate *validator.Validate
}

func NewService(querier db.Querier, hub *stream.Hub, geocoder Geocoder) *Service {
	return &Service{
		db:       querier,
		hub:      hub,
		geocoder: geocoder,
		validate: validator.New(),
	}
}

// Create stores a pending rescue and announces it to available volunteers.
// Geocoding failure is not fatal: the rescue is stored with an unknown
// requester position and the tracking page shows its pending state.
func (s *Service) Create(ctx context.Context, requesterID string, req CreateRequest) (Rescue, error) {
	if err := s.validate.Struct(req); err != nil {
		return Rescue{}, err
	}

	pos := geo.Point{}
	if s.geocoder != nil {
		p, err := s.geocoder.Forward(ctx, req.Location)
		if err != nil {
			log.Printf("rescue: geocode %q: %v", req.Location, err)
		} else {
			pos = p
		}
	}

	requestedFor := time.Time{}
	if req.Time != "" {
		if t, err := time.Parse("2006-01-02T15:04", req.Time); err == nil {
			requestedFor = t
		}
	}

	rescue := Rescue{
		ID:           uuid.NewString(),
		RequesterID:  requesterID,
		Status:       StatusPending,
		Location:     req.Location,
		Reason:       req.Reason,
		RequestedFor: requestedFor,
		RequesterPos: pos,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO rescues (id, requester_id, status, location, reason, requested_for, requester_lat, requester_lng)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, rescue.ID, rescue.RequesterID, rescue.Status, rescue.Location, rescue.Reason,
		timePtr(rescue.RequestedFor), rescue.RequesterPos.Lat, rescue.RequesterPos.Lng)
	if err := row.Scan(&rescue.CreatedAt); err != nil {
		return Rescue{}, err
	}

	if s.hub != nil {
		s.hub.Broadcast(stream.VolunteersRoom, stream.EventNewRescueRequest, NewRequestEvent{
			RescueID: rescue.ID,
			Location: rescue.Location,
			Message:  "New rescue request: " + rescue.Reason,
			Time:     req.Time,
		})
	}

	// Best effort: mirrors the realtime announcement for volunteers who are
	// offline right now.
	if _, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, rescue_id)
		SELECT gen_random_uuid()::text, id, 'rescue', $2, $1
		FROM users WHERE role='volunteer' AND available
	`, rescue.ID, "New rescue request: "+rescue.Reason); err != nil {
		log.Printf("rescue: save request notifications: %v", err)
	}
	return rescue, nil
}

// Accept is a compare-and-swap on status so two volunteers cannot both win.
func (s *Service) Accept(ctx context.Context, rescueID, volunteerID, volunteerName string) (Rescue, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE rescues
		SET status=$3, volunteer_id=$2, accepted_at=now()
		WHERE id=$1 AND status=$4
		RETURNING requester_id
	`, rescueID, volunteerID, StatusAccepted, StatusPending)

	var requesterID string
	if err := row.Scan(&requesterID); err != nil {
		return Rescue{}, ErrAlreadyTaken
	}

	if s.hub != nil {
		s.hub.Broadcast(stream.UserRoom(requesterID), stream.EventRescueAccepted, AcceptedEvent{
			RescueID:   rescueID,
			AcceptedBy: volunteerName,
		})
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, rescue_id)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), requesterID, "rescue", "A volunteer accepted your request: "+volunteerName, rescueID)
	if err != nil {
		log.Printf("rescue: save accept notification: %v", err)
	}

	return s.Get(ctx, rescueID)
}

// Complete closes an accepted rescue. Only the accepting volunteer or the
// requester may complete it.
func (s *Service) Complete(ctx context.Context, rescueID, userID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rescues
		SET status=$2, completed_at=now()
		WHERE id=$1 AND status=$3 AND (volunteer_id=$4 OR requester_id=$4)
	`, rescueID, StatusCompleted, StatusAccepted, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel withdraws a pending rescue; only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, rescueID, requesterID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rescues
		SET status=$2
		WHERE id=$1 AND status=$3 AND requester_id=$4
	`, rescueID, StatusCancelled, StatusPending, requesterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, rescueID string) (Rescue, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, requester_id, COALESCE(volunteer_id, ''), status, location, reason,
		       requester_lat, requester_lng, volunteer_lat, volunteer_lng, created_at
		FROM rescues WHERE id=$1
	`, rescueID)

	var r Rescue
	if err := row.Scan(&r.ID, &r.RequesterID, &r.VolunteerID, &r.Status, &r.Location, &r.Reason,
		&r.RequesterPos.Lat, &r.RequesterPos.Lng, &r.VolunteerPos.Lat, &r.VolunteerPos.Lng, &r.CreatedAt); err != nil {
		return Rescue{}, ErrNotFound
	}
	return r, nil
}

// Positions returns the initial marker state for the tracking page. The live
// redis cache wins for the volunteer side; the persisted row is the fallback.
func (s *Service) Positions(ctx context.Context, rescueID string) (Positions, error) {
	r, err := s.Get(ctx, rescueID)
	if err != nil {
		return Positions{}, err
	}

	var out Positions
	if r.RequesterPos.Known() {
		p := r.RequesterPos
		out.Requester = &p
	}

	if s.hub != nil {
		if live, ok := s.hub.LiveVolunteerPosition(ctx, rescueID); ok {
			out.Volunteer = &live
			return out, nil
		}
	}
	if r.VolunteerPos.Known() {
		p := r.VolunteerPos
		out.Volunteer = &p
	}
	return out, nil
}

// RecordVolunteerPosition implements stream.LocationSink; the hub calls it for
// every validated live update so positions survive a restart.
func (s *Service) RecordVolunteerPosition(ctx context.Context, rescueID string, p geo.Point) {
	_, err := s.db.Exec(ctx, `
		UPDATE rescues
		SET volunteer_lat=$2, volunteer_lng=$3
		WHERE id=$1 AND status=$4
	`, rescueID, p.Lat, p.Lng, StatusAccepted)
	if err != nil {
		log.Printf("rescue: record position: %v", err)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
