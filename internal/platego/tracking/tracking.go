// Package tracking drives the live rescue view: two markers, a viewport and
// an arrival estimate, fed by initial positions and realtime updates.
package tracking

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"backend-platego/internal/shared/geo"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateLive
)

type Side int

const (
	SideRequester Side = iota
	SideVolunteer
)

const (
	defaultSpeedKmh = 40.0
	viewportSpanKm  = 2.0
	viewportPad     = 0.25
	etaPendingLabel = "pending"
)

var (
	ErrMissingIdentifier = errors.New("rescue id required")
	ErrNotLive           = errors.New("session not live")
	ErrBadCoordinates    = errors.New("coordinates out of range")
	ErrSharingDisabled   = errors.New("position sharing disabled")
	ErrSharingNotAllowed = errors.New("not sharing: requires an available volunteer")
)

// Estimator turns two positions into a travel time. The default works on
// great-circle distance; a road-geometry engine can slot in behind the same
// interface.
type Estimator interface {
	Estimate(from, to geo.Point) (time.Duration, error)
}

type GreatCircleEstimator struct {
	SpeedKmh float64
}

func (e GreatCircleEstimator) Estimate(from, to geo.Point) (time.Duration, error) {
	speed := e.SpeedKmh
	if speed <= 0 {
		speed = defaultSpeedKmh
	}
	return geo.ETADuration(from, to, speed), nil
}

// Emitter is the outbound half of the realtime channel.
type Emitter interface {
	Emit(event string, payload any)
}

type Marker struct {
	Point     geo.Point
	UpdatedAt time.Time
}

type Positions struct {
	Requester *geo.Point
	Volunteer *geo.Point
}

// Snapshot is the render model: everything a view needs to draw one frame.
type Snapshot struct {
	State     State
	RescueID  string
	Requester *Marker
	Volunteer *Marker
	Viewport  geo.Bounds
	ETALabel  string
}

type Options struct {
	// Role and Available gate ShareOwnPosition.
	Role      string
	Available bool

	Estimator Estimator
	Emitter   Emitter

	// OnMarker observes every applied marker update, in order.
	OnMarker func(Side, geo.Point)
	// OnRecenter observes viewport changes.
	OnRecenter func(geo.Bounds)
}

type TrackingSession struct {
	mu   sync.Mutex
	opts Options

	state     State
	rescueID  string
	requester *Marker
	volunteer *Marker
	viewport  geo.Bounds
	hasView   bool

	sharingDisabled bool
}

func NewSession(opts Options) *TrackingSession {
	if opts.Estimator == nil {
		opts.Estimator = GreatCircleEstimator{}
	}
	return &TrackingSession{opts: opts, state: StateUninitialized}
}

// Initialize binds the session to a rescue and moves it to loading.
func (t *TrackingSession) Initialize(rescueID string) error {
	if rescueID == "" {
		return ErrMissingIdentifier
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateUninitialized {
		return fmt.Errorf("already initialized for %s", t.rescueID)
	}
	t.rescueID = rescueID
	t.state = StateLoading
	return nil
}

// ApplyInitialPositions seeds the markers from the positions endpoint and
// moves the session live. A nil side stays unknown.
func (t *TrackingSession) ApplyInitialPositions(p Positions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateUninitialized {
		return ErrNotLive
	}

	if p.Requester != nil {
		if err := t.applyMarkerLocked(SideRequester, *p.Requester); err != nil {
			return err
		}
	}
	if p.Volunteer != nil {
		if err := t.applyMarkerLocked(SideVolunteer, *p.Volunteer); err != nil {
			return err
		}
	}
	t.state = StateLive
	return nil
}

// ApplyLiveUpdate moves one marker from a realtime event. Out-of-range,
// non-finite, or zero coordinates are dropped at this boundary.
func (t *TrackingSession) ApplyLiveUpdate(side Side, p geo.Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateLive {
		return ErrNotLive
	}
	return t.applyMarkerLocked(side, p)
}

// ShareOwnPosition emits the caller's position over the channel and echoes it
// onto the local marker so the view updates without a round trip.
func (t *TrackingSession) ShareOwnPosition(p geo.Point) error {
	t.mu.Lock()
	if t.sharingDisabled {
		t.mu.Unlock()
		return ErrSharingDisabled
	}
	if t.opts.Role != "volunteer" || !t.opts.Available {
		t.mu.Unlock()
		return ErrSharingNotAllowed
	}
	if t.state != StateLive {
		t.mu.Unlock()
		return ErrNotLive
	}
	if !p.Valid() || !p.Known() {
		t.mu.Unlock()
		return ErrBadCoordinates
	}
	rescueID := t.rescueID
	emitter := t.opts.Emitter
	if err := t.applyMarkerLocked(SideVolunteer, p); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	if emitter != nil {
		emitter.Emit("volunteerLocationUpdate", map[string]any{
			"rescueId": rescueID,
			"lat":      p.Lat,
			"lng":      p.Lng,
		})
	}
	return nil
}

// DisableSharing turns ShareOwnPosition off for the rest of the session, as
// on a geolocation denial. Inbound updates keep flowing.
func (t *TrackingSession) DisableSharing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharingDisabled = true
}

func (t *TrackingSession) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		State:    t.state,
		RescueID: t.rescueID,
		Viewport: t.viewport,
		ETALabel: t.etaLabelLocked(),
	}
	if t.requester != nil {
		m := *t.requester
		s.Requester = &m
	}
	if t.volunteer != nil {
		m := *t.volunteer
		s.Volunteer = &m
	}
	return s
}

func (t *TrackingSession) applyMarkerLocked(side Side, p geo.Point) error {
	if !p.Valid() || !p.Known() {
		return ErrBadCoordinates
	}

	marker := &Marker{Point: p, UpdatedAt: time.Now()}
	if side == SideRequester {
		t.requester = marker
	} else {
		t.volunteer = marker
	}
	if t.opts.OnMarker != nil {
		t.opts.OnMarker(side, p)
	}
	t.recenterLocked(p)
	return nil
}

// recenterLocked moves the viewport only when the point has left it, so a
// stream of identical updates leaves the view untouched.
func (t *TrackingSession) recenterLocked(p geo.Point) {
	if t.hasView && t.viewport.Contains(p) {
		return
	}

	var points []geo.Point
	if t.requester != nil {
		points = append(points, t.requester.Point)
	}
	if t.volunteer != nil {
		points = append(points, t.volunteer.Point)
	}
	if len(points) == 1 {
		t.viewport = geo.BoundsAround(points[0], viewportSpanKm)
	} else {
		t.viewport = geo.BoundsOf(points...).Pad(viewportPad)
	}
	t.hasView = true
	if t.opts.OnRecenter != nil {
		t.opts.OnRecenter(t.viewport)
	}
}

func (t *TrackingSession) etaLabelLocked() string {
	if t.requester == nil || t.volunteer == nil {
		return etaPendingLabel
	}
	d, err := t.opts.Estimator.Estimate(t.volunteer.Point, t.requester.Point)
	if err != nil {
		return etaPendingLabel
	}
	minutes := int(d / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min", minutes)
}
