// Package notify keeps the badge counter and toast list behind the bell icon,
// fed by realtime events and the polled notification feed.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"backend-platego/internal/platego/rest"

	"golang.org/x/time/rate"
)

const maxToasts = 50

type Toast struct {
	Kind    string
	Message string
	At      time.Time
}

// Saver is the best-effort backend persistence hook. rest.Client satisfies it.
type Saver interface {
	SaveNotification(ctx context.Context, n rest.Notification) error
}

// Subscriber is the inbound half of the realtime channel.
type Subscriber interface {
	On(event string, handler func(data json.RawMessage))
}

type Options struct {
	Saver Saver
	// Alert fires for a new toast, at most once per second.
	Alert func(Toast)
}

type Surface struct {
	opts    Options
	limiter *rate.Limiter

	mu     sync.Mutex
	badge  int
	toasts []Toast
}

func New(opts Options) *Surface {
	return &Surface{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Bind registers handlers for every notification-bearing channel event.
func (s *Surface) Bind(sub Subscriber) {
	sub.On("newReportNotification", s.eventHandler("report", "Your car was reported"))
	sub.On("newMessageNotification", s.eventHandler("message", "You have a new message"))
	sub.On("rescueAccepted", s.eventHandler("rescue", "A volunteer accepted your rescue"))
	sub.On("newRescueRequest", s.eventHandler("rescue", "New rescue request nearby"))
}

func (s *Surface) eventHandler(kind, message string) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var payload struct {
			Message  string `json:"message"`
			RescueID string `json:"rescueId"`
			ChatID   string `json:"chatId"`
		}
		_ = json.Unmarshal(data, &payload)
		if payload.Message != "" {
			message = payload.Message
		}
		s.push(Toast{Kind: kind, Message: message, At: time.Now()}, rest.Notification{
			Kind:     kind,
			Message:  message,
			RescueID: payload.RescueID,
			ChatID:   payload.ChatID,
		})
	}
}

func (s *Surface) push(toast Toast, saved rest.Notification) {
	s.mu.Lock()
	s.badge++
	s.toasts = append(s.toasts, toast)
	if len(s.toasts) > maxToasts {
		s.toasts = s.toasts[len(s.toasts)-maxToasts:]
	}
	alert := s.opts.Alert
	s.mu.Unlock()

	if alert != nil && s.limiter.Allow() {
		alert(toast)
	}

	if s.opts.Saver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.opts.Saver.SaveNotification(ctx, saved); err != nil {
			log.Printf("notify: save: %v", err)
		}
	}
}

// ApplyFeed reconciles the badge with the polled feed: the server's unread
// count wins over the locally accumulated one.
func (s *Surface) ApplyFeed(items []rest.Notification) {
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	s.mu.Lock()
	s.badge = unread
	s.mu.Unlock()
}

// MarkAllRead clears the badge, as after opening the notifications page.
func (s *Surface) MarkAllRead() {
	s.mu.Lock()
	s.badge = 0
	s.mu.Unlock()
}

func (s *Surface) Badge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badge
}

func (s *Surface) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	return out
}
