// Command agent is a headless client for the rescue coordination service: it
// signs in from a session file, joins its rooms, tracks one rescue and can
// share simulated positions the way a volunteer's browser would.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"backend-platego/internal/platego/channel"
	"backend-platego/internal/platego/geoloc"
	"backend-platego/internal/platego/notify"
	"backend-platego/internal/platego/rest"
	"backend-platego/internal/platego/session"
	"backend-platego/internal/platego/tracking"
	"backend-platego/internal/shared/geo"
)

func main() {
	var (
		sessionPath = flag.String("session", "session.json", "path to the session file")
		serverURL   = flag.String("server", "http://localhost:8080", "API base URL")
		rescueID    = flag.String("rescue", "", "rescue id to track")
		share       = flag.Bool("share", false, "share simulated positions")
		startLat    = flag.Float64("lat", 32.0853, "simulated start latitude")
		startLng    = flag.Float64("lng", 34.7818, "simulated start longitude")
	)
	flag.Parse()

	if err := run(*sessionPath, *serverURL, *rescueID, *share, *startLat, *startLng); err != nil {
		log.Fatalf("agent: %v", err)
	}
}

func run(sessionPath, serverURL, rescueID string, share bool, startLat, startLng float64) error {
	sess, err := session.Load(sessionPath)
	if err != nil {
		return err
	}

	api := rest.New(serverURL, sess.Token)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, err := channel.Connect(ctx, serverURL, sess.Token, channel.Options{
		Reconnect: true,
		OnState: func(s channel.State) {
			log.Printf("channel: %s", s)
		},
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	ch.JoinUser(sess.UserID)
	if sess.IsVolunteer() && sess.Available {
		ch.JoinAsVolunteer()
	}

	surface := notify.New(notify.Options{
		Saver: api,
		Alert: func(t notify.Toast) {
			log.Printf("notification [%s]: %s", t.Kind, t.Message)
		},
	})
	surface.Bind(ch)

	if items, err := api.Notifications(ctx); err == nil {
		surface.ApplyFeed(items)
		log.Printf("unread notifications: %d", surface.Badge())
	}

	if rescueID == "" {
		<-ctx.Done()
		return nil
	}

	track := tracking.NewSession(tracking.Options{
		Role:      sess.Role,
		Available: sess.Available,
		Emitter:   ch,
		OnRecenter: func(b geo.Bounds) {
			c := b.Center()
			log.Printf("viewport recentered on %.4f,%.4f", c.Lat, c.Lng)
		},
	})
	if err := track.Initialize(rescueID); err != nil {
		return err
	}
	ch.JoinRescue(rescueID)

	positions, err := api.RescuePositions(ctx, rescueID)
	if err != nil {
		log.Printf("positions fetch failed, starting blind: %v", err)
	}
	if err := track.ApplyInitialPositions(tracking.Positions{
		Requester: positions.Requester,
		Volunteer: positions.Volunteer,
	}); err != nil {
		return err
	}

	ch.On("rescueLocation", func(data json.RawMessage) {
		var p geo.Point
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if err := track.ApplyLiveUpdate(tracking.SideVolunteer, p); err != nil {
			return
		}
		log.Printf("peer at %.4f,%.4f eta %s", p.Lat, p.Lng, track.Snapshot().ETALabel)
	})

	var handle *geoloc.Handle
	if share {
		watcher := geoloc.NewWatcher(geoloc.NewSimulatedProvider(startLat, startLng))
		handle = watcher.Start(geoloc.Options{HighAccuracy: true, Timeout: 10 * time.Second})
		go shareLoop(track, handle)
	}

	<-ctx.Done()
	if handle != nil {
		handle.Stop()
	}
	return nil
}

func shareLoop(track *tracking.TrackingSession, handle *geoloc.Handle) {
	for {
		select {
		case s, ok := <-handle.Samples:
			if !ok {
				return
			}
			if err := track.ShareOwnPosition(s.Point); err != nil {
				log.Printf("share: %v", err)
				if errors.Is(err, tracking.ErrSharingNotAllowed) || errors.Is(err, tracking.ErrSharingDisabled) {
					return
				}
			}
		case err, ok := <-handle.Err:
			if ok && err != nil {
				log.Printf("geolocation: %v, sharing disabled", err)
				track.DisableSharing()
			}
			return
		}
	}
}
