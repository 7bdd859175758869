package geoloc

import (
	"context"
	"math/rand"
	"time"
)

// SimulatedProvider emits a random walk around a start point. Used by the
// headless agent and in development, where no real position source exists.
type SimulatedProvider struct {
	StartLat float64
	StartLng float64
	// StepDegrees is the maximum per-tick drift on each axis.
	StepDegrees float64
	Interval    time.Duration

	// Fail, when set, is reported instead of any samples.
	Fail error

	rng *rand.Rand
}

func NewSimulatedProvider(lat, lng float64) *SimulatedProvider {
	return &SimulatedProvider{
		StartLat:    lat,
		StartLng:    lng,
		StepDegrees: 0.0005,
		Interval:    time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SimulatedProvider) Watch(ctx context.Context, opts Options) (<-chan Sample, <-chan error) {
	samples := make(chan Sample)
	errs := make(chan error, 1)

	go func() {
		defer close(samples)
		defer close(errs)

		if p.Fail != nil {
			errs <- p.Fail
			return
		}

		rng := p.rng
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		interval := p.Interval
		if interval <= 0 {
			interval = time.Second
		}
		accuracy := 50.0
		if opts.HighAccuracy {
			accuracy = 10.0
		}

		lat, lng := p.StartLat, p.StartLng
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			s := Sample{ObservedAt: time.Now(), AccuracyM: accuracy}
			s.Point.Lat, s.Point.Lng = lat, lng
			select {
			case samples <- s:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
				lat += (rng.Float64()*2 - 1) * p.StepDegrees
				lng += (rng.Float64()*2 - 1) * p.StepDegrees
			case <-ctx.Done():
				return
			}
		}
	}()
	return samples, errs
}
