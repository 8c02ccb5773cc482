// Package monitor drives one polling pass over all enabled restaurants:
// login, fetch, diff, notify. It holds the diff state, everything else is
// owned by its collaborators.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"omakase-monitor/lib/jitter"
	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/telemetry"
	"omakase-monitor/lib/timezone"
	"omakase-monitor/services/notifier"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("services/monitor")

// SlotSource is the authenticated upstream session.
type SlotSource interface {
	Login(ctx context.Context, email, password string) error
	FetchSlots(ctx context.Context, slug string) ([]omakase.TimeSlot, error)
}

// Notifier reports delivery success or failure synchronously.
type Notifier interface {
	Send(ctx context.Context, notification notifier.Notification) error
}

type Credentials struct {
	Email    string
	Password string
}

type Options struct {
	Credentials Credentials
	Restaurants []omakase.Restaurant
	// pause between restaurants to stay under upstream rate limits,
	// defaults to 2s..5s when both are zero
	PauseMin time.Duration
	PauseMax time.Duration
}

type Service struct {
	source   SlotSource
	notifier Notifier
	tracker  *SlotTracker
	opts     Options
}

func NewService(source SlotSource, n Notifier, opts Options) *Service {
	if opts.PauseMin == 0 && opts.PauseMax == 0 {
		opts.PauseMin = 2 * time.Second
		opts.PauseMax = 5 * time.Second
	}
	return &Service{
		source:   source,
		notifier: n,
		tracker:  NewSlotTracker(),
		opts:     opts,
	}
}

// RunCycle does one full sequential pass over the enabled restaurants.
// A failed login aborts the cycle since there is no point in partial
// monitoring without a session; everything past login is isolated per
// restaurant.
func (s *Service) RunCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "monitor:RunCycle")
	defer span.End()

	var enabled []omakase.Restaurant
	for _, r := range s.opts.Restaurants {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		slog.WarnContext(ctx, "no enabled restaurants to monitor")
		return nil
	}
	slog.InfoContext(ctx, "starting monitoring cycle", "restaurants", len(enabled))

	err := s.source.Login(ctx, s.opts.Credentials.Email, s.opts.Credentials.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return fmt.Errorf("login: %w", err)
	}

	for i, restaurant := range enabled {
		s.checkRestaurant(ctx, restaurant)
		if i < len(enabled)-1 {
			jitter.Sleep(ctx, s.opts.PauseMin, s.opts.PauseMax)
		}
	}

	slog.InfoContext(ctx, "monitoring cycle complete")
	return nil
}

// checkRestaurant never lets one restaurant's failure abort the cycle.
func (s *Service) checkRestaurant(ctx context.Context, restaurant omakase.Restaurant) {
	ctx, span := tracer.Start(ctx, "monitor:checkRestaurant")
	defer span.End()
	span.SetAttributes(attribute.String("restaurant", restaurant.Slug))

	slog.InfoContext(ctx, "checking restaurant", "name", restaurant.Name)

	current, err := s.source.FetchSlots(ctx, restaurant.Slug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch slots")
		slog.ErrorContext(ctx, "failed to fetch slots", "name", restaurant.Name, "err", err)
		return
	}

	// an empty fetch still overwrites the snapshot, a restaurant that
	// sells out and reopens later must be reported again
	fresh := s.tracker.DetectNew(restaurant.Slug, current)
	if len(current) == 0 {
		slog.InfoContext(ctx, "no available slots", "name", restaurant.Name)
		return
	}
	if len(fresh) == 0 {
		slog.InfoContext(ctx, "no new slots", "name", restaurant.Name, "open", len(current))
		return
	}

	slog.InfoContext(ctx, "detected new slots", "name", restaurant.Name, "count", len(fresh))
	for _, slot := range fresh {
		slog.InfoContext(
			ctx, "new slot",
			"date", slot.Date,
			"time", slot.Time,
			"price", notifier.FormatPrice(slot.Price),
		)
	}

	err = s.notifier.Send(ctx, notifier.Notification{
		Restaurant: restaurant,
		NewSlots:   fresh,
		Timestamp:  timezone.Now(),
	})
	if err != nil {
		// deliberately not retried: the slots are already marked seen,
		// re-notifying on the next cycle would double up once delivery
		// recovers
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to send notification", "name", restaurant.Name, "err", err)
	}
}
