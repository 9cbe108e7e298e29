package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msg Envelope) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }

// Fanout delivers each event to every sink within a bounded time. Sink failures
// are logged and never stop the other sinks.
type Fanout struct {
	sinks   []Publisher
	timeout time.Duration
	log     *zap.Logger
}

func NewFanout(log *zap.Logger, timeout time.Duration, sinks ...Publisher) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{sinks: sinks, timeout: timeout, log: log}
}

func (f *Fanout) Publish(ctx context.Context, msg Envelope) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, msg); err != nil {
			f.log.Warn("event not published",
				zap.String("type", msg.Meta.Type),
				zap.String("event_id", msg.Meta.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
