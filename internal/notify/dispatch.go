package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"

	logx "catalogwatch/pkg/logx"
)

// ErrNoNotifier is reported when no delivery target is configured.
var ErrNoNotifier = errors.New("no notifier configured")

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, m Message) error

func (f NotifierFunc) Notify(ctx context.Context, m Message) error { return f(ctx, m) }

// Multi fans one message out to every non-nil notifier. It returns nil when
// none is given and the notifier itself when only one is.
func Multi(ns ...Notifier) Notifier {
	var out multi
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

type multi []Notifier

// Notify attempts every transport, even after a failure.
func (m multi) Notify(ctx context.Context, msg Message) error {
	var first error
	failed := 0
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d transports failed", failed, len(m))
	}
	return nil
}

// Report summarizes one Deliver call.
type Report struct {
	Attempted int
	Delivered int
	Failed    int
	// Skipped is set when no notifier is configured.
	Skipped bool
	// Err is ErrNoNotifier when skipped, or the context error when delivery
	// was interrupted. Per-message failures are only counted.
	Err error
}

// Dispatcher delivers messages sequentially with a minimum spacing.
type Dispatcher struct {
	notifier Notifier
	interval time.Duration
	log      logx.Logger
}

// NewDispatcher returns a dispatcher. n may be nil, in which case every
// Deliver call is skipped.
func NewDispatcher(n Notifier, interval time.Duration, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if interval < 0 {
		interval = 0
	}
	return &Dispatcher{notifier: n, interval: interval, log: log.With(logx.String("comp", "notify"))}
}

// Deliver sends msgs in order.
func (d *Dispatcher) Deliver(ctx context.Context, msgs []Message) Report {
	var rep Report
	if len(msgs) == 0 {
		return rep
	}
	if d.notifier == nil {
		d.log.Warn("no notifier configured; skipping delivery", logx.Int("messages", len(msgs)))
		rep.Skipped = true
		rep.Err = ErrNoNotifier
		return rep
	}

	// Burst 1: the first message goes out at once, then one per interval.
	lim := rate.NewLimiter(rate.Inf, 1)
	if d.interval > 0 {
		lim = rate.NewLimiter(rate.Every(d.interval), 1)
	}

	for _, m := range msgs {
		if err := lim.Wait(ctx); err != nil {
			d.log.Warn("delivery interrupted", logx.Int("remaining", len(msgs)-rep.Attempted), logx.Err(err))
			rep.Err = err
			break
		}
		rep.Attempted++
		if err := d.notifier.Notify(ctx, m); err != nil {
			rep.Failed++
			d.log.Warn("notification failed", logx.String("key", m.Key), logx.String("reasons", m.Header()), logx.Err(err))
			continue
		}
		rep.Delivered++
		d.log.Debug("notification sent", logx.String("key", m.Key), logx.String("reasons", m.Header()))
	}
	return rep
}
