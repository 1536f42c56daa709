package hidhost

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// HostOptions configures the run loop.
type HostOptions struct {
	ScanWindow       time.Duration // how long a round may scan before it is cancelled
	Rescan           bool          // start a new round after one ends
	RescanMaxBackoff time.Duration
}

// DefaultHostOptions scans for 15 seconds and does not rescan.
func DefaultHostOptions() HostOptions {
	return HostOptions{
		ScanWindow:       15 * time.Second,
		RescanMaxBackoff: 30 * time.Second,
	}
}

// Host runs discovery rounds and feeds stack events to the dispatcher.
type Host struct {
	disp   *Dispatcher
	events <-chan Event
	opts   HostOptions
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHost creates a Host reading events from the given feed.
func NewHost(disp *Dispatcher, events <-chan Event, opts HostOptions, logger *slog.Logger) *Host {
	if opts.ScanWindow <= 0 {
		opts.ScanWindow = 15 * time.Second
	}
	if opts.RescanMaxBackoff <= 0 {
		opts.RescanMaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{disp: disp, events: events, opts: opts, log: logger, sleep: sleepCtx}
}

// Run starts a discovery round and dispatches events until the round ends,
// ctx is cancelled, or the event feed closes. With Rescan set it keeps
// starting rounds, backing off between rounds that never opened a session.
//
// The scan window is enforced by a timer that races the match-triggered
// cancel; both go through the dispatcher lock and cancellation is
// idempotent, so whichever runs second is a no-op.
func (h *Host) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := h.disp.StartRound(); err != nil {
			return err
		}
		round := h.disp.Round()
		timer := time.AfterFunc(h.opts.ScanWindow, func() {
			_ = h.disp.CancelRound(round, "scan window elapsed")
		})
		err := h.pump(ctx)
		timer.Stop()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !h.opts.Rescan {
			h.log.Info("[HID] discovery round finished")
			return nil
		}

		if h.lastRoundOpened() {
			failures = 0
		}
		delay := backoffDelay(failures, h.opts.RescanMaxBackoff)
		failures++
		h.log.Info("[HID] rescan backoff", "delay", delay)
		if err := h.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// errFeedClosed ends Run when the stack stops delivering events.
var errFeedClosed = errors.New("hidhost: event feed closed")

func (h *Host) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.disp.RoundDone():
			return nil
		case ev, ok := <-h.events:
			if !ok {
				return errFeedClosed
			}
			h.disp.Dispatch(ev)
		}
	}
}

func (h *Host) lastRoundOpened() bool {
	hist := h.disp.History()
	if len(hist) == 0 {
		return false
	}
	last := hist[len(hist)-1]
	return last.Round == h.disp.Round() && last.WasOpen
}

// backoffDelay returns the delay before rescan attempt n, doubling from one
// second and capped at limit.
func backoffDelay(attempt int, limit time.Duration) time.Duration {
	if attempt > 30 {
		return limit
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > limit {
		return limit
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
