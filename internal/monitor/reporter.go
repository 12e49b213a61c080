package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"solana-sweeper/internal/notify"
)

// DefaultReportInterval is the cadence of the aggregate report.
const DefaultReportInterval = 5 * time.Minute

// Reporter periodically sends the aggregate health report to the owner of
// the active session. Individual failures are only visible here.
type Reporter struct {
	interval time.Duration
	snapshot func() Snapshot
	notifier notify.Notifier
	logger   *log.Logger

	mu     sync.Mutex
	owner  string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReporter creates a Reporter.
func NewReporter(interval time.Duration, snapshot func() Snapshot, notifier notify.Notifier, logger *log.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{
		interval: interval,
		snapshot: snapshot,
		notifier: notifier,
		logger:   logger,
	}
}

// Start begins reporting to owner, replacing a running schedule.
func (r *Reporter) Start(owner string) {
	r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.owner = owner
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.loop(ctx, owner, done)
}

// Stop ends the schedule and waits for an in-flight report.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done, r.owner = nil, nil, ""
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Running reports whether a schedule is active.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Reporter) loop(ctx context.Context, owner string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Emit(ctx, owner)
		}
	}
}

// Emit sends one report to owner. Nothing is sent when no account is
// monitored. It reports whether a report was sent.
func (r *Reporter) Emit(ctx context.Context, owner string) bool {
	snap := r.snapshot()
	if snap.Total == 0 {
		return false
	}

	err := notify.Send(ctx, r.notifier, notify.Message{
		Owner: owner,
		Kind:  notify.KindReport,
		Text:  notify.ReportText(snap.Active, snap.Retired),
	})
	if err != nil {
		r.logger.Printf("send report to %s: %v", owner, err)
		return false
	}
	return true
}
