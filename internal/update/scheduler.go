package update

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	apperrors "notepad/internal/errors"
	"notepad/internal/events"
)

// DefaultCheckInterval is the time between background checks.
const DefaultCheckInterval = time.Hour

// ErrAlreadyRunning is returned by Start when a loop is already active.
var ErrAlreadyRunning = apperrors.New(apperrors.CodeState, "update checker is already running", nil)

// Scheduler runs the resolver on a fixed interval in the background and
// emits update-available when a newer release is found. At most one loop is
// active at a time.
//
// The running flag is guarded by mu, which is never held across I/O. Stop
// cancels the loop and waits for it, so shutdown does not wait for a tick.
type Scheduler struct {
	resolver ReleaseResolver
	emitter  events.Emitter
	clock    clockwork.Clock
	log      *log.Entry
	onCheck  func(VersionInfo, error)

	mu       sync.Mutex
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	reset    chan time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between checks. Non-positive values are ignored.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSchedulerLogger sets the logger used for diagnostics.
func WithSchedulerLogger(entry *log.Entry) SchedulerOption {
	return func(s *Scheduler) {
		if entry != nil {
			s.log = entry
		}
	}
}

// WithCheckHook registers a function called after every background check.
func WithCheckHook(fn func(VersionInfo, error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onCheck = fn
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(resolver ReleaseResolver, emitter events.Emitter, opts ...SchedulerOption) *Scheduler {
	if emitter == nil {
		emitter = events.Discard
	}
	s := &Scheduler{
		resolver: resolver,
		emitter:  emitter,
		clock:    clockwork.NewRealClock(),
		log:      log.NewEntry(log.StandardLogger()),
		interval: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins periodic checking. The first check runs immediately. Calling
// Start while running returns ErrAlreadyRunning and leaves the existing loop
// and its interval untouched. The loop also ends when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	reset := make(chan time.Duration, 1)
	s.running = true
	s.cancel = cancel
	s.done = done
	s.reset = reset
	interval := s.interval
	s.mu.Unlock()

	s.log.WithField("interval", interval).Info("update checker started")
	go s.loop(loopCtx, interval, reset, done)
	return nil
}

// Stop clears the running flag, cancels the loop and waits for it to exit.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("update checker stopped")
}

// Running reports whether periodic checking is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the configured check interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the check interval. A running loop picks it up
// without restarting.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval == d {
		return
	}
	s.interval = d
	if s.running {
		// Replace any pending value; only the latest interval matters.
		select {
		case <-s.reset:
		default:
		}
		s.reset <- d
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration, done chan struct{}) {
	defer close(done)
	defer s.finish(done)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	if !s.tick(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.Chan():
			if !s.tick(ctx) {
				return
			}
		}
	}
}

// finish clears the flag when the loop ends on its own (parent context
// cancelled) so a later Start can succeed.
func (s *Scheduler) finish(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.running = false
		s.cancel = nil
	}
}

// tick re-reads the running flag and, if still set, runs one check. It
// reports whether the loop should continue.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.Running() || ctx.Err() != nil {
		return false
	}

	info, err := s.resolver.Resolve(ctx)
	if ctx.Err() != nil {
		return false
	}
	if s.onCheck != nil {
		s.onCheck(info, err)
	}
	if err != nil {
		s.log.WithError(err).Warn("background update check failed")
		return true
	}
	if info.HasUpdate {
		s.log.WithField("latest", info.LatestVersion).Info("update available")
		s.emitter.Emit(events.UpdateAvailable, info)
	}
	return true
}
