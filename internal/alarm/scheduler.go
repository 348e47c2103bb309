// Package alarm is the port to the OS-level scheduler that fires reminders.
// The core computes (instant, identifier) pairs; this package owns getting
// something to go off at that instant.
package alarm

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler registers absolute-time alarms keyed by identifier. Scheduling
// an identifier that is already registered replaces its firing time.
type Scheduler interface {
	Schedule(id int64, at time.Time)
	Cancel(id int64)
}

// FireFunc is invoked when an alarm goes off.
type FireFunc func(id int64, at time.Time)

// TimerScheduler is an in-process Scheduler backed by one time.Timer per
// alarm id. It covers single-node deployments where the daemon itself is
// the alarm manager.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	fire   FireFunc
	now    func() time.Time
	logger *slog.Logger
	closed bool
}

// NewTimerScheduler constructs a TimerScheduler that invokes fire when an
// alarm goes off. A nil now falls back to time.Now.
func NewTimerScheduler(fire FireFunc, now func() time.Time, logger *slog.Logger) *TimerScheduler {
	if fire == nil {
		fire = func(int64, time.Time) {}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		timers: make(map[int64]*time.Timer),
		fire:   fire,
		now:    now,
		logger: logger,
	}
}

// Schedule registers an alarm. Instants already in the past fire
// immediately; an existing timer for the same id is replaced.
func (s *TimerScheduler) Schedule(id int64, at time.Time) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if existing, ok := s.timers[id]; ok {
		existing.Stop()
		delete(s.timers, id)
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.logger.Debug("alarm fired", "alarm_id", id, "at", at)
		s.fire(id, at)
	})
}

// Cancel stops a pending alarm. Unknown identifiers are ignored.
func (s *TimerScheduler) Cancel(id int64) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Close stops every pending alarm. Subsequent Schedule calls are no-ops.
func (s *TimerScheduler) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Pending reports how many alarms are currently registered.
func (s *TimerScheduler) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
