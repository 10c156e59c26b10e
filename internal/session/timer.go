package session

import (
	"context"
	"errors"
	"time"
)

// Remaining is the countdown in seconds; ok is false for untimed exams.
// The last server value minus the time since it arrived is used when the
// server sent one, otherwise duration − (stored time spent + elapsed).
func (s *Session) Remaining() (secs int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() (int, bool) {
	if !s.exam.Timed() {
		return 0, false
	}
	if s.result != nil {
		return 0, true
	}
	elapsed := s.elapsedLocked()
	if s.serverRemaining != nil {
		return max(0, *s.serverRemaining-elapsed), true
	}
	return max(0, int(s.exam.Duration()/time.Second)-(s.storedSpent+elapsed)), true
}

// TimeSpent is the stored time plus the time since the last snapshot,
// capped at the exam duration.
func (s *Session) TimeSpent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeSpentLocked()
}

func (s *Session) timeSpentLocked() int {
	spent := s.storedSpent + s.elapsedLocked()
	if s.exam.Timed() {
		spent = min(spent, int(s.exam.Duration()/time.Second))
	}
	return spent
}

func (s *Session) elapsedLocked() int {
	d := s.now().Sub(s.snapshotAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Tick advances the session by one clock step: it submits when the
// countdown reached zero and flushes progress once SaveInterval passed.
// Flush failures are logged and dropped. It reports whether the attempt is
// finished.
func (s *Session) Tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		return true
	}
	if s.submitting {
		s.mu.Unlock()
		return false
	}
	remaining, timed := s.remainingLocked()
	due := s.now().Sub(s.lastSave) >= s.saveInterval
	id := s.attempt.ID
	s.mu.Unlock()

	if timed && remaining <= 0 {
		s.log.Info().Str("attempt_id", id).Msg("time is up, submitting")
		if _, err := s.Submit(ctx); err != nil && !errors.Is(err, ErrSubmitInFlight) {
			s.log.Warn().Err(err).Str("attempt_id", id).Msg("auto submit failed")
		}
		return s.Done()
	}
	if due {
		if err := s.Save(ctx); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", id).Msg("progress flush failed")
		}
	}
	return s.Done()
}

// Run ticks every second until the attempt is finished or ctx ends.
// onTick, when set, gets the countdown after every tick.
func (s *Session) Run(ctx context.Context, onTick func(remaining int, timed bool)) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			done := s.Tick(ctx)
			if onTick != nil {
				onTick(s.Remaining())
			}
			if done {
				return nil
			}
		}
	}
}
