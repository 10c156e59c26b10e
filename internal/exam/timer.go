package exam

import "time"

// Timed reports whether the exam enforces a duration.
func (e Exam) Timed() bool { return e.TimeLimit && e.DurationMin > 0 }

// Duration is the allotted time, zero when untimed.
func (e Exam) Duration() time.Duration {
	if !e.Timed() {
		return 0
	}
	return time.Duration(e.DurationMin) * time.Minute
}

// Deadline is StartedAt plus the exam duration. ok is false for untimed exams.
func Deadline(e Exam, a Attempt) (time.Time, bool) {
	if !e.Timed() {
		return time.Time{}, false
	}
	return a.StartedAt.Add(e.Duration()), true
}

// RemainingSeconds is the server's view of the countdown: the duration less
// the larger of wall-clock elapsed time and the reported time spent. It never
// grows between calls for the same attempt. nil for untimed exams.
func RemainingSeconds(e Exam, a Attempt, now time.Time) *int {
	if !e.Timed() {
		return nil
	}
	total := int(e.Duration() / time.Second)
	used := elapsedSeconds(a, now)
	if a.TimeSpent > used {
		used = a.TimeSpent
	}
	rem := total - used
	if rem < 0 || a.Status.Terminal() {
		rem = 0
	}
	return &rem
}

// Overdue reports whether a timed attempt is past its deadline plus grace.
func Overdue(e Exam, a Attempt, now time.Time, grace time.Duration) bool {
	d, ok := Deadline(e, a)
	if !ok {
		return false
	}
	return now.After(d.Add(grace))
}

// clampTimeSpent bounds a client-reported time spent: it never goes backwards,
// never below zero and never beyond what the wall clock (plus grace) allows.
func clampTimeSpent(e Exam, a Attempt, reported int, now time.Time, grace time.Duration) int {
	limit := elapsedSeconds(a, now) + int(grace/time.Second)
	if e.Timed() {
		if total := int(e.Duration() / time.Second); total < limit {
			limit = total
		}
	}
	v := reported
	if v > limit {
		v = limit
	}
	if v < a.TimeSpent {
		v = a.TimeSpent
	}
	if v < 0 {
		v = 0
	}
	return v
}

func elapsedSeconds(a Attempt, now time.Time) int {
	d := now.Sub(a.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
