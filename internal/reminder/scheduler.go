package reminder

import "time"

// Timer is a pending scheduled task.
type Timer interface {
	// Stop cancels the task. It reports false if the task already ran or was
	// stopped.
	Stop() bool
}

// Scheduler runs f once after d. The engine keeps at most one Timer pending
// and only schedules the next one after the current cycle has finished.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

// NewScheduler returns a Scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return timeScheduler{}
}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
