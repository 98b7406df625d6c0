package session

import "time"

type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

// Scheduler runs f once after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}
