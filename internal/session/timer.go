package session

import "time"

// timer is a cancellable handle for a callback that runs inside the session
// loop. A firing is delivered as a message, so it may arrive after Cancel;
// such stale firings are dropped. timer fields are only touched by the loop.
type timer struct {
	t     *time.Timer
	fn    func()
	fired bool
}

// Cancel stops the timer. It is safe to call on nil, repeatedly, and after
// the timer fired.
func (t *timer) Cancel() {
	if t == nil {
		return
	}
	t.fired = true
	t.t.Stop()
}

// active reports whether the timer can still fire.
func (t *timer) active() bool {
	return t != nil && !t.fired
}

// timerMsg delivers a firing to the loop.
type timerMsg struct {
	timer *timer
}

// after schedules fn to run inside the loop once d has elapsed.
func (s *Session) after(d time.Duration, fn func()) *timer {
	tm := &timer{fn: fn}
	tm.t = time.AfterFunc(d, func() {
		s.post(timerMsg{timer: tm})
	})
	return tm
}

func (s *Session) fire(tm *timer) {
	if !tm.active() {
		return
	}
	tm.fired = true
	tm.fn()
}
