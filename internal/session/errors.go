package session

import "errors"

var (
	// ErrAlreadyRunning is returned by [Session.Run] when the session is
	// already running on another goroutine.
	ErrAlreadyRunning = errors.New("session: already running")

	// ErrFinished is returned by [Session.Step] once the session is done.
	ErrFinished = errors.New("session: finished")
)
