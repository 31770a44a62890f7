package bridge

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned when a command is sent while no extension
// connection is active.
var ErrNotConnected = errors.New("bridge extension not connected")

// CommandTimeoutError reports that the extension did not respond to a command
// within the configured window. The waiter has already been cleaned up when
// this is returned; a response arriving later is silently dropped.
type CommandTimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s", e.Method, e.Timeout)
}

// RemoteError is a failure reported by the extension itself: success=false,
// or a narrower sub-flag (clicked/typed) false despite top-level success.
type RemoteError struct {
	Method string
	// Element is the highlight index the command targeted, or -1 when the
	// command was not element-addressed.
	Element int
	Reason  string
}

func (e *RemoteError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	if e.Element >= 0 {
		return fmt.Sprintf("%s failed for element %d: %s", e.Method, e.Element, reason)
	}
	return fmt.Sprintf("%s failed: %s", e.Method, reason)
}
