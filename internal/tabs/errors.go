package tabs

import (
	"errors"
	"fmt"
)

var (
	// ErrLastSession is matched by the error CloseSession returns when asked
	// to remove the only remaining tab.
	ErrLastSession = errors.New("cannot close the last session")
	// ErrUnknownSession is returned for ids the registry does not hold.
	ErrUnknownSession = errors.New("unknown session")
)

// LastSessionError is the refusal returned by CloseSession on the last tab.
type LastSessionError struct {
	ID string
}

func (e *LastSessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.ID, ErrLastSession)
}

func (e *LastSessionError) Unwrap() error { return ErrLastSession }
