package relay

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDirectoryLookupMiss Kind = "directory_lookup_miss"
	KindSendFailure         Kind = "send_failure"
	KindMalformedEvent      Kind = "malformed_event"
	KindStore               Kind = "store_failure"
)

var (
	ErrDirectoryLookupMiss = errors.New("directory lookup miss")
	ErrSendFailure         = errors.New("send failure")
	ErrMalformedEvent      = errors.New("malformed event")
	ErrStore               = errors.New("store failure")
)

// Error is returned for every event the relay could not complete. Op names the
// step that failed, e.g. "resolve_channel" or "send_header".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, relay.ErrSendFailure).
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindDirectoryLookupMiss:
		return ErrDirectoryLookupMiss
	case KindSendFailure:
		return ErrSendFailure
	case KindMalformedEvent:
		return ErrMalformedEvent
	case KindStore:
		return ErrStore
	default:
		return nil
	}
}

// KindOf extracts the kind of a relay error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) && re != nil {
		return re.Kind, true
	}
	return "", false
}

func lookupMiss(op string, format string, args ...any) *Error {
	return &Error{Kind: KindDirectoryLookupMiss, Op: op, Err: fmt.Errorf(format, args...)}
}

func sendFailure(op string, err error) *Error {
	return &Error{Kind: KindSendFailure, Op: op, Err: err}
}

func malformed(op string, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedEvent, Op: op, Err: fmt.Errorf(format, args...)}
}

func storeFailure(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}
