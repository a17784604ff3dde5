package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers every failed exchange with the remote backend:
	// timeouts, refused connections, non-2xx answers and unreadable bodies.
	ErrTransport = errors.New("transport error")

	// ErrUnreachable is a transport error where no answer arrived at all.
	// A pass stops at the first one instead of trying every record.
	ErrUnreachable = fmt.Errorf("%w: remote unreachable", ErrTransport)

	// ErrRemoteIdentifierInvalid is returned when an INSERT answer does not
	// carry a positive integer id.
	ErrRemoteIdentifierInvalid = fmt.Errorf("%w: invalid remote identifier", ErrTransport)

	// ErrNoRemoteID is returned for an UPDATE or DELETE of a record the
	// remote backend has not confirmed yet.
	ErrNoRemoteID = errors.New("record has no remote identifier")
)

// RemoteError is a non-2xx answer from the remote backend.
type RemoteError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("remote %s answered %d: %s", e.URL, e.StatusCode, body)
}

// Unwrap makes every RemoteError an ErrTransport.
func (e *RemoteError) Unwrap() error { return ErrTransport }

// IsTransport reports whether err came from the remote exchange rather than
// the local store.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUnreachable reports whether the remote backend could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
