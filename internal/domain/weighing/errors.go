package weighing

import "errors"

var (
	// ErrNotFound is returned when an event or document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMatched is returned by the pairing transaction when one of
	// the events was claimed by a concurrent match.
	ErrAlreadyMatched = errors.New("event already matched")
)
