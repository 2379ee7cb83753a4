package rpz

import "errors"

var (
	// ErrInvalidTrigger reports a malformed trigger name. Only the record
	// carrying it should be skipped.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrOutOfMemory reports that an index would grow past its node limit.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrAlreadyPresent reports an add of bits that were already set.
	ErrAlreadyPresent = errors.New("trigger already present")

	// ErrNotFound reports a delete of bits that were not set.
	ErrNotFound = errors.New("trigger not found")

	// ErrBadZone reports a zone ID outside 0..MaxZones-1.
	ErrBadZone = errors.New("zone id out of range")

	// ErrZoneExists reports a registration over an occupied slot.
	ErrZoneExists = errors.New("zone already registered")

	// ErrUnknownZone reports an operation on an empty slot.
	ErrUnknownZone = errors.New("zone not registered")

	// ErrClosed reports use of a context whose last reference was dropped.
	ErrClosed = errors.New("zones context closed")
)
