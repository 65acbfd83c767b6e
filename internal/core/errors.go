package core

import "errors"

// Static errors shared across the workflow components.
var (
	// ErrEmptyInput indicates synthesis was requested for blank text.
	ErrEmptyInput = errors.New("text is empty after trimming whitespace")
	// ErrUnrecognizedResponse indicates a successful remote call whose body
	// matched no known contract shape.
	ErrUnrecognizedResponse = errors.New("unrecognized synthesis response shape")
	// ErrUnsupportedType indicates an uploaded item that is neither plain
	// text nor a supported archive.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrInvalidTransition indicates a record status change that the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownRecord indicates an operation on a record id that is not in
	// the collection.
	ErrUnknownRecord = errors.New("unknown record")
	// ErrVoiceNotAvailable indicates a selected voice outside the available set.
	ErrVoiceNotAvailable = errors.New("voice is not in the available set")
	// ErrSpeedNotAllowed indicates a speed outside the allowed multiplier set.
	ErrSpeedNotAllowed = errors.New("speed is not an allowed multiplier")
	// ErrKeyNotFound indicates a missing key in the local key-value store.
	ErrKeyNotFound = errors.New("key not found")
)
