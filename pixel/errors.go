package pixel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is returned when a requested encoding does not classify
	// to a valid PixelType.  It is detected before any network call.
	ErrInvalidFormat = errors.New("invalid pixel format")

	// ErrNotWritable is returned for writes or conversions against a sealed array.
	ErrNotWritable = errors.New("pixels are sealed and not writable")

	// ErrNotReadable is returned for reads against an array that is still writable.
	ErrNotReadable = errors.New("pixels are not sealed and not readable")

	// ErrBadAddress is returned when an address is out of order or out of bounds.
	ErrBadAddress = errors.New("bad pixel address")

	// ErrNotFound is returned when the server does not know a pixels or file id.
	ErrNotFound = errors.New("not found")
)

// Reasons sent as the first line of a 409 Conflict response body.
const (
	ReasonNotWritable = "NotWritable"
	ReasonNotReadable = "NotReadable"
)

// TransportError is a non-success status from the pixel server or an I/O
// failure while sending a request or receiving its response.
type TransportError struct {
	Method     string
	StatusCode int    // 0 if the failure happened below HTTP
	Status     string // status text, e.g. "500 Internal Server Error"
	Message    string // first line of the response body, if any
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: transport failure: %v", e.Method, e.Err)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned %s", e.Method, e.Status)
	}
	return fmt.Sprintf("%s: server returned %s: %s", e.Method, e.Status, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when a structured response does not match the
// expected token sequence.
type ProtocolError struct {
	Method   string
	Step     string
	Expected string
	Actual   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol mismatch at %s: expected %s, got %q",
		e.Method, e.Step, e.Expected, e.Actual)
}

// LocalFileError is returned when a local file given as a payload cannot be opened.
type LocalFileError struct {
	Path string
	Err  error
}

func (e *LocalFileError) Error() string {
	return fmt.Sprintf("unable to open local file %q: %v", e.Path, e.Err)
}

func (e *LocalFileError) Unwrap() error {
	return e.Err
}
