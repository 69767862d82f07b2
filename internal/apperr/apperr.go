package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure returned by the recorder operations
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindDeviceUnavailable
	KindInitFailed
	KindAlreadyActive
	KindNotActive
	KindFileNotFound
	KindIOTransient
	KindIOFatal
	KindInvalidName
	KindInUse
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindInitFailed:
		return "InitFailed"
	case KindAlreadyActive:
		return "AlreadyActive"
	case KindNotActive:
		return "NotActive"
	case KindFileNotFound:
		return "FileNotFound"
	case KindIOTransient:
		return "IOErrorTransient"
	case KindIOFatal:
		return "IOErrorFatal"
	case KindInvalidName:
		return "InvalidName"
	case KindInUse:
		return "InUse"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrDeviceUnavailable = &Error{Kind: KindDeviceUnavailable}
	ErrInitFailed        = &Error{Kind: KindInitFailed}
	ErrAlreadyActive     = &Error{Kind: KindAlreadyActive}
	ErrNotActive         = &Error{Kind: KindNotActive}
	ErrFileNotFound      = &Error{Kind: KindFileNotFound}
	ErrIOTransient       = &Error{Kind: KindIOTransient}
	ErrIOFatal           = &Error{Kind: KindIOFatal}
	ErrInvalidName       = &Error{Kind: KindInvalidName}
	ErrInUse             = &Error{Kind: KindInUse}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

// Error is a tagged failure. Op names the operation that failed
// (e.g. "start capture") and Err carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds a tagged error for op wrapping err (which may be nil)
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message renders err as a short sentence suitable for showing to a user
func Message(err error) string {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindPermissionDenied:
		return "Microphone permission was denied"
	case KindDeviceUnavailable:
		return "The microphone is busy or not present"
	case KindInitFailed:
		return "The audio device could not be initialised"
	case KindAlreadyActive:
		return "Already running"
	case KindNotActive:
		return "Nothing to stop"
	case KindFileNotFound:
		return "Recording not found"
	case KindIOTransient:
		return "A temporary storage error occurred, some audio may be missing"
	case KindIOFatal:
		return "Audio stream failed and was stopped"
	case KindInvalidName:
		return "Invalid recording name"
	case KindInUse:
		return "Recording is in use"
	case KindUnsupported:
		return "Not supported on this system"
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
