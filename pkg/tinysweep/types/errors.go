package types

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindConfiguration is a fatal setup problem raised before processing starts.
	KindConfiguration Kind = iota
	// KindUnsupportedInput is raised for a record whose content is streamed.
	KindUnsupportedInput
	// KindService is an error code reported by the compression service.
	KindService
	// KindTransport is a network or decoding failure during upload.
	KindTransport
	// KindDownload is a failure fetching the compressed output.
	KindDownload
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUnsupportedInput:
		return "unsupported_input"
	case KindService:
		return "service"
	case KindTransport:
		return "transport"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind, usable with errors.Is.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrService          = errors.New("service error")
	ErrTransport        = errors.New("transport error")
	ErrDownload         = errors.New("download error")
)

// Error is the tagged error used across tinysweep.
// Human-readable text is produced only by Error().
type Error struct {
	Kind Kind

	// Path is the relative path of the file the error belongs to, if any.
	Path string

	// Code is the service error code (KindService only).
	Code string

	// URL is the download target (KindDownload only).
	URL string

	// Message is the explanation: the service table text, or a short description.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error renders the error message.
func (e *Error) Error() string {
	switch e.Kind {
	case KindService:
		return fmt.Sprintf("%s: %s for %s", e.Code, e.Message, e.Path)
	case KindTransport:
		if e.Err != nil {
			return fmt.Sprintf("%s for %s: %v", e.Message, e.Path, e.Err)
		}
		return fmt.Sprintf("%s for %s", e.Message, e.Path)
	case KindDownload:
		if e.Err != nil {
			return fmt.Sprintf("download failed for %s with error: %v", e.URL, e.Err)
		}
		return fmt.Sprintf("download failed for %s", e.URL)
	case KindUnsupportedInput:
		return fmt.Sprintf("%s: %s", e.Message, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindUnsupportedInput:
		return ErrUnsupportedInput
	case KindService:
		return ErrService
	case KindTransport:
		return ErrTransport
	case KindDownload:
		return ErrDownload
	default:
		return nil
	}
}

// ConfigError returns a KindConfiguration error with the given message.
func ConfigError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// KindOf returns the Kind of err and whether err is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
