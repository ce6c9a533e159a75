package errors

// Error codes for categorizing errors.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeUnknown indicates an unknown error occurred.
	CodeUnknown = "UNKNOWN"

	// CodeInvalidArgument indicates the caller specified an invalid argument.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates a required service is currently unavailable.
	CodeUnavailable = "UNAVAILABLE"

	// CodeTimeout indicates an operation timed out.
	CodeTimeout = "TIMEOUT"

	// Domain-specific error codes

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeConnectionFailed indicates a change-feed connection could not be
	// opened, or dropped and could not be reopened within the retry budget.
	CodeConnectionFailed = "CONNECTION_FAILED"

	// CodeMalformedEvent indicates a change event arrived without the
	// identity fields its event type requires.
	CodeMalformedEvent = "MALFORMED_EVENT"

	// CodeChannelClosed indicates an operation was attempted against a
	// channel that has already been closed.
	CodeChannelClosed = "CHANNEL_CLOSED"
)

// CodeFromError extracts the error code from an error.
// Returns CodeUnknown if the error has no code, CodeOK for nil.
func CodeFromError(err error) string {
	if err == nil {
		return CodeOK
	}

	var coded Error
	if As(err, &coded) {
		return coded.Code()
	}

	switch {
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrInvalidInput):
		return CodeInvalidArgument
	case Is(err, ErrTimeout):
		return CodeTimeout
	case Is(err, ErrConnectionFailed):
		return CodeConnectionFailed
	case Is(err, ErrChannelClosed):
		return CodeChannelClosed
	case Is(err, ErrServiceUnavailable):
		return CodeUnavailable
	default:
		return CodeUnknown
	}
}
