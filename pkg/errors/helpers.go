package errors

import "errors"

// IsConnectionFailed checks if an error indicates a terminal change-feed
// connection failure.
func IsConnectionFailed(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectionError
	return errors.As(err, &connErr) || errors.Is(err, ErrConnectionFailed)
}

// IsMalformedEvent checks if an error indicates a malformed change event.
func IsMalformedEvent(err error) bool {
	if err == nil {
		return false
	}

	var malformedErr *MalformedEventError
	return errors.As(err, &malformedErr)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound)
}

// IsTimeout checks if an error indicates a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr) || errors.Is(err, ErrTimeout)
}

// IsChannelClosed checks if an error indicates use of a closed channel.
func IsChannelClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrChannelClosed)
}

// IsServiceUnavailable checks if an error indicates a service is unavailable.
func IsServiceUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrServiceUnavailable)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}

	var internalErr *InternalError
	return errors.As(err, &internalErr) || errors.Is(err, ErrInternal)
}
