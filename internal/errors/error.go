package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented             = errors.New("this function is not yet implemented")
	ErrInvalidPath                = errors.New("invalid storage path")
	ErrStorageLocationUnavailable = errors.New("storage location unavailable")
	ErrRegistration               = errors.New("registration error")
	ErrConfiguration              = errors.New("configuration error")
	ErrChecksumMismatch           = errors.New("checksum mismatch")
)

// InvalidPathError reports a path that does not exist or has the wrong type for the operation.
func InvalidPathError(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPath, path, reason)
}

// LocationUnavailableError reports a path not covered by any configured location, or a location
// whose backend cannot be reached.
func LocationUnavailableError(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrStorageLocationUnavailable, path, reason)
}

func RegistrationError(path, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrRegistration, path, reason)
}

// ConfigurationError generates a formatted configuration error.
func ConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func ConfigNotSetError(config string) error {
	return ConfigurationError("the %s setting must be set", config)
}
