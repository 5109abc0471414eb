package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{"invalid path", InvalidPathError("/data/a.txt", "does not exist"), ErrInvalidPath, "/data/a.txt"},
		{"location unavailable", LocationUnavailableError("/nowhere", "no location"), ErrStorageLocationUnavailable, "no location"},
		{"registration", RegistrationError("/data/b.txt", "not registered"), ErrRegistration, "not registered"},
		{"configuration", ConfigurationError("bad duration %q", "5 boxes"), ErrConfiguration, "5 boxes"},
		{"config not set", ConfigNotSetError("index.path"), ErrConfiguration, "index.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("expected %v to wrap %v", tt.err, tt.sentinel)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, tt.err.Error())
			}
		})
	}
}
