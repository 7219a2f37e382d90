package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("wrap: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rebuild busy", ErrRebuildInProgress, http.StatusConflict},
		{"shape", Shapef("want %d got %d", 3, 2), http.StatusUnprocessableEntity},
		{"index missing", ErrIndexNotLoaded, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIOfKeepsBothChains(t *testing.T) {
	err := IOf(fs.ErrPermission, "writing %s", "/x")
	if !errors.Is(err, ErrIO) {
		t.Error("expected ErrIO in chain")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("expected cause in chain")
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("nil should exit 0")
	}
	if ExitCode(fmt.Errorf("read: %w", ErrMissingFeedback)) != 0 {
		t.Error("missing feedback is informational")
	}
	if ExitCode(Shapef("bad")) != 1 {
		t.Error("shape error should exit 1")
	}
}
