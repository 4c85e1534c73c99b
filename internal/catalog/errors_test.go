package catalog

import (
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: dataset x", ErrNotFound), "not_found"},
		{fmt.Errorf("%w: bad json", ErrParse), "parse"},
		{fmt.Errorf("%w: failed to write: %w", ErrStorage, fmt.Errorf("disk full")), "storage"},
		{ErrUnavailable, "unavailable"},
		{ErrTimeout, "remote"},
		{fmt.Errorf("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(fmt.Errorf("refresh: %w", ErrUnavailable)) {
		t.Error("missing credentials should not be retryable")
	}
	if !IsRetryable(fmt.Errorf("refresh: %w", ErrTimeout)) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(fmt.Errorf("%w: bad ranking", ErrParse)) {
		t.Error("parse errors should not be retryable")
	}
}
