package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestVenueErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	ve := NewVenueError("alpha", "fetch_ticker", VenueErrTransient, inner)

	wrapped := fmt.Errorf("ingest: %w", ve)
	got, ok := AsVenueError(wrapped)
	if !ok {
		t.Fatal("AsVenueError failed through wrapping")
	}
	if got.Venue != "alpha" || got.Kind != VenueErrTransient {
		t.Fatalf("unexpected venue error: %+v", got)
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("inner error lost")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		kind VenueErrorKind
		want bool
	}{
		{VenueErrTransient, true},
		{VenueErrRateLimited, true},
		{VenueErrAuth, false},
		{VenueErrPermanent, false},
		{VenueErrNotFound, false},
	}
	for _, tc := range cases {
		err := NewVenueError("alpha", "place_order", tc.kind, nil)
		if got := IsRetryable(err); got != tc.want {
			t.Fatalf("IsRetryable(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}
