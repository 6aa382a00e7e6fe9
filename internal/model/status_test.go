package model

import (
	"encoding/json"
	"testing"
)

// TestStatusString tests the String method of Status.
func TestStatusString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusInProgress, "in_progress"},
		{StatusDone, "done"},
		{StatusError, "error"},
		{Status(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.status.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.status.String(), tc.expected)
			}
		})
	}
}

// TestStatusTerminal tests which statuses are terminal.
func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	if StatusPending.Terminal() || StatusInProgress.Terminal() {
		t.Error("pending and in_progress must not be terminal")
	}
	if !StatusDone.Terminal() || !StatusError.Terminal() {
		t.Error("done and error must be terminal")
	}
}

// TestParseStatus tests parsing of status names.
func TestParseStatus(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusPending, StatusInProgress, StatusDone, StatusError} {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %v, expected %v", s.String(), got, s)
		}
	}

	if _, err := ParseStatus("finished"); err == nil {
		t.Error("expected error for unknown status")
	}
}

// TestStatusJSON tests that statuses are encoded by name.
func TestStatusJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(StatusInProgress)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `"in_progress"` {
		t.Errorf("got %s, expected \"in_progress\"", data)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"bogus"`), &s); err == nil {
		t.Error("expected error for unknown status name")
	}
}
