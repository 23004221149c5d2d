package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKinds(t *testing.T) {
	cases := []struct {
		err   error
		kind  error
		name  string
		fatal bool
	}{
		{Configuration("zaim", "missing %s", "user_id"), ErrConfiguration, "configuration", true},
		{Auth("fitbit", "refresh", errors.New("invalid_grant")), ErrAuth, "auth", true},
		{New(ErrRateLimit, "toggl_track", "gave up", nil), ErrRateLimit, "rate_limit", false},
		{New(ErrTransientServer, "notion", "", nil), ErrTransientServer, "transient_server", false},
		{Validation("missing id"), ErrValidation, "validation", false},
		{Write("upsert", errors.New("deadlock")), ErrWrite, "write", false},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Fatalf("%v is not %v", wrapped, tc.kind)
		}
		if KindName(wrapped) != tc.name {
			t.Fatalf("kind=%s want=%s", KindName(wrapped), tc.name)
		}
		if Fatal(wrapped) != tc.fatal {
			t.Fatalf("%v fatal=%v want=%v", tc.err, Fatal(wrapped), tc.fatal)
		}
	}
	if KindName(errors.New("x")) != "error" || KindName(nil) != "" {
		t.Fatalf("unexpected kind names")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Auth("fitbit", "refresh", errors.New("invalid_grant"))
	if got, want := err.Error(), "auth error [fitbit] refresh: invalid_grant"; got != want {
		t.Fatalf("msg=%q want=%q", got, want)
	}
	inner := errors.New("root")
	if !errors.Is(New(ErrWrite, "", "", inner), inner) {
		t.Fatalf("unwrap lost the cause")
	}
}
