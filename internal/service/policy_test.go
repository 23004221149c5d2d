package service

import (
	"testing"
	"time"

	"lifesync/internal/config"
)

func TestPolicyFromConfigRateLimitCeiling(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"configured", 5, 5},
		{"zero is unlimited", 0, 0},
		{"negative keeps default", -1, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PolicyFromConfig(config.RetryConfig{MaxRateLimitRetries: tc.in, ServerErrorRetries: 1})
			if p.MaxRateLimitRetries != tc.want {
				t.Fatalf("max_rate_limit_retries=%d want=%d", p.MaxRateLimitRetries, tc.want)
			}
		})
	}
}

func TestPolicyFromConfigKeepsDefaultsForZeroDurations(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxRetryAfter: 2 * time.Minute})
	if p.MaxRetryAfter != 2*time.Minute || p.DefaultRetryAfter != time.Second {
		t.Fatalf("max_retry_after=%v default_retry_after=%v", p.MaxRetryAfter, p.DefaultRetryAfter)
	}
}
