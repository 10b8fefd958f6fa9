package core

import (
	"testing"
	"time"
)

func TestTooOld(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	threshold := 24 * time.Hour

	cases := []struct {
		name string
		sent int64
		want bool
	}{
		{"fresh message", now.Add(-time.Minute).Unix(), false},
		{"exactly at threshold", now.Add(-threshold).Unix(), false},
		{"just past threshold", now.Add(-threshold - time.Second).Unix(), true},
		{"days old", now.Add(-72 * time.Hour).Unix(), true},
		{"missing timestamp", 0, false},
		{"future timestamp", now.Add(time.Hour).Unix(), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TooOld(tc.sent, now, threshold); got != tc.want {
				t.Errorf("TooOld(%d) = %v, want %v", tc.sent, got, tc.want)
			}
		})
	}
}
