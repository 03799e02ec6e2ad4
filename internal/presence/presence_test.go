package presence

import (
	"testing"
	"time"

	"github.com/crlx1q/antimat/internal/models"
)

func TestCompute(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastSeen  time.Time
		recording bool
		want      Status
	}{
		{name: "never seen", lastSeen: time.Time{}, want: StatusOffline},
		{name: "never seen recording", lastSeen: time.Time{}, recording: true, want: StatusOffline},
		{name: "just now", lastSeen: now, want: StatusOnline},
		{name: "recording", lastSeen: now.Add(-10 * time.Second), recording: true, want: StatusRecording},
		{name: "one ms inside window", lastSeen: now.Add(-Window + time.Millisecond), want: StatusOnline},
		{name: "exactly at window", lastSeen: now.Add(-Window), want: StatusOffline},
		{name: "exactly at window recording", lastSeen: now.Add(-Window), recording: true, want: StatusOffline},
		{name: "stale", lastSeen: now.Add(-time.Hour), want: StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.lastSeen, tt.recording, now); got != tt.want {
				t.Errorf("Compute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForUserOverrides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-time.Hour)
	user := models.User{LastSeen: &stale, IsRecording: false}

	if got := ForUser(user, now, Overrides{}); got != StatusOffline {
		t.Fatalf("stored status = %q, want offline", got)
	}

	recording := true
	got := ForUser(user, now, Overrides{LastSeen: &now, Recording: &recording})
	if got != StatusRecording {
		t.Fatalf("overridden status = %q, want recording", got)
	}
}
