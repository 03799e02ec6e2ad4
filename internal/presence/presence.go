// Package presence derives a user's visible status from heartbeat data.
package presence

import (
	"time"

	"github.com/crlx1q/antimat/internal/models"
)

// Window is how long a heartbeat keeps a user online. A heartbeat exactly
// Window old no longer counts.
const Window = 120 * time.Second

type Status string

const (
	StatusOnline    Status = "online"
	StatusRecording Status = "recording"
	StatusOffline   Status = "offline"
)

// Overrides replace stored inputs, typically with the values a heartbeat is
// about to write.
type Overrides struct {
	LastSeen  *time.Time
	Recording *bool
}

func Compute(lastSeen time.Time, recording bool, now time.Time) Status {
	if lastSeen.IsZero() {
		return StatusOffline
	}
	if now.Sub(lastSeen) >= Window {
		return StatusOffline
	}
	if recording {
		return StatusRecording
	}
	return StatusOnline
}

func ForUser(u models.User, now time.Time, o Overrides) Status {
	var lastSeen time.Time
	if u.LastSeen != nil {
		lastSeen = *u.LastSeen
	}
	if o.LastSeen != nil {
		lastSeen = *o.LastSeen
	}
	recording := u.IsRecording
	if o.Recording != nil {
		recording = *o.Recording
	}
	return Compute(lastSeen, recording, now)
}
