package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a SeenRecord.
type Status string

const (
	// StatusNone stands for "no record" in transition guards. It is never persisted.
	StatusNone Status = ""

	StatusClaimed   Status = "claimed"
	StatusScored    Status = "scored"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Statuses lists every persistable status.
var Statuses = []Status{StatusClaimed, StatusScored, StatusPublished, StatusRejected, StatusFailed}

// Final reports whether no further transition is expected from s.
func (s Status) Final() bool {
	return s == StatusPublished || s == StatusRejected
}

func (s Status) String() string {
	if s == StatusNone {
		return "none"
	}
	return string(s)
}

// ParseStatus converts user input into a persistable status.
func ParseStatus(raw string) (Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown status %q", raw)
}
