package config

import (
	"os"
	"strings"
)

// StrictSyncDedupe enforces the open-attempt uniqueness guard on enqueue:
// entities that already have a pending/processing sync record are skipped
// instead of being queued again.
//
// Set via env:
// - STRICT_SYNC_DEDUPE=false to restore queue-without-checking behaviour
func StrictSyncDedupe() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_SYNC_DEDUPE")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// MilestoneSchedulerEnabled gates the scheduled milestone-to-invoice batch job.
//
// Set via env:
// - MILESTONE_SCHEDULER_ENABLED=false to disable the job endpoint entirely
func MilestoneSchedulerEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MILESTONE_SCHEDULER_ENABLED")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
