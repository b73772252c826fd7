package domain

import (
	"fmt"
	"strings"
)

// OverallStatus is the job-level lifecycle state.
type OverallStatus string

// Legal job-level states.
const (
	OverallStatusNotStarted OverallStatus = "not_started"
	OverallStatusInProgress OverallStatus = "in_progress"
	OverallStatusCompleted  OverallStatus = "completed"
	OverallStatusFailed     OverallStatus = "failed"
)

// UnitStatus is the lifecycle state of a single unit within a job.
type UnitStatus string

// Legal per-unit states.
const (
	UnitStatusInProgress UnitStatus = "in_progress"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusFailed     UnitStatus = "failed"
)

// IsTerminal reports whether no further transition is expected.
func (s OverallStatus) IsTerminal() bool {
	return s == OverallStatusCompleted || s == OverallStatusFailed
}

// IsTerminal reports whether the unit has finished, successfully or not.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusCompleted || s == UnitStatusFailed
}

// normalizeStatus lowercases and collapses separators so that values written
// by older producers ("Not started", "In-Progress", "complete") can be mapped.
func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// ParseOverallStatus maps a stored value to an OverallStatus.
// Legacy spellings are normalized; anything else yields ErrUnknownStatus.
func ParseOverallStatus(raw string) (OverallStatus, error) {
	switch normalizeStatus(raw) {
	case "not_started", "notstarted", "pending", "":
		return OverallStatusNotStarted, nil
	case "in_progress", "inprogress", "processing", "started", "running":
		return OverallStatusInProgress, nil
	case "completed", "complete", "done", "success":
		return OverallStatusCompleted, nil
	case "failed", "failure", "error":
		return OverallStatusFailed, nil
	}
	return "", fmt.Errorf("%w: overall status %q", ErrUnknownStatus, raw)
}

// ParseUnitStatus maps a stored value to a UnitStatus.
// A unit has no "not started" state: it only exists once a task picked it up.
func ParseUnitStatus(raw string) (UnitStatus, error) {
	switch normalizeStatus(raw) {
	case "in_progress", "inprogress", "processing", "started", "running":
		return UnitStatusInProgress, nil
	case "completed", "complete", "done", "success":
		return UnitStatusCompleted, nil
	case "failed", "failure", "error":
		return UnitStatusFailed, nil
	}
	return "", fmt.Errorf("%w: unit status %q", ErrUnknownStatus, raw)
}

// UnitStatusFromOutcome returns the terminal status for a task outcome.
func UnitStatusFromOutcome(success bool) UnitStatus {
	if success {
		return UnitStatusCompleted
	}
	return UnitStatusFailed
}

// OverallStatusFromOutcome returns the terminal job status for a job outcome.
func OverallStatusFromOutcome(success bool) OverallStatus {
	if success {
		return OverallStatusCompleted
	}
	return OverallStatusFailed
}
