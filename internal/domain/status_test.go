package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOverallStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want OverallStatus
	}{
		{"not_started", OverallStatusNotStarted},
		{"Not started", OverallStatusNotStarted},
		{"", OverallStatusNotStarted},
		{"in_progress", OverallStatusInProgress},
		{"In-Progress", OverallStatusInProgress},
		{"completed", OverallStatusCompleted},
		{"Complete", OverallStatusCompleted},
		{"failed", OverallStatusFailed},
		{"FAILURE", OverallStatusFailed},
	}

	for _, tc := range tests {
		got, err := ParseOverallStatus(tc.raw)
		assert.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseOverallStatus("paused")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestParseUnitStatus(t *testing.T) {
	t.Parallel()

	got, err := ParseUnitStatus("In progress")
	assert.NoError(t, err)
	assert.Equal(t, UnitStatusInProgress, got)

	got, err = ParseUnitStatus("done")
	assert.NoError(t, err)
	assert.Equal(t, UnitStatusCompleted, got)

	_, err = ParseUnitStatus("not started")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseUnitStatus("")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestStatusTerminality(t *testing.T) {
	t.Parallel()

	assert.False(t, OverallStatusNotStarted.IsTerminal())
	assert.False(t, OverallStatusInProgress.IsTerminal())
	assert.True(t, OverallStatusCompleted.IsTerminal())
	assert.True(t, OverallStatusFailed.IsTerminal())

	assert.False(t, UnitStatusInProgress.IsTerminal())
	assert.True(t, UnitStatusCompleted.IsTerminal())
	assert.True(t, UnitStatusFailed.IsTerminal())

	assert.Equal(t, UnitStatusCompleted, UnitStatusFromOutcome(true))
	assert.Equal(t, UnitStatusFailed, UnitStatusFromOutcome(false))
	assert.Equal(t, OverallStatusCompleted, OverallStatusFromOutcome(true))
	assert.Equal(t, OverallStatusFailed, OverallStatusFromOutcome(false))
}
