package domain

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OverviewUnitKey is the reserved unit key under which the repository-level
// overview step records its status. It cannot collide with a source path.
const OverviewUnitKey = "@overview"

// JobStatus is the persisted, mutable status record of one generation job.
// There is at most one record per repository ID.
type JobStatus struct {
	// ID is the storage-assigned identity of the record.
	ID int64 `json:"id"`

	// RepositoryID is the opaque location the units were listed from.
	RepositoryID string `json:"repository_id"`

	// Generation identifies the job run that owns this record. Writes carrying
	// any other generation are rejected by the stores.
	Generation uuid.UUID `json:"generation"`

	OverallStatus OverallStatus         `json:"overall_status"`
	UnitStatus    map[string]UnitStatus `json:"unit_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnitCounts summarizes per-unit outcomes so callers can tell a fully
// successful job from a partially successful one.
type UnitCounts struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// NewJobStatus creates a fresh in-progress record for a new job.
func NewJobStatus(repositoryID string, generation uuid.UUID) (*JobStatus, error) {
	if err := ValidateRepositoryID(repositoryID); err != nil {
		return nil, err
	}
	if generation == uuid.Nil {
		return nil, fmt.Errorf("%w: generation cannot be nil", ErrValidation)
	}
	now := time.Now().UTC()
	return &JobStatus{
		RepositoryID:  repositoryID,
		Generation:    generation,
		OverallStatus: OverallStatusInProgress,
		UnitStatus:    make(map[string]UnitStatus),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Counts tallies source units. The overview entry is reported separately by
// OverviewStatus and is not part of the counts.
func (j *JobStatus) Counts() UnitCounts {
	var c UnitCounts
	for key, st := range j.UnitStatus {
		if key == OverviewUnitKey {
			continue
		}
		c.Total++
		switch st {
		case UnitStatusInProgress:
			c.InProgress++
		case UnitStatusCompleted:
			c.Completed++
		case UnitStatusFailed:
			c.Failed++
		}
	}
	return c
}

// OverviewStatus returns the status of the overview step and whether it has
// been started at all.
func (j *JobStatus) OverviewStatus() (UnitStatus, bool) {
	st, ok := j.UnitStatus[OverviewUnitKey]
	return st, ok
}

// AllUnitsTerminal reports whether every known unit, including the overview,
// has reached a terminal state.
func (j *JobStatus) AllUnitsTerminal() bool {
	for _, st := range j.UnitStatus {
		if !st.IsTerminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy safe to hand to callers.
func (j *JobStatus) Clone() *JobStatus {
	if j == nil {
		return nil
	}
	cp := *j
	cp.UnitStatus = make(map[string]UnitStatus, len(j.UnitStatus))
	for k, v := range j.UnitStatus {
		cp.UnitStatus[k] = v
	}
	return &cp
}

// ValidateRepositoryID checks that a repository identifier is usable as a key.
func ValidateRepositoryID(repositoryID string) error {
	if strings.TrimSpace(repositoryID) == "" {
		return ErrEmptyRepositoryID
	}
	return nil
}

// ValidateUnitKey checks that a source unit key is usable.
func ValidateUnitKey(unitKey string) error {
	if unitKey == "" {
		return ErrEmptyUnitKey
	}
	if unitKey == OverviewUnitKey {
		return fmt.Errorf("%w: %s", ErrReservedUnitKey, unitKey)
	}
	return nil
}

// RepositoryName derives a display name from a repository identifier, e.g.
// "https://github.com/acme/widgets" and "s3://bucket/acme/widgets/" both
// yield "widgets".
func RepositoryName(repositoryID string) string {
	id := strings.TrimSpace(repositoryID)
	if i := strings.Index(id, "://"); i >= 0 {
		id = id[i+3:]
	}
	id = strings.TrimSuffix(strings.TrimRight(id, "/"), ".git")
	if id == "" {
		return ""
	}
	return path.Base(id)
}
