package otokit

import (
	"context"
	"time"
)

// RunRecord is the stored outcome of one run. Credentials and the
// authorization URL are never recorded.
type RunRecord struct {
	ID           string       `json:"id"`
	Game         Game         `json:"game"`
	Difficulties []Difficulty `json:"difficulties"`

	// State is the run state name, e.g. "finished" or "errored".
	State string `json:"state"`

	// ErrorCode and ErrorMessage describe the terminal error, if any.
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Validate returns an error if the record contains invalid fields.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return Errorf(EINVALID, "run id required")
	}
	if r.State == "" {
		return Errorf(EINVALID, "run state required")
	}
	return nil
}

// Finished reports whether the run has ended.
func (r *RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// RunHistory stores past runs.
type RunHistory interface {
	// CreateRun records the start of a run.
	// Returns ECONFLICT if a run with the same ID exists.
	CreateRun(ctx context.Context, rec *RunRecord) error

	// FindRunByID retrieves a run by ID.
	// Returns ENOTFOUND if the run does not exist.
	FindRunByID(ctx context.Context, id string) (*RunRecord, error)

	// FindRuns retrieves runs matching the filter, newest first.
	FindRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// FinishRun records the outcome of a run.
	// Returns ENOTFOUND if the run does not exist.
	FinishRun(ctx context.Context, id string, upd RunUpdate) (*RunRecord, error)

	// DeleteRuns removes runs started before the given time and returns
	// how many were removed.
	DeleteRuns(ctx context.Context, before time.Time) (int, error)
}

// RunFilter represents a filter for FindRuns.
type RunFilter struct {
	Game  *Game   `json:"game"`
	State *string `json:"state"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RunUpdate carries the terminal fields of a run.
type RunUpdate struct {
	State string `json:"state"`

	// Err is the terminal error; nil for a clean finish.
	Err error `json:"-"`
}
