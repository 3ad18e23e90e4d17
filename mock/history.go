package mock

import (
	"context"
	"time"

	"github.com/fwojciec/otokit"
)

var _ otokit.RunHistory = (*RunHistory)(nil)

// RunHistory is a mock implementation of otokit.RunHistory.
type RunHistory struct {
	CreateRunFn   func(ctx context.Context, rec *otokit.RunRecord) error
	FindRunByIDFn func(ctx context.Context, id string) (*otokit.RunRecord, error)
	FindRunsFn    func(ctx context.Context, filter otokit.RunFilter) ([]*otokit.RunRecord, error)
	FinishRunFn   func(ctx context.Context, id string, upd otokit.RunUpdate) (*otokit.RunRecord, error)
	DeleteRunsFn  func(ctx context.Context, before time.Time) (int, error)
}

func (h *RunHistory) CreateRun(ctx context.Context, rec *otokit.RunRecord) error {
	return h.CreateRunFn(ctx, rec)
}

func (h *RunHistory) FindRunByID(ctx context.Context, id string) (*otokit.RunRecord, error) {
	return h.FindRunByIDFn(ctx, id)
}

func (h *RunHistory) FindRuns(ctx context.Context, filter otokit.RunFilter) ([]*otokit.RunRecord, error) {
	return h.FindRunsFn(ctx, filter)
}

func (h *RunHistory) FinishRun(ctx context.Context, id string, upd otokit.RunUpdate) (*otokit.RunRecord, error) {
	return h.FinishRunFn(ctx, id, upd)
}

func (h *RunHistory) DeleteRuns(ctx context.Context, before time.Time) (int, error) {
	return h.DeleteRunsFn(ctx, before)
}
