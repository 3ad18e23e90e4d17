package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fwojciec/otokit"
)

// Compile-time interface verification.
var _ otokit.RunHistory = (*RunHistory)(nil)

// RunHistory implements otokit.RunHistory using SQLite.
type RunHistory struct {
	db  *DB
	now func() time.Time
}

// NewRunHistory creates a new RunHistory.
func NewRunHistory(db *DB) *RunHistory {
	return &RunHistory{db: db, now: time.Now}
}

const runColumns = "id, game, difficulties, state, error_code, error_message, started_at, finished_at"

// CreateRun records the start of a run. A zero StartedAt is set to now.
func (s *RunHistory) CreateRun(ctx context.Context, rec *otokit.RunRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, int(rec.Game), formatDifficulties(rec.Difficulties), rec.State,
		rec.ErrorCode, rec.ErrorMessage, formatTime(rec.StartedAt), formatTime(rec.FinishedAt))
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otokit.Errorf(otokit.ECONFLICT, "run %s already recorded", rec.ID)
	}
	return nil
}

// FindRunByID retrieves a run by ID.
func (s *RunHistory) FindRunByID(ctx context.Context, id string) (*otokit.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, otokit.Errorf(otokit.ENOTFOUND, "run not found")
	}
	return rec, err
}

// FindRuns retrieves runs matching the filter, newest first.
func (s *RunHistory) FindRuns(ctx context.Context, filter otokit.RunFilter) ([]*otokit.RunRecord, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + runColumns + " FROM runs WHERE 1=1")

	if filter.Game != nil {
		query.WriteString(" AND game = ?")
		args = append(args, int(*filter.Game))
	}
	if filter.State != nil {
		query.WriteString(" AND state = ?")
		args = append(args, *filter.State)
	}

	query.WriteString(" ORDER BY started_at DESC, rowid DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*otokit.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}

	return runs, rows.Err()
}

// FinishRun records the terminal state and error of a run.
func (s *RunHistory) FinishRun(ctx context.Context, id string, upd otokit.RunUpdate) (*otokit.RunRecord, error) {
	rec, err := s.FindRunByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.State == "" {
		return nil, otokit.Errorf(otokit.EINVALID, "run state required")
	}
	rec.State = upd.State
	rec.ErrorCode = otokit.ErrorCode(upd.Err)
	rec.ErrorMessage = otokit.ErrorMessage(upd.Err)
	rec.FinishedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, error_code = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, rec.State, rec.ErrorCode, rec.ErrorMessage, formatTime(rec.FinishedAt), id)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// DeleteRuns removes runs started before the given time.
func (s *RunHistory) DeleteRuns(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", formatTime(before))
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*otokit.RunRecord, error) {
	var rec otokit.RunRecord
	var game int
	var difficulties, startedAt, finishedAt string

	if err := row.Scan(&rec.ID, &game, &difficulties, &rec.State,
		&rec.ErrorCode, &rec.ErrorMessage, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.Game = otokit.Game(game)

	var err error
	if rec.Difficulties, err = parseDifficulties(difficulties); err != nil {
		return nil, err
	}
	if rec.StartedAt, err = parseTime(startedAt, "started_at"); err != nil {
		return nil, err
	}
	if rec.FinishedAt, err = parseTime(finishedAt, "finished_at"); err != nil {
		return nil, err
	}
	return &rec, nil
}
