package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/presi/internal/core"
)

const defaultEventLimit = 100

// Journal appends every spooler event to the events table.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewJournal(db *sql.DB, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{db: db, logger: logger.With(zap.String("component", "journal"))}
}

// Notify implements core.Observer. Write failures are logged and never
// reach the spooler.
func (j *Journal) Notify(e core.Event) {
	if err := j.Record(context.Background(), e); err != nil {
		j.logger.Warn("failed to journal event", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

func (j *Journal) Record(ctx context.Context, e core.Event) error {
	var (
		jobID, exitStatus, group *int
		printer, status          string
	)

	switch e.Kind {
	case core.EventPrinterDefined, core.EventPrinterStatus:
		printer = e.Printer
		status = string(e.PrinterStatus)
	case core.EventTypeDefined, core.EventConversionDefined:
	default:
		id := e.JobID
		jobID = &id
		printer = e.Printer
		status = string(e.JobStatus)
		if e.Kind == core.EventJobStarted && e.Group > 0 {
			g := e.Group
			group = &g
		}
		if e.Kind == core.EventJobFinished || e.Kind == core.EventJobAborted {
			s := e.ExitStatus
			exitStatus = &s
		}
	}

	detail, err := json.Marshal(eventDetail(e))
	if err != nil {
		return fmt.Errorf("failed to encode event detail: %w", err)
	}

	occurred := e.Time
	if occurred.IsZero() {
		occurred = time.Now()
	}

	_, err = j.db.ExecContext(ctx, InsertEvent,
		string(e.Kind), occurred.UTC(), jobID, printer, status, exitStatus, group, string(detail))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func eventDetail(e core.Event) map[string]any {
	d := map[string]any{}
	if e.TypeName != "" {
		d["type"] = e.TypeName
	}
	if e.FromType != "" {
		d["from"] = e.FromType
		d["to"] = e.ToType
	}
	if e.PrinterType != "" {
		d["printer_type"] = e.PrinterType
	}
	if e.FileName != "" {
		d["file"] = e.FileName
		d["file_type"] = e.FileType
	}
	if len(e.Commands) > 0 {
		d["commands"] = e.Commands
	}
	return d
}

// Events returns the newest matching events first.
func (j *Journal) Events(ctx context.Context, f EventFilter) ([]*EventRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	rows, err := j.db.QueryContext(ctx, ListEvents, f.JobID, f.JobID, f.Kind, f.Kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		r := &EventRecord{}
		var (
			jobID, exitStatus, group sql.NullInt64
			printer, status          sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.OccurredAt, &jobID, &printer, &status, &exitStatus, &group, &r.DetailJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		r.JobID = nullInt(jobID)
		r.ExitStatus = nullInt(exitStatus)
		r.ProcessGroup = nullInt(group)
		r.Printer = printer.String
		r.Status = status.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, CountEvents).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Prune deletes events that occurred before cutoff and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, DeleteEventsBefore, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	if n > 0 {
		j.logger.Info("pruned journal", zap.Int64("events", n), zap.Time("before", cutoff))
	}
	return n, nil
}

// RunPruner prunes events older than retention once a day until ctx is
// done.
func (j *Journal) RunPruner(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if _, err := j.Prune(ctx, time.Now().Add(-retention)); err != nil {
			j.logger.Warn("journal prune failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
