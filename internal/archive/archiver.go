// Package archive moves expired journal events into monthly sqlite files
// before they are removed from the live journal.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	filePrefix = "events_"
	fileSuffix = ".db"
)

const archiveSchema = `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		job_id INTEGER,
		printer TEXT,
		status TEXT,
		exit_status INTEGER,
		process_group INTEGER,
		detail_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE TABLE IF NOT EXISTS archive_metadata (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		archived_at DATETIME NOT NULL
	);
`

type Config struct {
	Dir string
}

type Archiver struct {
	db     *sql.DB
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

type ArchiveFile struct {
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	EventCount int    `json:"event_count"`
}

type eventRow struct {
	ID           int64
	Kind         string
	OccurredAt   time.Time
	JobID        sql.NullInt64
	Printer      sql.NullString
	Status       sql.NullString
	ExitStatus   sql.NullInt64
	ProcessGroup sql.NullInt64
	DetailJSON   string
}

// New returns an archiver that drains the journal database db into files
// under cfg.Dir.
func New(db *sql.DB, cfg Config, logger *zap.Logger) (*Archiver, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		db:     db,
		dir:    cfg.Dir,
		logger: logger.With(zap.String("component", "archive")),
		now:    time.Now,
	}, nil
}

// Run archives events older than retention once a day until ctx is done.
func (a *Archiver) Run(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if _, err := a.Archive(ctx, a.now().Add(-retention)); err != nil {
			a.logger.Warn("journal archive failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Archive copies every event older than cutoff into the archive file of
// the current month and then deletes those events from the journal. It
// returns the number of events moved.
func (a *Archiver) Archive(ctx context.Context, cutoff time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.expiredEvents(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to get events for archival: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	path := filepath.Join(a.dir, filePrefix+a.now().Format("2006_01")+fileSuffix)
	if err := a.writeArchive(ctx, path, rows); err != nil {
		return 0, err
	}

	maxID := rows[len(rows)-1].ID
	if _, err := a.db.ExecContext(ctx, `DELETE FROM events WHERE occurred_at < ? AND id <= ?`, cutoff.UTC(), maxID); err != nil {
		return 0, fmt.Errorf("failed to delete archived events: %w", err)
	}

	a.logger.Info("archived journal events",
		zap.Int("events", len(rows)),
		zap.String("file", filepath.Base(path)),
	)
	return len(rows), nil
}

func (a *Archiver) expiredEvents(ctx context.Context, cutoff time.Time) ([]eventRow, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, occurred_at, job_id, printer, status, exit_status, process_group, detail_json
		FROM events
		WHERE occurred_at < ?
		ORDER BY id ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.OccurredAt, &r.JobID, &r.Printer, &r.Status, &r.ExitStatus, &r.ProcessGroup, &r.DetailJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *Archiver) writeArchive(ctx context.Context, path string, rows []eventRow) error {
	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer archiveDB.Close()

	if _, err := archiveDB.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}

	tx, err := archiveDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO events (id, kind, occurred_at, job_id, printer, status, exit_status, process_group, detail_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Kind, r.OccurredAt.UTC(), r.JobID, r.Printer, r.Status, r.ExitStatus, r.ProcessGroup, r.DetailJSON); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert event into archive: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO archive_metadata (id, archived_at) VALUES (1, ?)
	`, a.now().UTC()); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update archive metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}
	return nil
}

// List describes the archive files, newest first.
func (a *Archiver) List() ([]*ArchiveFile, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var files []*ArchiveFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count, err := a.eventCount(filepath.Join(a.dir, name))
		if err != nil {
			a.logger.Warn("unreadable archive", zap.String("file", name), zap.Error(err))
		}
		files = append(files, &ArchiveFile{Filename: name, Size: info.Size(), EventCount: count})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename > files[j].Filename })
	return files, nil
}

func (a *Archiver) eventCount(path string) (int, error) {
	archiveDB, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, err
	}
	defer archiveDB.Close()

	var n int
	err = archiveDB.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
