// Package history keeps a local SQLite log of update checks and update flow
// outcomes, shown by `notepad update history`.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly

	"notepad/internal/config"
	"notepad/internal/events"
	"notepad/internal/update"
)

// FileName is the default history database file name under ~/.notepad.
const FileName = "history.db"

// Kind distinguishes check results from flow outcomes.
type Kind string

const (
	KindCheck Kind = "check"
	KindFlow  Kind = "flow"
)

// Entry is one row of update history.
type Entry struct {
	ID             int64     `json:"id"`
	Kind           Kind      `json:"kind"`
	At             time.Time `json:"at"`
	CurrentVersion string    `json:"current_version,omitempty"`
	LatestVersion  string    `json:"latest_version,omitempty"`
	HasUpdate      bool      `json:"has_update"`
	Stage          string    `json:"stage,omitempty"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT    NOT NULL,
	at              TEXT    NOT NULL,
	current_version TEXT    NOT NULL DEFAULT '',
	latest_version  TEXT    NOT NULL DEFAULT '',
	has_update      INTEGER NOT NULL DEFAULT 0,
	stage           TEXT    NOT NULL DEFAULT '',
	message         TEXT    NOT NULL DEFAULT '',
	error           TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS entries_at ON entries(at);
`

// Store persists history entries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns ~/.notepad/history.db.
func DefaultPath() (string, error) {
	dir, err := config.UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// buildDSN creates a WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens (creating if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCheck stores the result of one resolution.
func (s *Store) RecordCheck(ctx context.Context, info update.VersionInfo, checkErr error) error {
	e := Entry{
		Kind:           KindCheck,
		CurrentVersion: info.CurrentVersion,
		LatestVersion:  info.LatestVersion,
		HasUpdate:      info.HasUpdate,
	}
	if checkErr != nil {
		e.Error = checkErr.Error()
	}
	return s.insert(ctx, e)
}

// RecordProgress stores a terminal progress event (completed or error).
// Other stages are ignored.
func (s *Store) RecordProgress(ctx context.Context, p update.Progress) error {
	if !p.Stage.Terminal() {
		return nil
	}
	return s.insert(ctx, Entry{
		Kind:    KindFlow,
		Stage:   string(p.Stage),
		Message: p.Message,
		Error:   p.Error,
	})
}

func (s *Store) insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (kind, at, current_version, latest_version, has_update, stage, message, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(e.Kind), s.now().UTC().Format(time.RFC3339Nano), e.CurrentVersion, e.LatestVersion,
		boolToInt(e.HasUpdate), e.Stage, e.Message, e.Error)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, kind, at, current_version, latest_version, has_update, stage, message, error
		FROM entries
		ORDER BY at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			kind, at  string
			hasUpdate int
		)
		if err := rows.Scan(&e.ID, &kind, &at, &e.CurrentVersion, &e.LatestVersion, &hasUpdate, &e.Stage, &e.Message, &e.Error); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.HasUpdate = hasUpdate != 0
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Follow records terminal progress events from a bus subscription until the
// channel closes or ctx is done. Write failures are logged and skipped.
func (s *Store) Follow(ctx context.Context, ch <-chan events.Event, logger *log.Entry) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name != events.UpdateProgress {
				continue
			}
			p, ok := ev.Payload.(update.Progress)
			if !ok {
				continue
			}
			if err := s.RecordProgress(ctx, p); err != nil {
				logger.WithError(err).Warn("record update progress")
			}
		}
	}
}

// Emitter returns an emitter that records terminal progress events as they
// are emitted. Use it where there is no bus to follow.
func (s *Store) Emitter(logger *log.Entry) events.Emitter {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return events.EmitterFunc(func(name events.Name, payload any) {
		if name != events.UpdateProgress {
			return
		}
		p, ok := payload.(update.Progress)
		if !ok {
			return
		}
		if err := s.RecordProgress(context.Background(), p); err != nil {
			logger.WithError(err).Warn("record update progress")
		}
	})
}

// RecordingResolver records every resolution it passes through.
type RecordingResolver struct {
	inner update.ReleaseResolver
	store *Store
	log   *log.Entry
}

// NewRecordingResolver wraps inner so each Resolve call is stored.
func NewRecordingResolver(inner update.ReleaseResolver, store *Store, logger *log.Entry) *RecordingResolver {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &RecordingResolver{inner: inner, store: store, log: logger}
}

// Resolve implements update.ReleaseResolver.
func (r *RecordingResolver) Resolve(ctx context.Context) (update.VersionInfo, error) {
	info, err := r.inner.Resolve(ctx)
	if ctx.Err() != nil {
		return info, err
	}
	if recErr := r.store.RecordCheck(context.WithoutCancel(ctx), info, err); recErr != nil {
		r.log.WithError(recErr).Warn("record update check")
	}
	return info, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
