package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/odindexer/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "odindexer.db"

// SessionDB provides SQLite-based storage for crawl sessions.
//
// Design decision: We use a single database file for every root URL rather
// than one file per crawl. This keeps the history command a single query
// and makes backup a single file copy.
type SessionDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures SessionDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a SessionDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*SessionDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &SessionDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Path returns the path of the database file.
func (sdb *SessionDB) Path() string {
	return sdb.dbPath
}

// Close closes the database connection.
func (sdb *SessionDB) Close() error {
	return sdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (sdb *SessionDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_url TEXT NOT NULL,
		backend TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT NOT NULL,
		folders INTEGER NOT NULL DEFAULT 0,
		folders_completed INTEGER NOT NULL DEFAULT 0,
		files INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		snapshot_path TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_root ON sessions(root_url);
	CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished);

	-- Folders that ended in the Error state
	CREATE TABLE IF NOT EXISTS folder_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		path TEXT NOT NULL,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_folder_errors_session ON folder_errors(session_id);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// Session is the summary of one recorded crawl.
type Session struct {
	// ID is the unique identifier of the session in the database.
	ID int64

	// RootURL is the URL the crawl started from.
	RootURL string

	// Backend is the adapter that listed the folders.
	Backend string

	// Outcome is the terminal state of the crawl.
	Outcome model.Outcome

	// Started and Finished bound the crawl.
	Started  time.Time
	Finished time.Time

	// Folders, Files and Bytes are the totals at the end of the run.
	Folders int64
	Files   int64
	Bytes   int64

	// Errors is the number of folders in the Error state.
	Errors int64

	// SnapshotPath is the snapshot written for the session, if any.
	SnapshotPath string
}

// SaveSession records a report and its error folders in one transaction.
// It returns the new session ID.
func (sdb *SessionDB) SaveSession(ctx context.Context, report *model.Report) (id int64, err error) {
	if report == nil {
		return 0, errors.New("nil report")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO sessions (root_url, backend, outcome, started, finished, folders, folders_completed,
		files, bytes, error_count, snapshot_path, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RootURL,
		report.Backend,
		string(report.Outcome),
		formatTimestamp(report.Started),
		formatTimestamp(report.Finished),
		report.Folders,
		report.FoldersCompleted,
		report.Files,
		report.Bytes,
		len(report.Errors),
		report.SnapshotPath,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save session: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	for _, e := range report.Errors {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO folder_errors (session_id, url, path, reason) VALUES (?, ?, ?, ?)`,
			id, e.URL, e.Path, e.Reason,
		); err != nil {
			return 0, fmt.Errorf("failed to save folder error: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session: %w", err)
	}
	return id, nil
}

// ListSessions returns recorded sessions, newest first.
// An empty rootURL lists every root. A limit of zero or less means no limit.
func (sdb *SessionDB) ListSessions(ctx context.Context, rootURL string, limit int) ([]Session, error) {
	query := `
	SELECT id, root_url, backend, outcome, started, finished, folders, files, bytes, error_count, snapshot_path
	FROM sessions
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if rootURL != "" {
		query += " AND root_url = ?"
		args = append(args, rootURL)
	}
	query += " ORDER BY finished DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := sdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		var (
			s                 Session
			outcome           string
			started, finished string
			snapshotPath      sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.RootURL, &s.Backend, &outcome, &started, &finished,
			&s.Folders, &s.Files, &s.Bytes, &s.Errors, &snapshotPath); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Outcome = model.Outcome(outcome)
		s.Started = parseTimestamp(started)
		s.Finished = parseTimestamp(finished)
		s.SnapshotPath = snapshotPath.String
		results = append(results, s)
	}
	return results, rows.Err()
}

// GetReport returns the full report of a session, or nil if the ID is unknown.
func (sdb *SessionDB) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, `SELECT report_json FROM sessions WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var report model.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// SessionErrors returns the failed folders of a session in path order.
func (sdb *SessionDB) SessionErrors(ctx context.Context, id int64) ([]model.NodeError, error) {
	rows, err := sdb.db.QueryContext(ctx,
		`SELECT url, path, reason FROM folder_errors WHERE session_id = ? ORDER BY path`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query folder errors: %w", err)
	}
	defer rows.Close()

	var results []model.NodeError
	for rows.Next() {
		var (
			e      model.NodeError
			reason sql.NullString
		)
		if err := rows.Scan(&e.URL, &e.Path, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan folder error: %w", err)
		}
		e.Reason = reason.String
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListRoots returns every root URL with at least one session.
func (sdb *SessionDB) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := sdb.db.QueryContext(ctx, `SELECT DISTINCT root_url FROM sessions ORDER BY root_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// timestampLayout has a fixed width so that stored timestamps sort
// lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
