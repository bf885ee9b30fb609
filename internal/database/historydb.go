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

	"github.com/nao1215/uxaudit/internal/model"
)

// FileName is the database file inside the data directory.
const FileName = "history.db"

// ErrRunNotFound is returned when a run id is not in the database.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for past audit runs.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		model TEXT,
		status TEXT NOT NULL,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		counts_json TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS manifest_entries (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		target_id TEXT,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		selector TEXT,
		outcome TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		artifact_ref TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_outcome ON manifest_entries(outcome);

	CREATE TABLE IF NOT EXISTS recommendations (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		rec_id TEXT NOT NULL,
		target_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL,
		impact TEXT NOT NULL,
		effort TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a report, its manifest and its recommendations in one
// transaction. Saving the same run id again replaces the earlier rows.
func (h *HistoryDB) SaveRun(ctx context.Context, report *model.AuditReport) (err error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	countsJSON, err := json.Marshal(report.Counts())
	if err != nil {
		return fmt.Errorf("failed to serialize counts: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM manifest_entries WHERE run_id = ?",
		"DELETE FROM recommendations WHERE run_id = ?",
		"DELETE FROM runs WHERE run_id = ?",
	} {
		if _, err = tx.ExecContext(ctx, stmt, report.RunID); err != nil {
			return fmt.Errorf("failed to replace run: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, seed_url, model, status, error, started_at, completed_at, counts_json, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.SeedURL,
		report.Model,
		string(report.Status),
		report.Error,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.CompletedAt),
		string(countsJSON),
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, e := range report.Manifest {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO manifest_entries (run_id, seq, target_id, kind, url, selector, outcome, error_kind, error, artifact_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, e.Seq, e.Target.ID, string(e.Target.Kind), e.Target.URL, e.Target.Selector,
			string(e.Outcome), e.ErrorKind, e.Error, e.ArtifactRef,
		)
		if err != nil {
			return fmt.Errorf("failed to save manifest entry %d: %w", e.Seq, err)
		}
	}

	for i, r := range report.Recommendations {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO recommendations (run_id, position, rec_id, target_id, title, description, priority, impact, effort)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, i, r.ID, r.TargetID, r.Title, r.Description,
			r.Priority.String(), r.Impact.String(), r.Effort.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save recommendation %s: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary contains summary information about a stored run.
// This is used for listing history without loading full reports.
type RunSummary struct {
	RunID           string
	SeedURL         string
	Model           string
	Status          model.RunStatus
	Error           string
	StartedAt       time.Time
	CompletedAt     time.Time
	Counts          map[model.Outcome]int
	Recommendations int
}

// ListRuns returns runs newest first. An empty seedURL lists every run.
// A positive limit caps the number of rows.
func (h *HistoryDB) ListRuns(ctx context.Context, seedURL string, limit int) ([]RunSummary, error) {
	query := `
	SELECT r.run_id, r.seed_url, r.model, r.status, r.error, r.started_at, r.completed_at, r.counts_json,
		(SELECT COUNT(*) FROM recommendations WHERE run_id = r.run_id)
	FROM runs r
	WHERE (? = '' OR r.seed_url = ?)
	ORDER BY r.started_at DESC, r.run_id DESC
	`
	args := []any{seedURL, seedURL}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var (
			s                     RunSummary
			modelName, errText    sql.NullString
			status, started       string
			completed, countsJSON sql.NullString
		)
		if err := rows.Scan(&s.RunID, &s.SeedURL, &modelName, &status, &errText, &started, &completed, &countsJSON, &s.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Model = modelName.String
		s.Status = model.RunStatus(status)
		s.Error = errText.String
		s.StartedAt = parseTimestamp(started)
		s.CompletedAt = parseTimestamp(completed.String)
		s.Counts = make(map[model.Outcome]int)
		if countsJSON.Valid && countsJSON.String != "" {
			if err := json.Unmarshal([]byte(countsJSON.String), &s.Counts); err != nil {
				s.Counts = make(map[model.Outcome]int)
			}
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// GetRun loads the full report of a run.
func (h *HistoryDB) GetRun(ctx context.Context, runID string) (*model.AuditReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, "SELECT report_json FROM runs WHERE run_id = ?", runID).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.AuditReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// TopRecommendations returns the highest ranked recommendations of a run
// in report order.
func (h *HistoryDB) TopRecommendations(ctx context.Context, runID string, limit int) ([]model.Recommendation, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT rec_id, target_id, title, description, priority, impact, effort
	FROM recommendations
	WHERE run_id = ?
	ORDER BY position
	LIMIT ?`, runID, max(limit, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var (
			r                        model.Recommendation
			targetID, description    sql.NullString
			priority, impact, effort string
		)
		if err := rows.Scan(&r.ID, &targetID, &r.Title, &description, &priority, &impact, &effort); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		r.TargetID = targetID.String
		r.Description = description.String
		r.Priority = model.ParsePriority(priority)
		r.Impact = model.ParseImpact(impact)
		r.Effort = model.ParseEffort(effort)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// FailedTargets returns the manifest entries of a run whose terminal
// outcome is a failure, in append order.
func (h *HistoryDB) FailedTargets(ctx context.Context, runID string) ([]model.ManifestEntry, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT seq, target_id, kind, url, selector, outcome, error_kind, error
	FROM manifest_entries
	WHERE run_id = ? AND outcome IN (?, ?)
	ORDER BY seq`, runID, string(model.OutcomeFailed), string(model.OutcomeAnalysisFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest: %w", err)
	}
	defer rows.Close()

	var entries []model.ManifestEntry
	for rows.Next() {
		var (
			e                                   model.ManifestEntry
			targetID, selector, errKind, errMsg sql.NullString
			kind, outcome                       string
		)
		if err := rows.Scan(&e.Seq, &targetID, &kind, &e.Target.URL, &selector, &outcome, &errKind, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan manifest entry: %w", err)
		}
		e.Target.ID = targetID.String
		e.Target.Kind = model.TargetKind(kind)
		e.Target.Selector = selector.String
		e.Outcome = model.Outcome(outcome)
		e.ErrorKind = errKind.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// timestampLayout has fixed-width fractions so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
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
