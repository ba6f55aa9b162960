package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/dscopilot/internal/design"
)

// timeFormat has a fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const dbFile = "dscopilot.db"

// Store wraps a SQLite database holding the script library.
type Store struct {
	db *sql.DB
}

// connPragmas are applied to the single pooled connection right after open.
var connPragmas = []string{
	"PRAGMA busy_timeout = 5000",
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
}

// Open opens the script library in dataDir, creating the directory and the
// schema on first use. ":memory:" gives a throwaway database.
func Open(dataDir string) (*Store, error) {
	dsn := dataDir
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	for _, p := range connPragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveScript inserts or replaces script. Run bookkeeping of an existing row
// is kept.
func (s *Store) SaveScript(script design.AutomatorScript, source string) error {
	if script.ID == "" {
		return fmt.Errorf("saving script: empty id")
	}
	if source == "" {
		source = SourceUser
	}
	actions, err := json.Marshal(script.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}
	createdAt := script.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO scripts (id, name, description, color, actions, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			actions = excluded.actions,
			source = excluded.source`,
		script.ID, script.Name, script.Description, script.Color, string(actions), source,
		createdAt.UTC().Format(timeFormat),
	)
	return err
}

const scriptColumns = `id, name, description, color, actions, source, created_at, run_count, last_run_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (Script, error) {
	var sc Script
	var actions string
	var createdAt, lastRun any
	if err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &sc.Color, &actions, &sc.Source, &createdAt, &sc.RunCount, &lastRun); err != nil {
		return Script{}, err
	}
	if err := json.Unmarshal([]byte(actions), &sc.Actions); err != nil {
		return Script{}, fmt.Errorf("decoding actions of %s: %w", sc.ID, err)
	}
	t, err := storedTime(createdAt)
	if err != nil {
		return Script{}, fmt.Errorf("created_at of %s: %w", sc.ID, err)
	}
	sc.CreatedAt = t
	if lastRun != nil {
		t, err := storedTime(lastRun)
		if err != nil {
			return Script{}, fmt.Errorf("last_run_at of %s: %w", sc.ID, err)
		}
		sc.LastRunAt = &t
	}
	return sc, nil
}

// storedTime reads a DATETIME column. The driver returns time.Time when it
// recognises the stored text and the raw text otherwise.
func storedTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseStoredTime(t)
	case []byte:
		return parseStoredTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected %T timestamp", v)
	}
}

// parseStoredTime accepts any RFC 3339 fraction width, which covers
// timeFormat as well.
func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Store) GetScript(id string) (Script, error) {
	sc, err := scanScript(s.db.QueryRow(`SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Script{}, ErrNotFound
	}
	return sc, err
}

// ListScripts returns up to limit scripts, newest first. An empty source
// matches every script.
func (s *Store) ListScripts(source string, limit int) ([]Script, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + scriptColumns + ` FROM scripts`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Script{}
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

func (s *Store) DeleteScript(id string) error {
	res, err := s.db.Exec(`DELETE FROM scripts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkScriptRun bumps the run counter of a script.
func (s *Store) MarkScriptRun(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE scripts SET run_count = run_count + 1, last_run_at = ? WHERE id = ?`,
		at.UTC().Format(timeFormat), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
