package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kv-go/internal/database/migrations"
	"kv-go/internal/kv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const lastContainerKey = "last_container"

// StateDatabase keeps operation history and, optionally, remembered
// credentials in a local SQLite file.
type StateDatabase struct {
	db    *sql.DB
	clock kv.Clock
	path  string
}

// NewStateDatabase opens the database at path and migrates it to the latest schema.
// path can be a file path or ":memory:" for an in-memory database.
func NewStateDatabase(path string, clock kv.Clock) (*StateDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	if clock == nil {
		clock = kv.RealClock{}
	}
	return &StateDatabase{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would otherwise get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Credential cache

func (s *StateDatabase) Lookup(path string) (*kv.Credential, error) {
	var cred kv.Credential
	err := s.db.QueryRow(
		"SELECT password, keyfile FROM credentials WHERE container_path = ?", path,
	).Scan(&cred.Password, &cred.Keyfile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up credentials: %w", err)
	}
	return &cred, nil
}

func (s *StateDatabase) Remember(path string, cred kv.Credential) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO credentials (container_path, password, keyfile, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(container_path) DO UPDATE SET
			password = excluded.password,
			keyfile = excluded.keyfile,
			updated_at = excluded.updated_at`,
		path, cred.Password, cred.Keyfile, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastContainerKey, path)
	if err != nil {
		return fmt.Errorf("storing last container: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credentials: %w", err)
	}
	return nil
}

func (s *StateDatabase) LastContainer() (string, error) {
	var path string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", lastContainerKey).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading last container: %w", err)
	}
	return path, nil
}

// Operation history

func (s *StateDatabase) Start(command, parameters, container string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO operations (command, parameters, container_path, status, started_at) VALUES (?, ?, ?, 'running', ?)",
		command, parameters, container, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recording operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading operation id: %w", err)
	}
	return id, nil
}

func (s *StateDatabase) Finish(id int64, status string) error {
	res, err := s.db.Exec(
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("operation %d not found", id)
	}
	return nil
}

func (s *StateDatabase) Recent(limit int) ([]*kv.Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, command, parameters, container_path, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*kv.Operation
	for rows.Next() {
		var (
			op       kv.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Command, &op.Parameters, &op.Container, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// CheckMigrations reports whether the schema is at the latest version.
func (s *StateDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Path returns the database location.
func (s *StateDatabase) Path() string { return s.path }

// Close closes the database connection.
func (s *StateDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ kv.CredentialCache = (*StateDatabase)(nil)
	_ kv.History         = (*StateDatabase)(nil)
)
