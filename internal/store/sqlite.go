package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo
)

// SQLiteStore is the reference Persistence implementation: a local SQLite
// file accessed through a single shared connection (SQLite is
// single-writer) with WAL journaling and a busy timeout, so concurrent
// callers serialize through database/sql instead of racing for the file
// lock.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath (or creates it) and ensures the
// stored_objects table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store-and-forward database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS stored_objects (
			id                TEXT PRIMARY KEY,
			app_service_key   TEXT NOT NULL,
			payload           BLOB NOT NULL,
			pipeline_id       TEXT NOT NULL,
			pipeline_position INTEGER NOT NULL,
			version           TEXT NOT NULL,
			correlation_id    TEXT NOT NULL,
			retry_count       INTEGER NOT NULL,
			context_data      TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create stored_objects table: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put inserts or replaces obj.
func (s *SQLiteStore) Put(obj StoredObject) error {
	ctxData, err := json.Marshal(obj.ContextData)
	if err != nil {
		return fmt.Errorf("marshal context data: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO stored_objects
			(id, app_service_key, payload, pipeline_id, pipeline_position, version, correlation_id, retry_count, context_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obj.ID, obj.AppServiceKey, obj.Payload, obj.PipelineID, obj.PipelinePosition, obj.Version, obj.CorrelationID, obj.RetryCount, ctxData)
	if err != nil {
		return fmt.Errorf("put stored object: %w", err)
	}
	return nil
}

// GetAllByAppServiceKey returns every stored object for appServiceKey.
func (s *SQLiteStore) GetAllByAppServiceKey(appServiceKey string) ([]StoredObject, error) {
	rows, err := s.db.Query(`
		SELECT id, app_service_key, payload, pipeline_id, pipeline_position, version, correlation_id, retry_count, context_data
		FROM stored_objects WHERE app_service_key = ?
	`, appServiceKey)
	if err != nil {
		return nil, fmt.Errorf("query stored objects: %w", err)
	}
	defer rows.Close()

	var out []StoredObject
	for rows.Next() {
		var obj StoredObject
		var ctxData []byte
		if err := rows.Scan(&obj.ID, &obj.AppServiceKey, &obj.Payload, &obj.PipelineID,
			&obj.PipelinePosition, &obj.Version, &obj.CorrelationID, &obj.RetryCount, &ctxData); err != nil {
			return nil, fmt.Errorf("scan stored object: %w", err)
		}
		if err := json.Unmarshal(ctxData, &obj.ContextData); err != nil {
			return nil, fmt.Errorf("unmarshal context data: %w", err)
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

// Update rewrites obj (used to persist an incremented retry_count).
func (s *SQLiteStore) Update(obj StoredObject) error {
	return s.Put(obj)
}

// Delete removes the stored object with the given id.
func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM stored_objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stored object %s: %w", id, err)
	}
	return nil
}

var _ Persistence = (*SQLiteStore)(nil)
