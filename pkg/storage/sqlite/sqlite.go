// Package sqlite is a Storage backed by a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// Store implements storage.Storage on SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Storage = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveService upserts def by name.
func (s *Store) SaveService(ctx context.Context, def *definition.ServiceDefinition) error {
	data, err := definition.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal service %s: %w", def.Name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO services (name, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		def.Name, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save service %s: %w", def.Name, err)
	}
	return nil
}

// LoadService returns the stored definition or storage.ErrNotFound.
func (s *Store) LoadService(ctx context.Context, name string) (*definition.ServiceDefinition, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM services WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", name, err)
	}
	return definition.Unmarshal([]byte(data))
}

// AppendLog inserts entry and trims the table to storage.MaxLogs rows.
func (s *Store) AppendLog(ctx context.Context, entry *requestlog.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	var endpoint sql.NullInt64
	if entry.Endpoint != nil {
		endpoint = sql.NullInt64{Int64: int64(*entry.Endpoint), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO logs (timestamp, service, endpoint, method, path, status, entry)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UnixMilli(), entry.Service, endpoint,
		entry.Method, entry.Path, entry.Status, string(data))
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > storage.MaxLogs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE id <= ?`, id-storage.MaxLogs); err != nil {
			return fmt.Errorf("trim logs: %w", err)
		}
	}
	return tx.Commit()
}

// QueryLogs implements storage.Storage.
func (s *Store) QueryLogs(ctx context.Context, q storage.LogQuery) ([]*requestlog.Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.Service != "" {
		where = append(where, "service = ?")
		args = append(args, q.Service)
	}
	if q.Method != "" {
		where = append(where, "method = ? COLLATE NOCASE")
		args = append(args, q.Method)
	}
	if q.Route != "" {
		where = append(where, "substr(path, 1, length(?)) = ?")
		args = append(args, q.Route, q.Route)
	}
	if q.Status != 0 {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}

	query := "SELECT entry FROM logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var newestFirst []*requestlog.Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		var e requestlog.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		newestFirst = append(newestFirst, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}

	out := make([]*requestlog.Entry, len(newestFirst))
	for i, e := range newestFirst {
		out[len(out)-1-i] = e
	}
	return out, nil
}

// ClearLogs deletes every log row.
func (s *Store) ClearLogs(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM logs`); err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	return nil
}
