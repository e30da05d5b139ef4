package request

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"waveq/internal/chain"
	"waveq/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users clear the database to adopt the new schema.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const lockShards = 64

// Store persists requests in SQLite with a write-through in-memory table.
// Writes update both together; reads prefer the durable row and fall back to
// memory, so a restarted node or second reader sees consistent state.
//
// Every update is an atomic read-modify-write serialized per request id
// through a sharded lock table, so concurrent updates to different ids never
// block each other while same-id updates cannot lose writes.
type Store struct {
	db   *sql.DB
	path string

	locks [lockShards]sync.Mutex

	mu    sync.RWMutex
	cache map[string]*Request
}

// Open initializes or connects to the request database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.LogDir, "requests.db"))
}

// OpenPath opens the store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, cache: make(map[string]*Request)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockShards]
}

// Create inserts a new request with status submitted. The chain is fixed at
// creation and never reordered afterward.
func (s *Store) Create(ctx context.Context, id string, ch chain.Chain, clientID, audioRef, priority string) (*Request, error) {
	now := time.Now().UTC()
	chainJSON, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("marshal chain: %w", err)
	}

	req := &Request{
		ID:        id,
		Status:    StatusSubmitted,
		Chain:     ch,
		ClientID:  clientID,
		AudioRef:  audioRef,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO requests (
            id, status, chain_json, client_id, audio_ref, priority,
            created_at, updated_at, progress, result_json, error_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		req.Status,
		string(chainJSON),
		nullableString(clientID),
		audioRef,
		nullableString(priority),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nil,
		nil,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	s.mu.Lock()
	s.cache[id] = req.Clone()
	s.mu.Unlock()

	return req.Clone(), nil
}

// Get fetches a request by id, preferring the durable row.
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	req, err := s.getDurable(ctx, id)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, ErrNotFound) {
		// Durable store unavailable: serve the memory copy if we have one.
		if cached := s.getCached(id); cached != nil {
			return cached, nil
		}
		return nil, err
	}
	if cached := s.getCached(id); cached != nil {
		return cached, nil
	}
	return nil, ErrNotFound
}

// Update applies a partial mutation atomically under the request's lock.
// Merge semantics: only non-nil fields overwrite. Status changes must follow
// the state machine; an invalid edge returns ErrInvalidTransition. Field-only
// updates against a terminal request are silently dropped and return the
// stored value unchanged.
func (s *Store) Update(ctx context.Context, id string, fields Fields) (*Request, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fields.Status != nil && *fields.Status != current.Status {
		if !current.Status.CanTransition(*fields.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *fields.Status)
		}
		current.Status = *fields.Status
	} else if current.Status.IsTerminal() {
		// Late payload-only events against a terminal request are dropped.
		return current, nil
	}

	if fields.Progress != nil {
		v := *fields.Progress
		current.Progress = &v
	}
	if fields.Result != nil {
		current.Result = fields.Result
	}
	if fields.Error != nil {
		current.Error = *fields.Error
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.persist(ctx, current); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[id] = current.Clone()
	s.mu.Unlock()

	return current.Clone(), nil
}

// List returns requests newest first, optionally filtered by client and
// status. A limit <= 0 applies the default of 100.
func (s *Store) List(ctx context.Context, clientID string, status Status, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	var clauses []string
	var args []any
	if clientID != "" {
		clauses = append(clauses, "client_id = ?")
		args = append(args, clientID)
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Stats returns a count of requests grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates request state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusSubmitted:
			health.Submitted += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// Remove deletes a request by id. Normal operation never deletes; this
// supports external housekeeping only.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	return affected > 0, nil
}

func (s *Store) getDurable(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (s *Store) getCached(id string) *Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[id].Clone()
}

func (s *Store) persist(ctx context.Context, req *Request) error {
	chainJSON, err := json.Marshal(req.Chain)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	var resultJSON any
	if req.Result != nil {
		data, err := json.Marshal(req.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = string(data)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE requests
         SET status = ?, chain_json = ?, client_id = ?, audio_ref = ?, priority = ?,
             updated_at = ?, progress = ?, result_json = ?, error_message = ?
         WHERE id = ?`,
		req.Status,
		string(chainJSON),
		nullableString(req.ClientID),
		req.AudioRef,
		nullableString(req.Priority),
		req.UpdatedAt.Format(time.RFC3339Nano),
		nullableFloat(req.Progress),
		resultJSON,
		nullableString(req.Error),
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}
