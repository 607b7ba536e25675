// Package persistence saves and loads whole-graph snapshots through
// SQLite. The graph itself is not durable; this is its storage
// collaborator.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"dev.helix.recall/internal/memory"
)

// SnapshotConfig holds configuration for the snapshot store
type SnapshotConfig struct {
	// Path is the SQLite database file; ignored when InMemory is set
	Path string `json:"path,omitempty" yaml:"path"`
	// InMemory keeps the database in memory
	InMemory bool `json:"in_memory" yaml:"in_memory"`
	// BusyTimeoutMS is the busy timeout in milliseconds
	BusyTimeoutMS int `json:"busy_timeout_ms,omitempty" yaml:"busy_timeout_ms"`
}

// DefaultSnapshotConfig returns default configuration
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Path:          "recall.db",
		InMemory:      false,
		BusyTimeoutMS: 5000,
	}
}

// SnapshotStore persists graph snapshots in a SQLite database
type SnapshotStore struct {
	config SnapshotConfig
	db     *sql.DB
	mu     sync.RWMutex
	logger *logrus.Logger
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		predicate TEXT NOT NULL,
		object_id TEXT NOT NULL DEFAULT '',
		value TEXT,
		status TEXT NOT NULL,
		confidence REAL NOT NULL,
		relevance REAL NOT NULL,
		access_count INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		last_accessed TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_id)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		user_input TEXT NOT NULL,
		system_response TEXT NOT NULL,
		entities_mentioned TEXT NOT NULL DEFAULT '[]',
		facts_created TEXT NOT NULL DEFAULT '[]',
		facts_accessed TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`,
}

// Open opens the database, applies pragmas, and creates the snapshot
// schema. A nil logger falls back to a warn-level default.
func Open(ctx context.Context, config SnapshotConfig, logger *logrus.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if config.BusyTimeoutMS <= 0 {
		config.BusyTimeoutMS = 5000
	}

	var dsn string
	if config.InMemory {
		dsn = "file::memory:?cache=shared"
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("database path is required for file-based SQLite")
		}

		// Ensure directory exists
		dir := filepath.Dir(config.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}

		dsn = config.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeoutMS),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.WithError(err).Warn("Failed to set pragma")
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"path":      config.Path,
		"in_memory": config.InMemory,
	}).Info("Snapshot store opened")

	return &SnapshotStore{
		config: config,
		db:     db,
		logger: logger,
	}, nil
}

// Health pings the database
func (s *SnapshotStore) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return fmt.Errorf("snapshot store is closed")
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
		s.db = nil
	}
	return nil
}

// Save replaces the stored snapshot with the given one, atomically
func (s *SnapshotStore) Save(ctx context.Context, snapshot *memory.GraphSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("snapshot store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entities", "facts", "interactions", "snapshot_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	entityStmt, err := tx.PrepareContext(ctx, `INSERT INTO entities
		(id, entity_type, name, description, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer entityStmt.Close()

	for _, entity := range snapshot.Entities {
		metadata, err := encodeMetadata(entity.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", entity.ID, err)
		}
		_, err = entityStmt.ExecContext(ctx,
			entity.ID,
			string(entity.Type),
			entity.Name,
			entity.Description,
			formatTime(entity.CreatedAt),
			formatTime(entity.UpdatedAt),
			metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", entity.ID, err)
		}
	}

	factStmt, err := tx.PrepareContext(ctx, `INSERT INTO facts
		(id, subject_id, predicate, object_id, value, status, confidence,
		 relevance, access_count, created_at, last_accessed, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fact insert: %w", err)
	}
	defer factStmt.Close()

	for _, fact := range snapshot.Facts {
		var value interface{}
		if fact.Value != nil {
			encoded, err := json.Marshal(fact.Value)
			if err != nil {
				return fmt.Errorf("failed to encode value for %s: %w", fact.ID, err)
			}
			value = string(encoded)
		}
		_, err = factStmt.ExecContext(ctx,
			fact.ID,
			fact.SubjectID,
			fact.Predicate,
			fact.ObjectID,
			value,
			string(fact.Status),
			fact.Confidence,
			fact.Relevance,
			fact.AccessCount,
			formatTime(fact.CreatedAt),
			formatTime(fact.LastAccessed),
			fact.Source,
		)
		if err != nil {
			return fmt.Errorf("failed to insert fact %s: %w", fact.ID, err)
		}
	}

	interactionStmt, err := tx.PrepareContext(ctx, `INSERT INTO interactions
		(id, session_id, timestamp, user_input, system_response,
		 entities_mentioned, facts_created, facts_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare interaction insert: %w", err)
	}
	defer interactionStmt.Close()

	for _, interaction := range snapshot.Interactions {
		mentioned, err := encodeIDList(interaction.EntitiesMentioned)
		if err != nil {
			return fmt.Errorf("failed to encode id list for %s: %w", interaction.ID, err)
		}
		created, err := encodeIDList(interaction.FactsCreated)
		if err != nil {
			return fmt.Errorf("failed to encode id list for %s: %w", interaction.ID, err)
		}
		accessed, err := encodeIDList(interaction.FactsAccessed)
		if err != nil {
			return fmt.Errorf("failed to encode id list for %s: %w", interaction.ID, err)
		}
		_, err = interactionStmt.ExecContext(ctx,
			interaction.ID,
			interaction.SessionID,
			formatTime(interaction.Timestamp),
			interaction.UserInput,
			interaction.SystemResponse,
			mentioned,
			created,
			accessed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert interaction %s: %w", interaction.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO snapshot_meta (k, v) VALUES ('taken_at', ?)`,
		formatTime(snapshot.TakenAt))
	if err != nil {
		return fmt.Errorf("failed to record snapshot time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"entities":     len(snapshot.Entities),
		"facts":        len(snapshot.Facts),
		"interactions": len(snapshot.Interactions),
	}).Debug("Snapshot saved")

	return nil
}

// Load reads the stored snapshot. An empty database yields an empty
// snapshot, not an error.
func (s *SnapshotStore) Load(ctx context.Context) (*memory.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("snapshot store is closed")
	}

	snapshot := &memory.GraphSnapshot{
		Entities:     []*memory.Entity{},
		Facts:        []*memory.Fact{},
		Interactions: []*memory.Interaction{},
	}

	if err := s.loadEntities(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := s.loadFacts(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := s.loadInteractions(ctx, snapshot); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT v FROM snapshot_meta WHERE k = 'taken_at'`)
	var takenAt string
	switch err := row.Scan(&takenAt); err {
	case nil:
		parsed, err := parseTime(takenAt)
		if err != nil {
			return nil, err
		}
		snapshot.TakenAt = parsed
	case sql.ErrNoRows:
		// Nothing saved yet
	default:
		return nil, fmt.Errorf("failed to read snapshot time: %w", err)
	}

	return snapshot, nil
}

func (s *SnapshotStore) loadEntities(ctx context.Context, snapshot *memory.GraphSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, entity_type, name, description,
		created_at, updated_at, metadata FROM entities ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entity memory.Entity
		var entityType, createdAt, updatedAt, metadata string
		if err := rows.Scan(&entity.ID, &entityType, &entity.Name, &entity.Description,
			&createdAt, &updatedAt, &metadata); err != nil {
			return fmt.Errorf("failed to scan entity: %w", err)
		}

		entity.Type = memory.EntityType(entityType)
		if entity.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if entity.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(metadata), &entity.Metadata); err != nil {
			return fmt.Errorf("failed to decode metadata for %s: %w", entity.ID, err)
		}

		snapshot.Entities = append(snapshot.Entities, &entity)
	}
	return rows.Err()
}

func (s *SnapshotStore) loadFacts(ctx context.Context, snapshot *memory.GraphSnapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subject_id, predicate, object_id,
		value, status, confidence, relevance, access_count, created_at,
		last_accessed, source FROM facts ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fact memory.Fact
		var value sql.NullString
		var status, createdAt, lastAccessed string
		if err := rows.Scan(&fact.ID, &fact.SubjectID, &fact.Predicate, &fact.ObjectID,
			&value, &status, &fact.Confidence, &fact.Relevance, &fact.AccessCount,
			&createdAt, &lastAccessed, &fact.Source); err != nil {
			return fmt.Errorf("failed to scan fact: %w", err)
		}

		fact.Status = memory.FactStatus(status)
		if fact.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if fact.LastAccessed, err = parseTime(lastAccessed); err != nil {
			return err
		}
		if value.Valid {
			var decoded memory.Value
			if err := json.Unmarshal([]byte(value.String), &decoded); err != nil {
				return fmt.Errorf("failed to decode value for %s: %w", fact.ID, err)
			}
			fact.Value = &decoded
		}

		snapshot.Facts = append(snapshot.Facts, &fact)
	}
	return rows.Err()
}

func (s *SnapshotStore) loadInteractions(ctx context.Context, snapshot *memory.GraphSnapshot) error {
	// rowid order preserves the chronological write order of the log
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, timestamp, user_input,
		system_response, entities_mentioned, facts_created, facts_accessed
		FROM interactions ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var interaction memory.Interaction
		var timestamp, mentioned, created, accessed string
		if err := rows.Scan(&interaction.ID, &interaction.SessionID, &timestamp,
			&interaction.UserInput, &interaction.SystemResponse,
			&mentioned, &created, &accessed); err != nil {
			return fmt.Errorf("failed to scan interaction: %w", err)
		}

		if interaction.Timestamp, err = parseTime(timestamp); err != nil {
			return err
		}
		if interaction.EntitiesMentioned, err = decodeIDList(mentioned); err != nil {
			return fmt.Errorf("failed to decode id list for %s: %w", interaction.ID, err)
		}
		if interaction.FactsCreated, err = decodeIDList(created); err != nil {
			return fmt.Errorf("failed to decode id list for %s: %w", interaction.ID, err)
		}
		if interaction.FactsAccessed, err = decodeIDList(accessed); err != nil {
			return fmt.Errorf("failed to decode id list for %s: %w", interaction.ID, err)
		}

		snapshot.Interactions = append(snapshot.Interactions, &interaction)
	}
	return rows.Err()
}

func encodeMetadata(metadata map[string]memory.Value) (string, error) {
	if metadata == nil {
		metadata = map[string]memory.Value{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func encodeIDList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeIDList(encoded string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(encoded string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, encoded)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", encoded, err)
	}
	return t.UTC(), nil
}
