// Package postgres provides a PostgreSQL implementation of the event store
// adapter, using database/sql over the pgx stdlib driver.
//
// Layout: an append-only events table carrying a global bigserial position,
// a streams table holding the current version per stream (the row the
// optimistic concurrency check locks), plus snapshots and checkpoints
// tables. Events are never updated or deleted.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/go-sourced/sourced/adapters"
	"github.com/google/uuid"
)

// Ensure PostgresAdapter implements all required interfaces.
var (
	_ adapters.EventStoreAdapter  = (*PostgresAdapter)(nil)
	_ adapters.SnapshotAdapter    = (*PostgresAdapter)(nil)
	_ adapters.CheckpointAdapter  = (*PostgresAdapter)(nil)
	_ adapters.StreamQueryAdapter = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker      = (*PostgresAdapter)(nil)
)

// PostgresAdapter is a PostgreSQL-backed event store adapter.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema the tables live in. Default "public".
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// NewAdapter creates a PostgresAdapter from a connection string.
func NewAdapter(connString string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return NewAdapterFromDB(db, opts...), nil
}

// NewAdapterFromDB creates a PostgresAdapter over an existing *sql.DB.
// The caller retains ownership of pooling configuration.
func NewAdapterFromDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	a := &PostgresAdapter{
		db:     db,
		schema: "public",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DB returns the underlying database handle.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Initialize creates the required tables and indexes if they do not exist.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, a.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.streams (
			stream_id  TEXT PRIMARY KEY,
			category   TEXT NOT NULL,
			version    BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, a.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.events (
			global_position BIGSERIAL PRIMARY KEY,
			event_id        UUID NOT NULL UNIQUE,
			stream_id       TEXT NOT NULL REFERENCES %s.streams(stream_id),
			type            TEXT NOT NULL,
			schema_version  INT NOT NULL DEFAULT 1,
			data            JSONB NOT NULL,
			metadata        JSONB NOT NULL DEFAULT '{}',
			version         BIGINT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (stream_id, version)
		)`, a.schema, a.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_stream
			ON %s.events (stream_id, version)`, a.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_created_at
			ON %s.events (created_at)`, a.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.snapshots (
			stream_id TEXT NOT NULL,
			version   BIGINT NOT NULL,
			data      BYTEA NOT NULL,
			taken_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (stream_id, version)
		)`, a.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.checkpoints (
			name     TEXT PRIMARY KEY,
			position BIGINT NOT NULL DEFAULT 0
		)`, a.schema),
	}

	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: initialize: %w", err)
		}
	}
	return nil
}

// Append stores events with optimistic concurrency control.
// The streams row is locked FOR UPDATE for the duration of the transaction,
// making the version check and the insert atomic against concurrent writers.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	exists := true
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version FROM %s.streams WHERE stream_id = $1 FOR UPDATE`, a.schema),
		streamID,
	).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
		currentVersion = 0
	} else if err != nil {
		return nil, fmt.Errorf("postgres: lock stream: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if !exists {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s.streams (stream_id, category, version, created_at, updated_at)
				VALUES ($1, $2, 0, $3, $3)`, a.schema),
			streamID, adapters.ExtractCategory(streamID), now,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: create stream: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		schemaVersion := event.SchemaVersion
		if schemaVersion == 0 {
			schemaVersion = 1
		}

		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("postgres: marshal metadata: %w", err)
		}

		eventID := uuid.New().String()
		var globalPosition uint64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s.events
				(event_id, stream_id, type, schema_version, data, metadata, version, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING global_position`, a.schema),
			eventID, streamID, event.Type, schemaVersion, event.Data, metadata, currentVersion, now,
		).Scan(&globalPosition)
		if err != nil {
			return nil, fmt.Errorf("postgres: insert event: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			SchemaVersion:  schemaVersion,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: globalPosition,
			Timestamp:      now,
		}
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s.streams SET version = $1, updated_at = $2 WHERE stream_id = $3`, a.schema),
		currentVersion, now, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: update stream: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return stored, nil
}

const eventColumns = `event_id, stream_id, type, schema_version, data, metadata, version, global_position, created_at`

// Load retrieves events from a stream with Version > fromVersion.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s.events
			WHERE stream_id = $1 AND version > $2
			ORDER BY version`, eventColumns, a.schema),
		streamID, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadByCategory retrieves events for a category within the inclusive
// [from, to] timestamp window, ordered by timestamp.
func (a *PostgresAdapter) LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]adapters.StoredEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s.events e
		WHERE e.stream_id IN (SELECT stream_id FROM %s.streams WHERE category = $1)`,
		eventColumns, a.schema, a.schema)
	args := []interface{}{category}

	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND e.created_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND e.created_at <= $%d", len(args))
	}
	query += " ORDER BY e.created_at, e.global_position"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load by category: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadAfter retrieves events with timestamp strictly after t.
func (a *PostgresAdapter) LoadAfter(ctx context.Context, t time.Time) ([]adapters.StoredEvent, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s.events
			WHERE created_at > $1
			ORDER BY created_at, global_position`, eventColumns, a.schema),
		t,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load after: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadFromPosition loads events with GlobalPosition > fromPosition.
func (a *PostgresAdapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	limit = adapters.DefaultLimit(limit, 1000)

	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s.events
			WHERE global_position > $1
			ORDER BY global_position
			LIMIT $2`, eventColumns, a.schema),
		fromPosition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load from position: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT s.stream_id, s.category, s.version, s.created_at, s.updated_at,
			(SELECT count(*) FROM %s.events e WHERE e.stream_id = s.stream_id)
			FROM %s.streams s WHERE s.stream_id = $1`, a.schema, a.schema),
		streamID,
	).Scan(&info.StreamID, &info.Category, &info.Version, &info.CreatedAt, &info.UpdatedAt, &info.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: stream info: %w", err)
	}
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	var position uint64
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(global_position), 0) FROM %s.events`, a.schema),
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("postgres: last position: %w", err)
	}
	return position, nil
}

// ListStreams returns stream summaries, optionally filtered by ID prefix.
func (a *PostgresAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	query := fmt.Sprintf(`SELECT s.stream_id, s.version, s.updated_at,
		COALESCE((SELECT e.type FROM %s.events e
			WHERE e.stream_id = s.stream_id
			ORDER BY e.version DESC LIMIT 1), '')
		FROM %s.streams s`, a.schema, a.schema)
	args := []interface{}{}

	if prefix != "" {
		args = append(args, prefix+"%")
		query += fmt.Sprintf(" WHERE s.stream_id LIKE $%d", len(args))
	}
	query += " ORDER BY s.stream_id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list streams: %w", err)
	}
	defer rows.Close()

	var summaries []adapters.StreamSummary
	for rows.Next() {
		var s adapters.StreamSummary
		if err := rows.Scan(&s.StreamID, &s.EventCount, &s.LastUpdated, &s.LastEventType); err != nil {
			return nil, fmt.Errorf("postgres: scan stream summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// SaveSnapshot stores a snapshot. Re-snapshotting the same version upserts.
func (a *PostgresAdapter) SaveSnapshot(ctx context.Context, snapshot *adapters.SnapshotRecord) error {
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s.snapshots (stream_id, version, data, taken_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (stream_id, version)
			DO UPDATE SET data = EXCLUDED.data, taken_at = EXCLUDED.taken_at`, a.schema),
		snapshot.StreamID, snapshot.Version, snapshot.Data, snapshot.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the latest snapshot for the given stream.
// Returns nil, nil if no snapshot exists.
func (a *PostgresAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	var snap adapters.SnapshotRecord
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT stream_id, version, data, taken_at FROM %s.snapshots
			WHERE stream_id = $1
			ORDER BY version DESC LIMIT 1`, a.schema),
		streamID,
	).Scan(&snap.StreamID, &snap.Version, &snap.Data, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot removes all snapshots for the given stream.
func (a *PostgresAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s.snapshots WHERE stream_id = $1`, a.schema),
		streamID,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete snapshot: %w", err)
	}
	return nil
}

// CleanupSnapshots removes old snapshots, keeping the most recent keepLast.
func (a *PostgresAdapter) CleanupSnapshots(ctx context.Context, streamID string, keepLast int) error {
	if keepLast < 1 {
		keepLast = 1
	}
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s.snapshots
			WHERE stream_id = $1 AND version NOT IN (
				SELECT version FROM %s.snapshots
				WHERE stream_id = $1
				ORDER BY version DESC LIMIT $2
			)`, a.schema, a.schema),
		streamID, keepLast,
	)
	if err != nil {
		return fmt.Errorf("postgres: cleanup snapshots: %w", err)
	}
	return nil
}

// GetCheckpoint returns the last processed position for a consumer.
func (a *PostgresAdapter) GetCheckpoint(ctx context.Context, name string) (uint64, error) {
	var position uint64
	err := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT position FROM %s.checkpoints WHERE name = $1`, a.schema),
		name,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get checkpoint: %w", err)
	}
	return position, nil
}

// SetCheckpoint stores the last processed position for a consumer.
func (a *PostgresAdapter) SetCheckpoint(ctx context.Context, name string, position uint64) error {
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s.checkpoints (name, position) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position`, a.schema),
		name, position,
	)
	if err != nil {
		return fmt.Errorf("postgres: set checkpoint: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}

func scanEvents(rows *sql.Rows) ([]adapters.StoredEvent, error) {
	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var (
			e        adapters.StoredEvent
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.StreamID, &e.Type, &e.SchemaVersion, &e.Data, &metadata, &e.Version, &e.GlobalPosition, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
