package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
)

const postgresBackend = "postgres"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, e models.Event) error {
	defer metrics.ObserveStore(postgresBackend, "insert", time.Now())

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			id, event_type, element_id, element_text, page_path, session_id, user_agent, timestamp, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.EventType,
		e.ElementID,
		e.ElementText,
		e.PagePath,
		e.SessionID,
		e.UserAgent,
		e.Timestamp.UTC(),
		meta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Event, error) {
	defer metrics.ObserveStore(postgresBackend, "list", time.Now())

	query := `
		SELECT id, event_type, element_id, element_text, page_path, session_id, user_agent, timestamp, metadata
		FROM events
		ORDER BY timestamp DESC, seq DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			e    models.Event
			meta []byte
		)
		if err := rows.Scan(
			&e.ID,
			&e.EventType,
			&e.ElementID,
			&e.ElementText,
			&e.PagePath,
			&e.SessionID,
			&e.UserAgent,
			&e.Timestamp,
			&meta,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			logging.Warn().Err(err).Str("event_id", e.ID).Msg("dropping unreadable event metadata")
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error while listing events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	defer metrics.ObserveStore(postgresBackend, "delete", time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Purge deletes every row in one transaction so concurrent readers see either
// all events or none.
func (s *PostgresStore) Purge(ctx context.Context) (int, error) {
	defer metrics.ObserveStore(postgresBackend, "purge", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
