package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
)

const clickHouseBackend = "clickhouse"

// ClickHouseStore keeps events in a MergeTree table. Deletes are lightweight
// deletes run synchronously so that a following List no longer sees the row.
type ClickHouseStore struct {
	conn driver.Conn
}

func NewClickHouseStore(conn driver.Conn) *ClickHouseStore {
	return &ClickHouseStore{conn: conn}
}

func (s *ClickHouseStore) Insert(ctx context.Context, e models.Event) error {
	defer metrics.ObserveStore(clickHouseBackend, "insert", time.Now())

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO events (
			id, event_type, element_id, element_text, page_path, session_id, user_agent, timestamp, metadata
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	if err := batch.Append(
		e.ID,
		e.EventType,
		e.ElementID,
		e.ElementText,
		e.PagePath,
		e.SessionID,
		e.UserAgent,
		e.Timestamp.UTC(),
		string(meta),
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append event %s to batch: %w", e.ID, err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) List(ctx context.Context) ([]models.Event, error) {
	defer metrics.ObserveStore(clickHouseBackend, "list", time.Now())

	rows, err := s.conn.Query(ctx, `
		SELECT id, event_type, element_id, element_text, page_path, session_id, user_agent, timestamp, metadata
		FROM events
		ORDER BY timestamp DESC, inserted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			e    models.Event
			meta string
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
		if e.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
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

func (s *ClickHouseStore) Delete(ctx context.Context, id string) (bool, error) {
	defer metrics.ObserveStore(clickHouseBackend, "delete", time.Now())

	n, err := s.count(ctx, `SELECT count() FROM events WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
	if err := s.conn.Exec(syncCtx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	return true, nil
}

func (s *ClickHouseStore) Purge(ctx context.Context) (int, error) {
	defer metrics.ObserveStore(clickHouseBackend, "purge", time.Now())

	n, err := s.count(ctx, `SELECT count() FROM events`)
	if err != nil {
		return 0, err
	}
	if err := s.conn.Exec(ctx, `TRUNCATE TABLE IF EXISTS events`); err != nil {
		return 0, fmt.Errorf("failed to truncate events: %w", err)
	}
	return int(n), nil
}

func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseStore) count(ctx context.Context, query string, args ...any) (uint64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
