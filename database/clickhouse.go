package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pulsetrail/api/config"
	"pulsetrail/api/logging"
)

const clickHouseEventsDDL = `
	CREATE TABLE IF NOT EXISTS events (
		id           String,
		event_type   LowCardinality(String),
		element_id   String,
		element_text String,
		page_path    String,
		session_id   String,
		user_agent   String,
		timestamp    DateTime64(3, 'UTC'),
		metadata     String,
		inserted_at  DateTime64(3, 'UTC') DEFAULT now64(3)
	)
	ENGINE = MergeTree
	ORDER BY (timestamp, id)
`

type ClickHouseClient struct {
	Conn driver.Conn
}

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	if cfg.Host == "" || cfg.NativePort == 0 || cfg.Database == "" {
		return nil, fmt.Errorf("clickhouse host, native port and database must be set")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "pulsetrail-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logging.Info().Str("addr", options.Addr[0]).Msg("connected to ClickHouse")
	return &ClickHouseClient{Conn: conn}, nil
}

// EnsureSchema creates the events table when it does not exist yet.
func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	if err := c.Conn.Exec(ctx, clickHouseEventsDDL); err != nil {
		return fmt.Errorf("failed to create ClickHouse events table: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Close(); err != nil {
		logging.Error().Err(err).Msg("error closing ClickHouse connection")
		return
	}
	logging.Info().Msg("ClickHouse connection closed")
}
