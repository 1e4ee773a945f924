// Package store persists analytics events. Every backend keeps events
// immutable: they can be inserted, listed, deleted one at a time or purged,
// never updated.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"pulsetrail/api/models"
)

// EventStore is implemented by every persistence backend.
type EventStore interface {
	// Insert persists one event. The event is not applied when an error is returned.
	Insert(ctx context.Context, e models.Event) error
	// List returns every stored event, newest first.
	List(ctx context.Context) ([]models.Event, error)
	// Delete removes the event with the given id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Purge removes every event and returns how many were removed.
	Purge(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}
