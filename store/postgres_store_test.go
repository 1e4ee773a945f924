package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrail/api/models"
)

var eventColumns = []string{
	"id", "event_type", "element_id", "element_text", "page_path", "session_id", "user_agent", "timestamp", "metadata",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs("e1", "clicked", "title-contact", "Contact", "/", "s1", "ua", ts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Insert(context.Background(), models.Event{
		ID:          "e1",
		EventType:   "clicked",
		ElementID:   "title-contact",
		ElementText: "Contact",
		PagePath:    "/",
		SessionID:   "s1",
		UserAgent:   "ua",
		Timestamp:   ts,
		Metadata:    map[string]any{"title": "Contact"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnError(errors.New("connection reset"))

	err := s.Insert(context.Background(), models.Event{ID: "e1", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockStore(t)
	newer := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	rows := sqlmock.NewRows(eventColumns).
		AddRow("e2", "page_view", "", "", "/blog", "s2", "ua", newer, nil).
		AddRow("e1", "clicked", "title-contact", "Contact", "/", "s1", "ua", older, []byte(`{"title":"Contact"}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).WillReturnRows(rows)

	events, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.Nil(t, events[0].Metadata)
	assert.Equal(t, "Contact", events[1].Metadata["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUnreadableMetadata(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventColumns).
		AddRow("e2", "page_view", "", "", "/", "s1", "ua", ts.Add(time.Minute), []byte(`{not json`)).
		AddRow("e1", "clicked", "", "Contact", "/", "s1", "ua", ts, []byte(`{"title":"Contact"}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).WillReturnRows(rows)

	events, err := s.List(context.Background())
	require.NoError(t, err, "one bad row must not fail the listing")
	require.Len(t, events, 2)
	assert.Nil(t, events[0].Metadata)
	assert.Equal(t, "Contact", events[1].Metadata["title"])
}

func TestPostgresStore_ListEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events")).WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestPostgresStore_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		expected bool
	}{
		{"existing row", 1, true},
		{"unknown id", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).
				WithArgs("e1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			deleted, err := s.Delete(context.Background(), "e1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, deleted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Purge(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events")).WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := s.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events")).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := s.Purge(context.Background())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
