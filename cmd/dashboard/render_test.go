package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrail/api/aggregate"
	"pulsetrail/api/models"
)

func TestRender(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	var events []models.Event
	for i := 0; i < 15; i++ {
		events = append(events, models.Event{
			ID:          fmt.Sprintf("e%02d", i),
			EventType:   "clicked",
			ElementText: fmt.Sprintf("Button %02d", i),
			PagePath:    fmt.Sprintf("/page-%02d", i),
			SessionID:   "session_1741944600000",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	events = append(events, models.Event{ID: "pv", EventType: "page_view", PagePath: "/", Timestamp: base})

	var buf bytes.Buffer
	require.NoError(t, render(&buf, aggregate.Response(events), time.UTC))
	out := buf.String()

	assert.Contains(t, out, "Most Clicked Elements")
	assert.Contains(t, out, "page view")
	assert.Contains(t, out, "44600000", "session ids keep their last 8 characters")
	assert.NotContains(t, out, "session_1741944600000")
	assert.Contains(t, out, "2025-03-14 09:14:00")

	ranked := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "  Button ") {
			ranked++
		}
	}
	assert.Equal(t, aggregate.TopElementsLimit, ranked)
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, aggregate.Response(nil), time.UTC))
	assert.Contains(t, buf.String(), "No events found")
}

func TestShortSession(t *testing.T) {
	assert.Equal(t, "-", shortSession(""))
	assert.Equal(t, "abc", shortSession("abc"))
	assert.Equal(t, "12345678", shortSession("session_12345678"))
}
