package models

import (
	"time"
)

// Event is one immutable record of a visitor interaction or page view.
type Event struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	ElementID   string         `json:"element_id,omitempty"`
	ElementText string         `json:"element_text,omitempty"`
	PagePath    string         `json:"page_path"`
	SessionID   string         `json:"session_id"`
	UserAgent   string         `json:"user_agent"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TrackRequest is the public ingestion payload. Timestamp stays a string so
// that a malformed value can be reported instead of silently zeroed.
type TrackRequest struct {
	EventType   string         `json:"event_type" binding:"required,max=64"`
	ElementID   string         `json:"element_id" binding:"max=256"`
	ElementText string         `json:"element_text" binding:"max=512"`
	PagePath    string         `json:"page_path" binding:"required,max=2048"`
	UserAgent   string         `json:"user_agent" binding:"max=1024"`
	SessionID   string         `json:"session_id" binding:"max=256"`
	Timestamp   string         `json:"timestamp"`
	Metadata    map[string]any `json:"metadata"`
}

type DeleteRequest struct {
	ID string `json:"id" binding:"required"`
}

// Summary is derived from the current event set and never persisted.
type Summary struct {
	TotalEvents    int            `json:"totalEvents"`
	UniqueSessions int            `json:"uniqueSessions"`
	EventTypes     map[string]int `json:"eventTypes"`
	TopPages       map[string]int `json:"topPages"`
	TopElements    map[string]int `json:"topElements"`
	RecentActivity []Event        `json:"recentActivity"`
	DailyStats     map[string]int `json:"dailyStats"`
}

// DataResponse is the admin query payload.
type DataResponse struct {
	Events      []Event `json:"events"`
	Summary     Summary `json:"summary"`
	TotalEvents int     `json:"totalEvents"`
}

// Count is one ranked entry of a top-N view.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
