package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pulsetrail/api/config"
	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
	"pulsetrail/api/store"
	"pulsetrail/api/stream"
	"pulsetrail/api/utils"
)

// Ingestion size limits used when the configuration leaves them unset.
const (
	DefaultMaxBodyBytes     = 64 << 10
	DefaultMaxMetadataBytes = 8 << 10
)

type TrackHandlers struct {
	Store            store.EventStore
	Feed             *stream.Feed
	IngestTimeout    time.Duration
	MaxBodyBytes     int64
	MaxMetadataBytes int
	now              func() time.Time
}

func NewTrackHandlers(s store.EventStore, feed *stream.Feed, cfg config.TrackConfig) *TrackHandlers {
	h := &TrackHandlers{
		Store:            s,
		Feed:             feed,
		IngestTimeout:    cfg.IngestTimeout,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		MaxMetadataBytes: cfg.MaxMetadataBytes,
		now:              time.Now,
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if h.MaxMetadataBytes <= 0 {
		h.MaxMetadataBytes = DefaultMaxMetadataBytes
	}
	return h
}

// TrackEvent records one event reported by a tracked page.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes)

	var req models.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.EventsRejected.WithLabelValues("too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large", "limit": tooLarge.Limit})
			return
		}
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		logging.Debug().Err(err).Msg("rejecting malformed tracking payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	event, err := h.buildEvent(req, c.GetHeader("User-Agent"))
	if err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.IngestTimeout)
	defer cancel()

	if err := h.Store.Insert(ctx, event); err != nil {
		metrics.EventsRejected.WithLabelValues("store").Inc()
		logging.Error().Err(err).Str("event_type", event.EventType).Msg("failed to record event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
		return
	}

	metrics.EventsIngested.WithLabelValues(event.EventType).Inc()
	h.Feed.Emit(stream.Created(event))

	c.JSON(http.StatusCreated, gin.H{"id": event.ID})
}

func (h *TrackHandlers) buildEvent(req models.TrackRequest, headerUA string) (models.Event, error) {
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return models.Event{}, &models.ValidationError{Field: "event_type", Reason: "must not be blank"}
	}
	pagePath := strings.TrimSpace(req.PagePath)
	if pagePath == "" {
		return models.Event{}, &models.ValidationError{Field: "page_path", Reason: "must not be blank"}
	}

	now := h.now()
	ts := now.UTC()
	if raw := strings.TrimSpace(req.Timestamp); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.Event{}, &models.ValidationError{Field: "timestamp", Reason: "must be an RFC 3339 date-time"}
		}
		ts = parsed.UTC()
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = utils.SyntheticSessionID(now)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = headerUA
	}

	if len(req.Metadata) > 0 {
		encoded, err := json.Marshal(req.Metadata)
		if err != nil {
			return models.Event{}, &models.ValidationError{Field: "metadata", Reason: "must be a JSON object"}
		}
		if len(encoded) > h.MaxMetadataBytes {
			return models.Event{}, &models.ValidationError{
				Field:  "metadata",
				Reason: fmt.Sprintf("must not exceed %d bytes when encoded", h.MaxMetadataBytes),
			}
		}
	}

	return models.Event{
		ID:          uuid.New().String(),
		EventType:   eventType,
		ElementID:   req.ElementID,
		ElementText: strings.TrimSpace(req.ElementText),
		PagePath:    pagePath,
		SessionID:   sessionID,
		UserAgent:   userAgent,
		Timestamp:   ts,
		Metadata:    req.Metadata,
	}, nil
}

// statusForStoreError maps a failed store call to the response status.
func statusForStoreError(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "Store operation timed out"
	}
	return http.StatusInternalServerError, "Store operation failed"
}
