package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pulsetrail/api/aggregate"
	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
	"pulsetrail/api/models"
	"pulsetrail/api/store"
	"pulsetrail/api/stream"
)

// AdminHandlers serve the operator endpoints. They sit behind OperatorAuth.
type AdminHandlers struct {
	Store        store.EventStore
	Feed         *stream.Feed
	QueryTimeout time.Duration
}

func NewAdminHandlers(s store.EventStore, feed *stream.Feed, queryTimeout time.Duration) *AdminHandlers {
	return &AdminHandlers{Store: s, Feed: feed, QueryTimeout: queryTimeout}
}

// GetData returns every event, newest first, with a summary computed on the spot.
func (h *AdminHandlers) GetData(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.QueryTimeout)
	defer cancel()

	events, err := h.Store.List(ctx)
	if err != nil {
		status, msg := statusForStoreError(err)
		logging.Error().Err(err).Msg("failed to list events")
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, aggregate.Response(events))
}

// DeleteEvent removes one event. Deleting an id that does not exist succeeds
// with "deleted": false.
func (h *AdminHandlers) DeleteEvent(c *gin.Context) {
	var req models.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event id is required"})
		return
	}
	id := strings.TrimSpace(req.ID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.QueryTimeout)
	defer cancel()

	deleted, err := h.Store.Delete(ctx, id)
	if err != nil {
		status, msg := statusForStoreError(err)
		logging.Error().Err(err).Str("event_id", id).Msg("failed to delete event")
		c.JSON(status, gin.H{"error": msg})
		return
	}

	if deleted {
		metrics.EventsDeleted.Inc()
		h.Feed.Emit(stream.Deleted(id))
	}
	logging.Info().Str("event_id", id).Bool("deleted", deleted).Msg("event delete requested")
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": deleted})
}

// ClearEvents purges the whole event set.
func (h *AdminHandlers) ClearEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.QueryTimeout)
	defer cancel()

	n, err := h.Store.Purge(ctx)
	if err != nil {
		status, msg := statusForStoreError(err)
		logging.Error().Err(err).Msg("failed to purge events")
		c.JSON(status, gin.H{"error": msg})
		return
	}

	metrics.Purges.Inc()
	h.Feed.Emit(stream.Purged(n))
	logging.Warn().Int("deleted", n).Msg("event store purged")
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
