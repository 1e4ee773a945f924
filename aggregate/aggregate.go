// Package aggregate computes dashboard summaries from raw events.
//
// Compute is a pure function of the event set. Remove applies the effect of
// deleting a single event to an already computed response and is defined so
// that Remove(Response(E), e) equals Response(E without e). The server uses
// Compute for every query; the dashboard client uses Remove to stay in sync
// after a delete without fetching again.
package aggregate

import (
	"sort"
	"time"

	"pulsetrail/api/models"
)

const (
	// RecentLimit is the size of the recent activity window.
	RecentLimit = 20
	// TopPagesLimit and TopElementsLimit bound the ranked views at display time.
	TopPagesLimit    = 10
	TopElementsLimit = 12
)

// DayKey is the dailyStats bucket of t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Compute builds a Summary from events. The input is not modified.
func Compute(events []models.Event) models.Summary {
	s := emptySummary()
	sessions := make(map[string]struct{}, len(events))

	for _, e := range events {
		d := DeltaOf(e)
		s.EventTypes[d.EventType]++
		s.TopPages[d.PagePath]++
		if d.ElementText != "" {
			s.TopElements[d.ElementText]++
		}
		s.DailyStats[d.Day]++
		sessions[d.SessionID] = struct{}{}
	}

	s.TotalEvents = len(events)
	s.UniqueSessions = len(sessions)
	s.RecentActivity = RecentWindow(events, RecentLimit)
	return s
}

// Response wraps events and their freshly computed summary.
func Response(events []models.Event) models.DataResponse {
	list := make([]models.Event, len(events))
	copy(list, events)
	return models.DataResponse{
		Events:      list,
		Summary:     Compute(list),
		TotalEvents: len(list),
	}
}

// RecentWindow returns the n most recent events, newest first. Events with
// equal timestamps keep their input order.
func RecentWindow(events []models.Event, n int) []models.Event {
	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// TopN ranks m by count descending, ties broken by key ascending.
func TopN(m map[string]int, n int) []models.Count {
	out := make([]models.Count, 0, len(m))
	for k, c := range m {
		if c > 0 {
			out = append(out, models.Count{Key: k, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func emptySummary() models.Summary {
	return models.Summary{
		EventTypes:     map[string]int{},
		TopPages:       map[string]int{},
		TopElements:    map[string]int{},
		RecentActivity: []models.Event{},
		DailyStats:     map[string]int{},
	}
}
