package aggregate

import (
	"pulsetrail/api/models"
)

// Delta is the contribution of one event to every summary field.
type Delta struct {
	EventID     string
	EventType   string
	PagePath    string
	ElementText string
	SessionID   string
	Day         string
}

func DeltaOf(e models.Event) Delta {
	return Delta{
		EventID:     e.ID,
		EventType:   e.EventType,
		PagePath:    e.PagePath,
		ElementText: e.ElementText,
		SessionID:   e.SessionID,
		Day:         DayKey(e.Timestamp),
	}
}

// Remove returns resp with the event identified by id taken out of the event
// list and every aggregate. The second result is false, and resp is returned
// untouched, when id is not part of resp.Events. resp itself is never mutated.
func Remove(resp models.DataResponse, id string) (models.DataResponse, bool) {
	idx := -1
	for i := range resp.Events {
		if resp.Events[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return resp, false
	}

	remaining := make([]models.Event, 0, len(resp.Events)-1)
	remaining = append(remaining, resp.Events[:idx]...)
	remaining = append(remaining, resp.Events[idx+1:]...)

	return models.DataResponse{
		Events:      remaining,
		Summary:     DeltaOf(resp.Events[idx]).Subtract(resp.Summary, remaining),
		TotalEvents: floorZero(resp.TotalEvents - 1),
	}, true
}

// Subtract removes d from s. remaining is the event set after the removal; it
// decides whether the session is still seen and refills the recent window.
func (d Delta) Subtract(s models.Summary, remaining []models.Event) models.Summary {
	out := models.Summary{
		TotalEvents:    floorZero(s.TotalEvents - 1),
		UniqueSessions: s.UniqueSessions,
		EventTypes:     cloneCounts(s.EventTypes),
		TopPages:       cloneCounts(s.TopPages),
		TopElements:    cloneCounts(s.TopElements),
		DailyStats:     cloneCounts(s.DailyStats),
	}

	decrement(out.EventTypes, d.EventType)
	decrement(out.TopPages, d.PagePath)
	if d.ElementText != "" {
		decrement(out.TopElements, d.ElementText)
	}
	decrement(out.DailyStats, d.Day)

	if !hasSession(remaining, d.SessionID) {
		out.UniqueSessions = floorZero(out.UniqueSessions - 1)
	}

	recent := make([]models.Event, 0, len(s.RecentActivity))
	for _, e := range s.RecentActivity {
		if e.ID != d.EventID {
			recent = append(recent, e)
		}
	}
	if want := min(RecentLimit, len(remaining)); len(recent) < want {
		recent = RecentWindow(remaining, RecentLimit)
	}
	out.RecentActivity = recent

	return out
}

// decrement lowers m[key] and drops the key once it reaches zero.
func decrement(m map[string]int, key string) {
	c, ok := m[key]
	if !ok {
		return
	}
	if c <= 1 {
		delete(m, key)
		return
	}
	m[key] = c - 1
}

func hasSession(events []models.Event, sessionID string) bool {
	for _, e := range events {
		if e.SessionID == sessionID {
			return true
		}
	}
	return false
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
