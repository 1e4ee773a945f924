package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"pulsetrail/api/aggregate"
	"pulsetrail/api/models"
)

const timeLayout = "2006-01-02 15:04:05"

// render writes the summary cards, the ranked views, the recent window and
// the full event table.
func render(w io.Writer, data models.DataResponse, loc *time.Location) error {
	s := data.Summary
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Total Events\tUnique Sessions\tPage Views\tClicks\n")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n\n", s.TotalEvents, s.UniqueSessions,
		s.EventTypes["page_view"], s.EventTypes["click"]+s.EventTypes["clicked"])

	section(tw, "Event Types")
	for _, c := range aggregate.TopN(s.EventTypes, len(s.EventTypes)) {
		fmt.Fprintf(tw, "  %s\t%d\n", strings.ReplaceAll(c.Key, "_", " "), c.Count)
	}

	section(tw, "Top Pages")
	for _, c := range aggregate.TopN(s.TopPages, aggregate.TopPagesLimit) {
		fmt.Fprintf(tw, "  %s\t%d\n", c.Key, c.Count)
	}

	section(tw, "Most Clicked Elements")
	for _, c := range aggregate.TopN(s.TopElements, aggregate.TopElementsLimit) {
		fmt.Fprintf(tw, "  %s\t%d\n", c.Key, c.Count)
	}

	section(tw, fmt.Sprintf("Recent Activity (Last %d)", aggregate.RecentLimit))
	for _, e := range s.RecentActivity {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", e.ID, e.EventType, e.PagePath, orDash(e.ElementText), e.Timestamp.In(loc).Format(timeLayout))
	}

	section(tw, "All Events")
	fmt.Fprintf(tw, "  ID\tType\tElement\tPage\tSession\tTimestamp\n")
	for _, e := range data.Events {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.EventType, orDash(e.ElementText), e.PagePath,
			shortSession(e.SessionID), e.Timestamp.In(loc).Format(timeLayout))
	}
	if len(data.Events) == 0 {
		fmt.Fprintf(tw, "  No events found\n")
	}

	return tw.Flush()
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
}

// shortSession keeps the last 8 characters of a session id.
func shortSession(id string) string {
	if id == "" {
		return "-"
	}
	if r := []rune(id); len(r) > 8 {
		return string(r[len(r)-8:])
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
