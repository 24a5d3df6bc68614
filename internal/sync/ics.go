package sync

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ParseICSEvents decodes an iCalendar feed into dated events. Recurring
// events are expanded over a rolling horizon: one month back through twelve
// months ahead of now. Multi-day events contribute one entry per day.
func ParseICSEvents(data []byte, now time.Time) ([]Event, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	horizonStart := now.AddDate(0, -1, 0)
	horizonEnd := now.AddDate(0, 12, 0)

	byDate := make(map[time.Time]string)
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		// Skip malformed events rather than failing the feed.
		if err := expandComponent(comp, horizonStart, horizonEnd, byDate); err != nil {
			continue
		}
	}

	events := make([]Event, 0, len(byDate))
	for d, title := range byDate {
		events = append(events, Event{Date: d, Title: title})
	}
	sortEvents(events)
	return events, nil
}

func expandComponent(comp *ical.Component, horizonStart, horizonEnd time.Time, byDate map[time.Time]string) error {
	summary := comp.Props.Get(ical.PropSummary)
	if summary == nil {
		return fmt.Errorf("missing SUMMARY")
	}
	title := cleanTitle(summary.Value)
	if !titleOK(title) {
		return fmt.Errorf("unusable SUMMARY")
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return fmt.Errorf("missing DTSTART")
	}
	start, err := parseICalDate(dtstart.Value)
	if err != nil {
		return fmt.Errorf("invalid DTSTART: %w", err)
	}

	days := 1
	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if end, err := parseICalDate(dtend.Value); err == nil && end.After(start) {
			// DTEND is exclusive for all-day events.
			days = int(end.Sub(start).Hours()/24 + 0.5)
			if days < 1 {
				days = 1
			}
		}
	}

	var starts []time.Time
	if rr := comp.Props.Get(ical.PropRecurrenceRule); rr != nil {
		opt, err := rrule.StrToROption(rr.Value)
		if err != nil {
			return fmt.Errorf("invalid RRULE: %w", err)
		}
		opt.Dtstart = start
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return fmt.Errorf("invalid RRULE: %w", err)
		}
		starts = rule.Between(horizonStart, horizonEnd, true)
	} else {
		starts = []time.Time{start}
	}

	for _, s := range starts {
		for i := 0; i < days; i++ {
			d := civilDay(s.AddDate(0, 0, i))
			if d.Before(horizonStart) || d.After(horizonEnd) {
				continue
			}
			byDate[d] = title
		}
	}
	return nil
}

// parseICalDate accepts the date and date-time shapes feeds actually emit.
func parseICalDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 8:
		return time.Parse("20060102", s)
	case len(s) == 15:
		return time.Parse("20060102T150405", s)
	case len(s) == 16 && strings.HasSuffix(s, "Z"):
		return time.Parse("20060102T150405Z", s)
	}
	return time.Parse(time.RFC3339, s)
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
