package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ics(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func TestParseICSSingleEvents(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	data := ics(
		"BEGIN:VEVENT",
		"UID:1@test",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20240910",
		"SUMMARY:First Day of School",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:2@test",
		"DTSTAMP:20240601T000000Z",
		"DTSTART:20241111T090000Z",
		"SUMMARY:Veterans Day Assembly",
		"END:VEVENT",
	)

	events, err := ParseICSEvents(data, now)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Equal(t, "First Day of School", events[0].Title)
	assert.Equal(t, time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC), events[1].Date)
	assert.Equal(t, "Veterans Day Assembly", events[1].Title)
}

func TestParseICSMultiDayEvent(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	data := ics(
		"BEGIN:VEVENT",
		"UID:3@test",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20241223",
		"DTEND;VALUE=DATE:20241227",
		"SUMMARY:Winter Break",
		"END:VEVENT",
	)

	events, err := ParseICSEvents(data, now)
	require.NoError(t, err)
	// DTEND is exclusive: the 23rd through the 26th.
	require.Len(t, events, 4)
	assert.Equal(t, time.Date(2024, 12, 23, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Equal(t, time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC), events[3].Date)
	for _, e := range events {
		assert.Equal(t, "Winter Break", e.Title)
	}
}

func TestParseICSExpandsRecurrenceWithinHorizon(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	data := ics(
		"BEGIN:VEVENT",
		"UID:4@test",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240605T150000Z",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"SUMMARY:Early Release Wednesday",
		"END:VEVENT",
	)

	events, err := ParseICSEvents(data, now)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Equal(t, time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC), events[3].Date)
}

func TestParseICSSkipsMalformedEvents(t *testing.T) {
	now := time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
	data := ics(
		"BEGIN:VEVENT",
		"UID:5@test",
		"DTSTAMP:20240601T000000Z",
		"SUMMARY:No Date At All",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:6@test",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20240910",
		"SUMMARY:Kept Event",
		"END:VEVENT",
	)

	events, err := ParseICSEvents(data, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Kept Event", events[0].Title)
}

func TestParseICSRejectsGarbage(t *testing.T) {
	_, err := ParseICSEvents([]byte("<html>not a calendar</html>"), time.Now())
	assert.Error(t, err)
}
