package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scrapeNow = time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, html string) []Event {
	t.Helper()
	events, err := ParseHTMLEvents(strings.NewReader(html), scrapeNow)
	require.NoError(t, err)
	return events
}

func TestParseHTMLDateShapes(t *testing.T) {
	page := `<html><body>
		<p>March 14, 2025 Pi Day Celebration</p>
		<p>4/1/2025 Spring Break Begins</p>
		<p>5-26-2025 Memorial Day - School Closed</p>
		<p>June 19 Juneteenth Holiday</p>
	</body></html>`

	events := parse(t, page)
	require.Len(t, events, 4)

	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), events[0].Date)
	assert.Equal(t, "Pi Day Celebration", events[0].Title)

	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), events[1].Date)
	assert.Equal(t, "Spring Break Begins", events[1].Title)

	assert.Equal(t, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC), events[2].Date)
	assert.Equal(t, "Memorial Day - School Closed", events[2].Title)

	// Month-day without a year assumes the current year.
	assert.Equal(t, time.Date(2024, 6, 19, 0, 0, 0, 0, time.UTC), events[3].Date)
	assert.Equal(t, "Juneteenth Holiday", events[3].Title)
}

func TestParseHTMLFiltersJunkTitles(t *testing.T) {
	page := `<html><body>
		<p>March 14, 2025</p>
		<p>March 15, 2025 Monday</p>
		<p>March 16, 2025 12345</p>
		<p>March 17, 2025 Next</p>
		<p>March 18, 2025 Go</p>
		<p>March 19, 2025 Science Fair</p>
	</body></html>`

	events := parse(t, page)
	require.Len(t, events, 1)
	assert.Equal(t, "Science Fair", events[0].Title)
}

func TestParseHTMLSkipsScriptAndStyle(t *testing.T) {
	page := `<html><head>
		<style>.x { content: "January 1, 2025 fake"; }</style>
		<script>var d = "February 2, 2025 also fake";</script>
	</head><body>
		<p>March 3, 2025 Real Event</p>
	</body></html>`

	events := parse(t, page)
	require.Len(t, events, 1)
	assert.Equal(t, "Real Event", events[0].Title)
}

func TestParseHTMLAnchorsAndTables(t *testing.T) {
	page := `<html><body>
		<a href="/e/1">April 2, 2025 Art Show</a>
		<table>
			<tr><td>April 3, 2025</td><td>Field Trip</td></tr>
		</table>
		<div class="calendar-list">
			<div>April 4, 2025 Book Fair</div>
		</div>
	</body></html>`

	events := parse(t, page)
	require.Len(t, events, 3)
	assert.Equal(t, "Art Show", events[0].Title)
	assert.Equal(t, "Field Trip", events[1].Title)
	assert.Equal(t, "Book Fair", events[2].Title)
}

func TestParseHTMLLastTitleWinsPerDate(t *testing.T) {
	page := `<html><body>
		<p>April 2, 2025 First Mention</p>
		<ul><li>April 2, 2025 Final Mention</li></ul>
	</body></html>`

	events := parse(t, page)
	require.Len(t, events, 1)
	assert.Equal(t, "Final Mention", events[0].Title)
}

func TestParseHTMLRejectsImpossibleDates(t *testing.T) {
	page := `<html><body>
		<p>February 30, 2025 Ghost Event</p>
		<p>13/45/2025 Broken Event</p>
	</body></html>`

	events := parse(t, page)
	assert.Empty(t, events)
}

func TestParseHTMLTruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("Annual Science and Engineering Showcase ", 5)
	events := parse(t, "<p>April 2, 2025 "+long+"</p>")
	require.Len(t, events, 1)
	assert.LessOrEqual(t, len(events[0].Title), 100)
}

func TestClassifyEventType(t *testing.T) {
	cases := map[string]string{
		"School Closed - Snow Day":      "closure",
		"Winter Break":                  "closure",
		"Memorial Day Holiday":          "closure",
		"Early Dismissal 1pm":           "early_dismissal",
		"Half Day for Students":         "early_dismissal",
		"PD Day - No School":            "pd_day",
		"Professional Development":      "pd_day",
		"Teacher Workday":               "pd_day",
		"Spring Concert":                "event",
		"Kindergarten Open House":       "event",
	}
	for title, want := range cases {
		assert.Equal(t, want, classifyEventType(title), title)
	}
}
