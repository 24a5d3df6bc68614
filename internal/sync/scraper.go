package sync

import (
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Event is one (date, title) pair extracted from an upstream calendar.
type Event struct {
	Date  time.Time
	Title string
}

const maxTitleLen = 100

var monthsByName = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

const monthPattern = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	// "March 14, 2025" and "March 14 2025"
	reMonthDayYear = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	// "3/14/2025"
	reSlashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	// "3-14-2025"
	reDashDate = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{4})\b`)
	// "March 14" with current-year assumption
	reMonthDay = regexp.MustCompile(`(?i)\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)

	reWord = regexp.MustCompile(`[A-Za-z]{3,}`)

	reCalendarClass = regexp.MustCompile(`(?i)calendar|event|schedule`)
)

var weekdaySet = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true,
}

var navLabels = map[string]bool{
	"previous": true, "next": true, "view": true, "more": true,
	"details": true, "click": true, "here": true, "click here": true,
}

// ParseHTMLEvents extracts dated events from a calendar-ish web page: plain
// text lines, anchor texts, and rows of structured containers. The last
// title seen for a date wins.
func ParseHTMLEvents(r io.Reader, now time.Time) ([]Event, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]string)
	collect := func(text string) {
		if d, title, ok := extractDated(text, now); ok {
			byDate[d] = title
		}
	}

	for _, line := range strings.Split(documentText(doc), "\n") {
		collect(line)
	}
	for _, a := range collectAnchors(doc) {
		collect(a.text)
	}
	for _, row := range structuredRows(doc) {
		collect(row)
	}

	events := make([]Event, 0, len(byDate))
	for d, title := range byDate {
		events = append(events, Event{Date: d, Title: title})
	}
	sortEvents(events)
	return events, nil
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
}

// extractDated pulls the first date-shaped substring out of a line and
// treats the remainder as the title.
func extractDated(line string, now time.Time) (time.Time, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return time.Time{}, "", false
	}

	var m *dateMatch

	if loc := reMonthDayYear.FindStringSubmatchIndex(line); loc != nil {
		month := monthsByName[strings.ToLower(line[loc[2]:loc[3]])]
		day, _ := strconv.Atoi(line[loc[4]:loc[5]])
		year, _ := strconv.Atoi(line[loc[6]:loc[7]])
		if d, ok := civil(year, month, day); ok {
			m = &dateMatch{loc: loc[:2], date: d}
		}
	}
	if m == nil {
		if loc := reSlashDate.FindStringSubmatchIndex(line); loc != nil {
			m = numericMatch(line, loc)
		}
	}
	if m == nil {
		if loc := reDashDate.FindStringSubmatchIndex(line); loc != nil {
			m = numericMatch(line, loc)
		}
	}
	if m == nil {
		if loc := reMonthDay.FindStringSubmatchIndex(line); loc != nil {
			month := monthsByName[strings.ToLower(line[loc[2]:loc[3]])]
			day, _ := strconv.Atoi(line[loc[4]:loc[5]])
			if d, ok := civil(now.Year(), month, day); ok {
				m = &dateMatch{loc: loc[:2], date: d}
			}
		}
	}
	if m == nil {
		return time.Time{}, "", false
	}

	title := cleanTitle(line[:m.loc[0]] + " " + line[m.loc[1]:])
	if !titleOK(title) {
		return time.Time{}, "", false
	}
	return m.date, title, true
}

type dateMatch struct {
	loc  []int
	date time.Time
}

func numericMatch(line string, loc []int) *dateMatch {
	month, _ := strconv.Atoi(line[loc[2]:loc[3]])
	day, _ := strconv.Atoi(line[loc[4]:loc[5]])
	year, _ := strconv.Atoi(line[loc[6]:loc[7]])
	d, ok := civil(year, time.Month(month), day)
	if !ok {
		return nil
	}
	return &dateMatch{loc: loc[:2], date: d}
}

func civil(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject rollovers like February 30.
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".,;:!?-–—|•*()[]\"'")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxTitleLen {
		s = strings.TrimSpace(s[:maxTitleLen])
	}
	return s
}

func titleOK(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	if weekdaySet[lower] || navLabels[lower] {
		return false
	}
	if _, err := strconv.Atoi(strings.ReplaceAll(title, " ", "")); err == nil {
		return false
	}
	return reWord.MatchString(title)
}

// documentText extracts readable text, skipping script and style subtrees,
// one line per block-ish element.
func documentText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "br", "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n")
			}
		}
	}
	walk(doc)
	return sb.String()
}

// structuredRows returns the per-row text of tables, lists, and divs whose
// class hints at calendar content.
func structuredRows(doc *html.Node) []string {
	var rows []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "table":
				for _, tr := range childElements(n, "tr") {
					rows = append(rows, rowText(tr))
				}
			case "ul", "ol":
				for _, li := range childElements(n, "li") {
					rows = append(rows, nodeText(li))
				}
			case "div":
				if classMatches(n) {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode {
							rows = append(rows, nodeText(c))
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

// rowText joins a row's cells with spaces so a date and a title held in
// separate cells read as one line.
func rowText(tr *html.Node) string {
	cells := childElements(tr, "td")
	if len(cells) == 0 {
		cells = childElements(tr, "th")
	}
	if len(cells) == 0 {
		return nodeText(tr)
	}
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		parts = append(parts, nodeText(c))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func classMatches(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && reCalendarClass.MatchString(attr.Val) {
			return true
		}
	}
	return false
}

// childElements finds descendants with the given tag.
func childElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}
