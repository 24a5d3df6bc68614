// Package sync implements the external calendar pipeline: discovering a
// provider's calendar URL, parsing events from it (HTML pages and iCalendar
// feeds), persisting them per provider, and the batch runner that keeps
// every enabled sync fresh.
package sync

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Candidate subpaths probed before falling back to link scoring.
var candidatePaths = []string{
	"/calendar", "/events", "/schedule", "/closures", "/holidays", "/news", "/announcements",
	"/calendar.html", "/events.html", "/schedule.html", "/closures.html", "/holidays.html",
	"/calendar.php", "/events.php", "/schedule.php",
}

var linkKeywords = []struct {
	word  string
	score int
}{
	{"calendar", 10},
	{"academic", 9},
	{"events", 8},
	{"schedule", 6},
	{"closure", 5},
	{"holiday", 4},
}

type Discoverer struct {
	head   *http.Client
	get    *http.Client
	logger zerolog.Logger
}

func NewDiscoverer(headClient, getClient *http.Client, logger zerolog.Logger) *Discoverer {
	return &Discoverer{head: headClient, get: getClient, logger: logger}
}

// Discover finds the most plausible calendar URL under a provider's site.
// Returns "" when nothing qualifies.
func (d *Discoverer) Discover(ctx context.Context, website string) (string, error) {
	base := normalizeScheme(website)
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	for _, p := range candidatePaths {
		probe := baseURL.ResolveReference(&url.URL{Path: p}).String()
		if d.probe(ctx, probe) {
			return probe, nil
		}
	}

	return d.scoreLinks(ctx, baseURL)
}

func (d *Discoverer) probe(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	resp, err := d.head.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// scoreLinks fetches the base page and scores each anchor by calendar-ish
// keywords, returning the best match.
func (d *Discoverer) scoreLinks(ctx context.Context, baseURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := d.get.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", err
	}

	best, bestScore := "", 0
	for _, a := range collectAnchors(doc) {
		score := scoreAnchor(a)
		if score <= bestScore {
			continue
		}
		ref, err := url.Parse(a.href)
		if err != nil {
			continue
		}
		best, bestScore = baseURL.ResolveReference(ref).String(), score
	}
	return best, nil
}

type anchor struct {
	href string
	text string
}

func collectAnchors(doc *html.Node) []anchor {
	var out []anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					break
				}
			}
			if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
				out = append(out, anchor{href: href, text: nodeText(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func scoreAnchor(a anchor) int {
	haystack := strings.ToLower(a.href + " " + a.text)
	score := 0
	for _, kw := range linkKeywords {
		if strings.Contains(haystack, kw.word) && kw.score > score {
			score = kw.score
		}
	}
	return score
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func normalizeScheme(website string) string {
	w := strings.TrimSpace(website)
	if !strings.HasPrefix(w, "http://") && !strings.HasPrefix(w, "https://") {
		return "https://" + w
	}
	return w
}
