// Package papers fetches recent arXiv papers by category and shapes them
// into the structured briefings sessions are configured with.
package papers

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/paperwave/studio/pkg/engine"
)

const (
	// DefaultBaseURL is the public arXiv Atom API.
	DefaultBaseURL = "http://export.arxiv.org/api/query"

	// MaxTopics bounds one request; MaxTopicLen bounds each category name.
	MaxTopics   = 10
	MaxTopicLen = 50

	// maxResults caps both the per-topic fetch and the merged result.
	maxResults = 10

	defaultTimeout = 30 * time.Second
)

// Paper is one catalog entry. Authors are pre-formatted for display.
type Paper struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Authors   string `json:"authors"`
	Abstract  string `json:"abstract"`
	Published string `json:"published"`
	URL       string `json:"arxiv_url"`
}

// Client talks to the arXiv API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Logger:     logger,
	}
}

var topicSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// SanitizeTopic strips everything but category-name characters.
func SanitizeTopic(topic string) string {
	return topicSanitizer.ReplaceAllString(topic, "")
}

// ValidTopics sanitizes and filters a caller's topic list. Topics that
// sanitize to nothing or exceed the length bound are dropped.
func ValidTopics(topics []string) ([]string, error) {
	if len(topics) == 0 {
		return nil, engine.New(engine.CodeInvalidRequest, "at least one topic must be selected")
	}
	if len(topics) > MaxTopics {
		return nil, engine.Newf(engine.CodeInvalidRequest, "too many topics selected (max %d)", MaxTopics)
	}
	valid := make([]string, 0, len(topics))
	for _, t := range topics {
		s := SanitizeTopic(t)
		if s != "" && len(s) <= MaxTopicLen {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil, engine.New(engine.CodeInvalidRequest, "no valid topics provided")
	}
	return valid, nil
}

// FormatAuthors keeps the first three names and appends "et al." when the
// list is longer.
func FormatAuthors(names []string) string {
	trimmed := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			trimmed = append(trimmed, n)
		}
	}
	if len(trimmed) > 3 {
		return strings.Join(trimmed[:3], ", ") + ", et al."
	}
	return strings.Join(trimmed, ", ")
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeAbstract(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Atom feed shapes, limited to the fields we read.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Authors   []atomPerson `xml:"author"`
}

type atomPerson struct {
	Name string `xml:"name"`
}

// Fetch queries every valid topic, merges the results, dedupes by paper id,
// and returns the most recent papers first, capped at a fixed size.
func (c *Client) Fetch(ctx context.Context, topics []string) ([]Paper, error) {
	valid, err := ValidTopics(topics)
	if err != nil {
		return nil, err
	}

	var all []Paper
	for _, topic := range valid {
		entries, err := c.fetchTopic(ctx, topic)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	seen := make(map[string]struct{}, len(all))
	unique := all[:0]
	for _, p := range all {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		unique = append(unique, p)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Published > unique[j].Published
	})
	if len(unique) > maxResults {
		unique = unique[:maxResults]
	}
	return unique, nil
}

func (c *Client) fetchTopic(ctx context.Context, topic string) ([]Paper, error) {
	q := url.Values{}
	q.Set("search_query", "cat:"+topic)
	q.Set("start", "0")
	q.Set("max_results", fmt.Sprintf("%d", maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, engine.Newf(engine.CodeInvalidRequest, "build catalog request: %v", err)
	}

	c.Logger.Info("fetching papers", "topic", topic)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, unavailable()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, unavailable()
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, unavailable()
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		id := entry.ID
		if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
			id = id[idx+len("/abs/"):]
		}
		if id == "" {
			continue
		}
		names := make([]string, 0, len(entry.Authors))
		for _, a := range entry.Authors {
			names = append(names, a.Name)
		}
		papers = append(papers, Paper{
			ID:        id,
			Title:     strings.TrimSpace(entry.Title),
			Authors:   FormatAuthors(names),
			Abstract:  normalizeAbstract(entry.Summary),
			Published: strings.TrimSpace(entry.Published),
			URL:       "https://arxiv.org/abs/" + id,
		})
		if len(papers) >= maxResults {
			break
		}
	}
	return papers, nil
}

func unavailable() *engine.Error {
	err := engine.New(engine.CodeUpstreamFailure, "paper catalog is temporarily unavailable")
	err.HTTPStatus = http.StatusServiceUnavailable
	return err
}
