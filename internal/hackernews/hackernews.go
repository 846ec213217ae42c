// Package hackernews reads the top stories list and item details from the
// Hacker News Firebase API.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/hndigest/internal/metrics"
)

type StoryID int64

// Story is an item that passed the score filter.
type Story struct {
	Title string
	URL   string
	Score int
}

type Options struct {
	TopStoriesURL   string
	ItemURLTemplate string // must contain one %d verb
	Concurrency     int
}

type Client struct {
	httpClient *http.Client
	opts       Options
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// RequestError describes a failed request to an endpoint the run depends on.
type RequestError struct {
	Label  string
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *RequestError) Error() string {
	parts := []string{e.Label, e.URL}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return "request failed: " + strings.Join(parts, " | ")
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func NewClient(httpClient *http.Client, opts Options, log *zap.Logger, m *metrics.Metrics) *Client {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Client{httpClient: httpClient, opts: opts, log: log, metrics: m}
}

// TopStoryIDs returns the first limit ids in ranking order.
func (c *Client) TopStoryIDs(ctx context.Context, limit int) ([]StoryID, error) {
	const label = "HN topstories"
	url := c.opts.TopStoriesURL

	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, &RequestError{Label: label, URL: url, Status: status, Err: err}
	}
	if status != http.StatusOK {
		return nil, &RequestError{Label: label, URL: url, Status: status}
	}

	var ids []StoryID
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, &RequestError{Label: label, URL: url, Status: status, Err: fmt.Errorf("decode ids: %w", err)}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	c.metrics.TopStoriesFetched.Add(float64(len(ids)))
	return ids, nil
}

// Stories fetches every id concurrently and keeps those scoring at least
// threshold. Failed requests are skipped; they never affect other ids.
func (c *Client) Stories(ctx context.Context, ids []StoryID, threshold int) []Story {
	slots := make([]*Story, len(ids))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			item, err := c.fetchItem(ctx, id)
			if err != nil {
				c.metrics.DetailFailures.Inc()
				c.log.Debug("skipping story", zap.Int64("id", int64(id)), zap.Error(err))
				return nil
			}
			if int(item.Score) < threshold {
				c.metrics.StoriesFiltered.Inc()
				return nil
			}
			slots[i] = &Story{Title: item.Title, URL: item.URL, Score: int(item.Score)}
			return nil
		})
	}
	_ = g.Wait()

	stories := make([]Story, 0, len(ids))
	for _, s := range slots {
		if s != nil {
			stories = append(stories, *s)
		}
	}
	c.metrics.StoriesQualified.Add(float64(len(stories)))
	return stories
}

type rawItem struct {
	Title string   `json:"title"`
	URL   string   `json:"url"`
	Score LooseInt `json:"score"`
}

func (c *Client) fetchItem(ctx context.Context, id StoryID) (*rawItem, error) {
	url := fmt.Sprintf(c.opts.ItemURLTemplate, id)

	status, body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", status)
	}

	var it *rawItem
	if err := json.Unmarshal(body, &it); err != nil {
		return nil, fmt.Errorf("decode item %d: %w", id, err)
	}
	if it == nil {
		return nil, fmt.Errorf("item %d not found", id)
	}
	return it, nil
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("error reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}
