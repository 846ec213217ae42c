package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deusflow/hndigest/internal/config"
	"github.com/deusflow/hndigest/internal/hackernews"
	"github.com/deusflow/hndigest/internal/metrics"
	"github.com/deusflow/hndigest/internal/telegram"
)

type fakeSource struct {
	ids       []hackernews.StoryID
	topErr    error
	stories   []hackernews.Story
	onStories func()
	gotLimit  int
	gotIDs    []hackernews.StoryID
	gotThresh int
}

func (f *fakeSource) TopStoryIDs(ctx context.Context, limit int) ([]hackernews.StoryID, error) {
	f.gotLimit = limit
	return f.ids, f.topErr
}

func (f *fakeSource) Stories(ctx context.Context, ids []hackernews.StoryID, threshold int) []hackernews.Story {
	f.gotIDs, f.gotThresh = ids, threshold
	if f.onStories != nil {
		f.onStories()
	}
	return f.stories
}

type fakeSummarizer struct {
	text   string
	err    error
	calls  int
	prompt string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.text, f.err
}

type fakePublisher struct {
	err   error
	calls int
	chat  string
	text  string
	mode  string
}

func (f *fakePublisher) SendMessage(ctx context.Context, chatID, text, parseMode string) error {
	f.calls++
	f.chat, f.text, f.mode = chatID, text, parseMode
	return f.err
}

var testSettings = Settings{StoryLimit: 50, ScoreThreshold: 50, ChatID: "-100500", ParseMode: "Markdown"}

func TestPipeline_HappyPath(t *testing.T) {
	src := &fakeSource{
		ids: []hackernews.StoryID{1, 2},
		stories: []hackernews.Story{
			{Title: "A", URL: "https://a", Score: 70},
			{Title: "B", URL: "https://b", Score: 55},
		},
	}
	sum := &fakeSummarizer{text: "- digest"}
	pub := &fakePublisher{}
	m := metrics.New()

	err := NewPipeline(src, sum, pub, testSettings, zap.NewNop(), m).Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 50, src.gotLimit)
	assert.Equal(t, 50, src.gotThresh)
	assert.Equal(t, []hackernews.StoryID{1, 2}, src.gotIDs)
	assert.Equal(t, "- A (Score: 70) - https://a\n- B (Score: 55) - https://b", sum.prompt)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "-100500", pub.chat)
	assert.Equal(t, "- digest", pub.text)
	assert.Equal(t, "Markdown", pub.mode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("success")))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccess), 0.0)
}

func TestPipeline_NoWorthyStoriesStopsEarly(t *testing.T) {
	src := &fakeSource{ids: []hackernews.StoryID{1, 2, 3}}
	sum := &fakeSummarizer{text: "unused"}
	pub := &fakePublisher{}

	err := NewPipeline(src, sum, pub, testSettings, zap.NewNop(), metrics.New()).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.calls)
	assert.Equal(t, 0, pub.calls)
}

func TestPipeline_TopStoriesFailureAborts(t *testing.T) {
	reqErr := &hackernews.RequestError{Label: "HN topstories", URL: "https://hn", Status: 500}
	src := &fakeSource{topErr: reqErr}
	sum := &fakeSummarizer{}
	pub := &fakePublisher{}

	err := NewPipeline(src, sum, pub, testSettings, zap.NewNop(), metrics.New()).Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, reqErr)
	assert.Nil(t, src.gotIDs)
	assert.Equal(t, 0, sum.calls)
	assert.Equal(t, 0, pub.calls)
}

func TestPipeline_SummarizerExhaustedAbortsWithoutPublishing(t *testing.T) {
	src := &fakeSource{ids: []hackernews.StoryID{1}, stories: []hackernews.Story{{Title: "A", Score: 99}}}
	sum := &fakeSummarizer{err: errors.New("failed after 3 attempts: boom")}
	pub := &fakePublisher{}
	m := metrics.New()

	err := NewPipeline(src, sum, pub, testSettings, zap.NewNop(), m).Run(t.Context())
	require.Error(t, err)
	assert.Equal(t, 0, pub.calls)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))
}

func TestPipeline_PublishFailureIsLoggedNotReturned(t *testing.T) {
	src := &fakeSource{ids: []hackernews.StoryID{1}, stories: []hackernews.Story{{Title: "A", Score: 99}}}
	sum := &fakeSummarizer{text: "- digest"}
	pub := &fakePublisher{err: &telegram.APIError{Status: 400, Description: "Bad Request: can't parse entities"}}
	core, logs := observer.New(zapcore.InfoLevel)
	m := metrics.New()

	err := NewPipeline(src, sum, pub, testSettings, zap.New(core), m).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)

	entries := logs.FilterMessage("Message failed to send").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(400), fields["status"])
	assert.Equal(t, "Bad Request: can't parse entities", fields["description"])
	assert.Equal(t, 1, logs.FilterMessage("Done").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("error")))
}

func TestPipeline_PublishTransportFailure(t *testing.T) {
	src := &fakeSource{ids: []hackernews.StoryID{1}, stories: []hackernews.Story{{Title: "A", Score: 99}}}
	pub := &fakePublisher{err: errors.New("error HTTP request: connection refused")}
	core, logs := observer.New(zapcore.InfoLevel)

	err := NewPipeline(src, &fakeSummarizer{text: "x"}, pub, testSettings, zap.New(core), metrics.New()).Run(t.Context())
	require.NoError(t, err)

	entries := logs.FilterMessage("Message failed to send").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "connection refused")
}

func TestPipeline_CancelledDuringDetailsFails(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	src := &fakeSource{ids: []hackernews.StoryID{1, 2}, onStories: cancel}
	sum := &fakeSummarizer{text: "unused"}
	pub := &fakePublisher{}
	core, logs := observer.New(zapcore.InfoLevel)

	err := NewPipeline(src, sum, pub, testSettings, zap.New(core), metrics.New()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.calls)
	assert.Equal(t, 0, pub.calls)
	assert.Equal(t, 0, logs.FilterMessage("Found worthy stories").Len())
}

func TestPipeline_StalledPushgatewayDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer gateway.Close()
	defer close(release)

	src := &fakeSource{ids: []hackernews.StoryID{1}, stories: []hackernews.Story{{Title: "A", Score: 99}}}
	pub := &fakePublisher{}
	core, logs := observer.New(zapcore.InfoLevel)

	settings := testSettings
	settings.PushgatewayURL = gateway.URL
	settings.PushTimeout = 50 * time.Millisecond
	p := NewPipeline(src, &fakeSummarizer{text: "- digest"}, pub, settings, zap.New(core), metrics.New())

	done := make(chan error, 1)
	go func() { done <- p.Run(t.Context()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the push timeout")
	}
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, 1, logs.FilterMessage("failed to push metrics").Len())
}

// End to end against fake Hacker News, OpenAI and Telegram servers.
func TestRun_EndToEnd(t *testing.T) {
	hn := http.NewServeMux()
	hn.HandleFunc("/v0/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		ids := make([]int, 80)
		for i := range ids {
			ids[i] = i + 1
		}
		json.NewEncoder(w).Encode(ids)
	})
	var itemRequests atomic.Int32
	hn.HandleFunc("/v0/item/", func(w http.ResponseWriter, r *http.Request) {
		itemRequests.Add(1)
		var id int
		fmt.Sscanf(r.URL.Path, "/v0/item/%d.json", &id)
		switch {
		case id == 7:
			http.Error(w, "boom", http.StatusInternalServerError)
		case id%10 == 0:
			fmt.Fprintf(w, `{"title":"Story %d","url":"https://s/%d","score":"%d"}`, id, id, 100+id)
		default:
			fmt.Fprintf(w, `{"title":"Story %d","url":"https://s/%d","score":%d}`, id, id, id)
		}
	})
	hnSrv := httptest.NewServer(hn)
	defer hnSrv.Close()

	var mu sync.Mutex
	var aiCalls atomic.Int32
	var aiPrompt string
	aiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := aiCalls.Add(1)
		if n == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 {
			mu.Lock()
			aiPrompt = req.Messages[1].Content
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"- *digest*"}}]}`)
	}))
	defer aiSrv.Close()

	var sent map[string]string
	tgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&sent)
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer tgSrv.Close()

	cfg := &config.Config{
		OpenAIAPIKey:      "sk-test",
		TelegramToken:     "123:abc",
		TelegramChatID:    "-100500",
		TopStoriesURL:     hnSrv.URL + "/v0/topstories.json",
		ItemURLTemplate:   hnSrv.URL + "/v0/item/%d.json",
		StoryLimit:        50,
		ScoreThreshold:    50,
		FetchConcurrency:  8,
		HTTPTimeout:       5 * time.Second,
		ForceIPv4:         true,
		LLMProvider:       config.ProviderOpenAI,
		OpenAIModel:       "gpt-4o-mini",
		OpenAIBaseURL:     aiSrv.URL + "/v1",
		AITemperature:     0.3,
		AIMaxAttempts:     3,
		AIBaseRetryDelay:  time.Millisecond,
		TelegramAPIBase:   tgSrv.URL,
		TelegramParseMode: "Markdown",
	}

	err := Run(t.Context(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, int32(50), itemRequests.Load())
	assert.Equal(t, int32(2), aiCalls.Load())

	mu.Lock()
	defer mu.Unlock()

	// only multiples of ten score above the threshold, all via string scores
	lines := strings.Split(aiPrompt, "\n")
	assert.Equal(t, []string{
		"- Story 10 (Score: 110) - https://s/10",
		"- Story 20 (Score: 120) - https://s/20",
		"- Story 30 (Score: 130) - https://s/30",
		"- Story 40 (Score: 140) - https://s/40",
		"- Story 50 (Score: 150) - https://s/50",
	}, lines)

	assert.Equal(t, map[string]string{"chat_id": "-100500", "text": "- *digest*", "parse_mode": "Markdown"}, sent)
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(3*time.Second, true)
	assert.Equal(t, 3*time.Second, c.Timeout)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
