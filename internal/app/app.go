package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/hndigest/internal/config"
	"github.com/deusflow/hndigest/internal/digest"
	"github.com/deusflow/hndigest/internal/hackernews"
	"github.com/deusflow/hndigest/internal/metrics"
	"github.com/deusflow/hndigest/internal/summarizer"
	"github.com/deusflow/hndigest/internal/telegram"
)

type StorySource interface {
	TopStoryIDs(ctx context.Context, limit int) ([]hackernews.StoryID, error)
	Stories(ctx context.Context, ids []hackernews.StoryID, threshold int) []hackernews.Story
}

type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) error
}

const defaultPushTimeout = 10 * time.Second

type Settings struct {
	StoryLimit     int
	ScoreThreshold int
	ChatID         string
	ParseMode      string
	PushgatewayURL string
	PushTimeout    time.Duration // zero means defaultPushTimeout
}

// Pipeline runs fetch, compose, summarize and publish once.
type Pipeline struct {
	stories    StorySource
	summarizer Summarizer
	publisher  Publisher
	settings   Settings
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewPipeline(stories StorySource, sum Summarizer, pub Publisher, settings Settings, log *zap.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		stories:    stories,
		summarizer: sum,
		publisher:  pub,
		settings:   settings,
		log:        log,
		metrics:    m,
	}
}

// Run executes one digest run. It returns an error only when the run must
// end with a non-zero exit: the ranking request failed, the run was
// cancelled, or the summarizer gave up. A failed publish is logged and swallowed.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		p.metrics.RecordRun(started, err)
		p.pushMetrics(ctx)
	}()

	p.log.Info("Fetching HN top stories")
	ids, err := p.stories.TopStoryIDs(ctx, p.settings.StoryLimit)
	if err != nil {
		return err
	}

	p.log.Info("Fetching details", zap.Int("ids", len(ids)))
	stories := p.stories.Stories(ctx, ids, p.settings.ScoreThreshold)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}
	p.log.Info("Found worthy stories", zap.Int("count", len(stories)), zap.Int("threshold", p.settings.ScoreThreshold))
	if len(stories) == 0 {
		return nil
	}

	prompt := digest.Compose(stories)
	p.log.Debug("Prompt built", zap.Int("bytes", len(prompt)))

	p.log.Info("Asking AI")
	text, err := p.summarizer.Summarize(ctx, prompt)
	if err != nil {
		return err
	}

	p.log.Info("Sending to Telegram", zap.Int("length", len(text)))
	p.publish(ctx, text)

	p.log.Info("Done")
	return nil
}

// pushMetrics outlives a cancelled run but never blocks past the push timeout.
func (p *Pipeline) pushMetrics(ctx context.Context) {
	timeout := p.settings.PushTimeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := p.metrics.Push(pushCtx, p.settings.PushgatewayURL); err != nil {
		p.log.Warn("failed to push metrics", zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, text string) {
	err := p.publisher.SendMessage(ctx, p.settings.ChatID, text, p.settings.ParseMode)
	if err == nil {
		p.metrics.MessagesSent.WithLabelValues("success").Inc()
		p.log.Info("Message sent successfully")
		return
	}

	p.metrics.MessagesSent.WithLabelValues("error").Inc()
	fields := []zap.Field{zap.Error(err)}
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.Int("status", apiErr.Status), zap.String("description", apiErr.Description))
	}
	p.log.Error("Message failed to send", fields...)
}

// Run wires the production clients from cfg and executes the pipeline.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New()
	httpClient := NewHTTPClient(cfg.HTTPTimeout, cfg.ForceIPv4)

	hn := hackernews.NewClient(httpClient, hackernews.Options{
		TopStoriesURL:   cfg.TopStoriesURL,
		ItemURLTemplate: cfg.ItemURLTemplate,
		Concurrency:     cfg.FetchConcurrency,
	}, log, m)

	completer, closeCompleter, err := newCompleter(ctx, cfg, httpClient)
	if err != nil {
		return err
	}
	defer closeCompleter()

	sum := summarizer.New(completer, summarizer.Options{
		SystemPrompt:   digest.SystemPrompt,
		MaxAttempts:    cfg.AIMaxAttempts,
		BaseDelay:      cfg.AIBaseRetryDelay,
		AttemptTimeout: cfg.HTTPTimeout,
	}, log, m)

	tg := telegram.NewClient(httpClient, cfg.TelegramAPIBase, cfg.TelegramToken, log)

	return NewPipeline(hn, sum, tg, Settings{
		StoryLimit:     cfg.StoryLimit,
		ScoreThreshold: cfg.ScoreThreshold,
		ChatID:         cfg.TelegramChatID,
		ParseMode:      cfg.TelegramParseMode,
		PushgatewayURL: cfg.PushgatewayURL,
		PushTimeout:    cfg.PushTimeout,
	}, log, m).Run(ctx)
}

func newCompleter(ctx context.Context, cfg *config.Config, httpClient *http.Client) (summarizer.Completer, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := summarizer.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.AITemperature)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	case config.ProviderOpenAI:
		return summarizer.NewOpenAICompleter(summarizer.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.OpenAIBaseURL,
			Temperature: cfg.AITemperature,
			HTTPClient:  httpClient,
		}), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
