// Package summarizer asks a language model to turn the story list into a digest.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/hndigest/internal/metrics"
	"github.com/deusflow/hndigest/internal/retry"
)

// ErrEmptyCompletion is returned when the model answers with blank content.
var ErrEmptyCompletion = errors.New("model response missing content")

// Completer sends one system+user exchange to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
}

type Options struct {
	SystemPrompt   string
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration   // bounds each completion call; zero means no bound
	Sleep          retry.SleepFunc // nil uses a real timer
}

type Summarizer struct {
	completer Completer
	opts      Options
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(completer Completer, opts Options, log *zap.Logger, m *metrics.Metrics) *Summarizer {
	return &Summarizer{completer: completer, opts: opts, log: log, metrics: m}
}

// Summarize returns the model's digest for prompt. Each blank or failed
// answer is retried with exponential backoff until MaxAttempts is spent.
func (s *Summarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	var summary string

	cfg := retry.RetryConfig{
		MaxAttempts: s.opts.MaxAttempts,
		Backoff:     retry.Exponential(s.opts.BaseDelay),
		Sleep:       s.opts.Sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.log.Warn("AI request failed, retrying",
				zap.String("provider", s.completer.Name()),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.opts.MaxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		if s.opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.AttemptTimeout)
			defer cancel()
		}

		text, err := s.completer.Complete(ctx, s.opts.SystemPrompt, prompt)
		if err != nil {
			s.metrics.SummaryAttempts.WithLabelValues("error").Inc()
			return err
		}
		if strings.TrimSpace(text) == "" {
			s.metrics.SummaryAttempts.WithLabelValues("empty").Inc()
			return ErrEmptyCompletion
		}
		s.metrics.SummaryAttempts.WithLabelValues("success").Inc()
		summary = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s summary: %w", s.completer.Name(), err)
	}
	return summary, nil
}
