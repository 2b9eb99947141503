package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultPerMinute   = 60
	defaultBurst       = 5
)

// CallPolicy bounds every provider call: a shared rate limiter, a per-attempt
// timeout and exponential backoff on transient failures (429, 5xx, timeouts).
type CallPolicy struct {
	limiter     *rate.Limiter
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	log         *zap.Logger
}

type PolicyConfig struct {
	PerMinute   int
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

func NewCallPolicy(cfg PolicyConfig, log *zap.Logger) *CallPolicy {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = defaultPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	return &CallPolicy{
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/60.0), defaultBurst),
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		log:         log.Named("llm_policy"),
	}
}

// Do runs fn under the policy. op labels logs and metrics.
func (p *CallPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := p.do(ctx, op, fn)
	result := "success"
	if err != nil {
		result = "error"
	}
	CallDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	return err
}

func (p *CallPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.baseBackoff * time.Duration(1<<(attempt-1))
			CallRetries.WithLabelValues(op).Inc()
			p.log.Warn("retrying provider call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable accepts rate limiting, server errors, per-attempt timeouts and
// network failures.
func isRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == 429 || apiErrPtr.Code >= 500
	}
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		c := status.StatusCode()
		return c == 429 || c >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type guardedEmbedder struct {
	next   Embedder
	policy *CallPolicy
}

// Embed implements Embedder.
func (g guardedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := g.policy.Do(ctx, "embed", func(ctx context.Context) error {
		v, err := g.next.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(v), len(texts))
		}
		out = v
		return nil
	})
	return out, err
}

// EmbedQuery implements QueryEmbedder.
func (g guardedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.policy.Do(ctx, "embed_query", func(ctx context.Context) error {
		v, err := embedQuery(ctx, g.next, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type guardedGenerator struct {
	next   Generator
	policy *CallPolicy
}

// Generate implements Generator.
func (g guardedGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	var out string
	err := g.policy.Do(ctx, "generate", func(ctx context.Context) error {
		s, err := g.next.Generate(ctx, p)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// Embedder wraps e so every call goes through the policy.
func (p *CallPolicy) Embedder(e Embedder) Embedder {
	return guardedEmbedder{next: e, policy: p}
}

// Generator wraps g so every call goes through the policy.
func (p *CallPolicy) Generator(g Generator) Generator {
	return guardedGenerator{next: g, policy: p}
}
