package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/prompt"
)

// DefaultTimeout bounds a single judge call when none is configured.
const DefaultTimeout = 60 * time.Second

// Reply is the outcome of one gateway call. Err is set exactly when no text
// was obtained.
type Reply struct {
	Text    string
	Err     error
	Cached  bool
	Elapsed time.Duration
}

// Gateway sends one conversation to the judge under a deadline, with an
// optional reply cache. It never retries.
type Gateway struct {
	provider Provider
	timeout  time.Duration
	cache    Cache
	version  string
}

// NewGateway wraps provider. A non-positive timeout uses DefaultTimeout.
func NewGateway(provider Provider, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{provider: provider, timeout: timeout}
}

// WithCache returns a copy of g that reads and writes replies in cache.
// templateVersion is part of every key so template changes never hit stale
// replies.
func (g *Gateway) WithCache(cache Cache, templateVersion string) *Gateway {
	c := *g
	c.cache = cache
	c.version = templateVersion
	return &c
}

// Provider returns the wrapped provider.
func (g *Gateway) Provider() Provider {
	return g.provider
}

// Timeout returns the per-call deadline.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Key is the cache key for msgs.
func (g *Gateway) Key(msgs prompt.Messages) string {
	return g.provider.Name() + ":" + g.provider.Model() + ":" + g.version + ":" + msgs.Hash()
}

// Call sends msgs and waits at most the gateway timeout for the reply.
func (g *Gateway) Call(ctx context.Context, msgs prompt.Messages) Reply {
	start := time.Now()
	key := ""
	if g.cache != nil {
		key = g.Key(msgs)
		text, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("Judge cache read failed", zap.Error(err))
		}
		if ok {
			return Reply{Text: text, Cached: true, Elapsed: time.Since(start)}
		}
	}

	text, err := g.complete(ctx, msgs)
	reply := Reply{Text: text, Err: err, Elapsed: time.Since(start)}
	if err != nil {
		reply.Text = ""
		return reply
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, text); err != nil {
			zap.L().Warn("Judge cache write failed", zap.Error(err))
		}
	}
	return reply
}

func (g *Gateway) complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.provider.Complete(cctx, msgs)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if cctx.Err() == context.DeadlineExceeded {
				return "", eris.Wrapf(r.err, "judge call timed out after %s", g.timeout)
			}
			return "", r.err
		}
		if strings.TrimSpace(r.text) == "" {
			return "", eris.New("judge returned an empty reply")
		}
		return r.text, nil
	case <-cctx.Done():
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "judge call cancelled")
		}
		return "", eris.Wrapf(cctx.Err(), "judge call timed out after %s", g.timeout)
	}
}
