package enhance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/leonardcser/letter-mcp/internal/cache"
	"github.com/leonardcser/letter-mcp/internal/logger"
)

const (
	DefaultStyle    = "polish"
	MaxTextLength   = 20000
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
	userAgent       = "letter-mcp/0.1.0"
)

var (
	ErrEmptyText     = errors.New("enhance: empty text")
	ErrTextTooLong   = errors.New("enhance: text too long")
	ErrNoEndpoint    = errors.New("enhance: no endpoint configured")
	ErrEmptyResponse = errors.New("enhance: empty response")
)

type Options struct {
	// Endpoint receives a JSON POST of {"text", "style"}.
	Endpoint string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// TTL is how long an enhancement stays cached.
	TTL cache.Expiration
	// RateDelay is the minimum gap between upstream calls.
	RateDelay      time.Duration
	RequestTimeout time.Duration
}

// Stats counts enhancement traffic since the Enhancer was created.
type Stats struct {
	Requests      int64
	CacheHits     int64
	UpstreamCalls int64
	Failures      int64
}

// Enhancer rewrites letter text through a rate-limited upstream service and
// caches the results so identical requests are only paid for once.
type Enhancer struct {
	c     *colly.Collector
	cache cache.Store[string]
	opts  Options
	group singleflight.Group

	requests atomic.Int64
	hits     atomic.Int64
	upstream atomic.Int64
	failures atomic.Int64
}

type request struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

type response struct {
	Enhanced string `json:"enhanced"`
	Error    string `json:"error,omitempty"`
}

func New(store cache.Store[string], opts Options) (*Enhancer, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.UserAgent(userAgent),
		colly.MaxBodySize(MaxResponseSize),
	)
	// Parallelism 1 serializes every clone, since clones share the backend.
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       opts.RateDelay,
	}); err != nil {
		return nil, fmt.Errorf("enhance: rate limit: %w", err)
	}
	if opts.RequestTimeout > 0 {
		c.SetRequestTimeout(opts.RequestTimeout)
	}
	return &Enhancer{c: c, cache: store, opts: opts}, nil
}

func (e *Enhancer) cacheKey(text, style string) string {
	sum := sha256.Sum256([]byte(text))
	return "enhance|" + style + "|" + hex.EncodeToString(sum[:])
}

// Enhance returns the enhanced version of text in the given style, serving
// repeats from the cache. Concurrent identical requests share one upstream call.
func (e *Enhancer) Enhance(ctx context.Context, text, style string) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if len(text) > MaxTextLength {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTextTooLong, len(text), MaxTextLength)
	}
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = DefaultStyle
	}
	if e.opts.Endpoint == "" {
		return "", ErrNoEndpoint
	}

	e.requests.Inc()
	key := e.cacheKey(text, style)
	if v, ok := e.cache.Get(key); ok {
		e.hits.Inc()
		logger.Debugf("enhance cache hit for %s", key)
		return v, nil
	}

	// The flight outlives any single caller: each caller waits on its own
	// ctx, while the upstream call is bounded by RequestTimeout only.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		// A flight that finished between the lookup above and DoChan may
		// have filled the cache already.
		if v, ok := e.cache.Get(key); ok {
			e.hits.Inc()
			return v, nil
		}
		callCtx := flightCtx
		if e.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(flightCtx, e.opts.RequestTimeout)
			defer cancel()
		}
		out, err := e.call(callCtx, text, style)
		if err != nil {
			e.failures.Inc()
			return "", err
		}
		if err := e.cache.Set(key, out, e.opts.TTL); err != nil {
			logger.Warnf("enhance: caching %s: %v", key, err)
		}
		return out, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			logger.Debugf("enhance request for %s shared an in-flight call", key)
		}
		return res.Val.(string), nil
	}
}

// Stats returns a snapshot of the traffic counters.
func (e *Enhancer) Stats() Stats {
	return Stats{
		Requests:      e.requests.Load(),
		CacheHits:     e.hits.Load(),
		UpstreamCalls: e.upstream.Load(),
		Failures:      e.failures.Load(),
	}
}

func (e *Enhancer) call(ctx context.Context, text, style string) (string, error) {
	payload, err := json.Marshal(request{Text: text, Style: style})
	if err != nil {
		return "", err
	}

	// A clone per call keeps callbacks from piling up on the shared collector.
	c := e.c.Clone()
	c.Context = ctx

	reqID := uuid.NewString()
	var body []byte
	var contentType string

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "application/json")
		r.Headers.Set("Accept", "application/json, text/html;q=0.9, text/plain;q=0.8")
		r.Headers.Set("X-Request-ID", reqID)
		if e.opts.APIKey != "" {
			r.Headers.Set("Authorization", "Bearer "+e.opts.APIKey)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})

	e.upstream.Inc()
	start := time.Now()
	logger.Infof("enhance upstream call %s (style=%s, %d bytes)", reqID, style, len(text))
	if err := c.PostRaw(e.opts.Endpoint, payload); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Errorf("enhance upstream call %s failed: %v", reqID, err)
		return "", fmt.Errorf("enhance: upstream request %s: %w", reqID, err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	logger.Infof("enhance upstream call %s done in %s", reqID, time.Since(start).Round(time.Millisecond))

	return decode(body, contentType)
}

func decode(body []byte, contentType string) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyResponse
	}
	ct := strings.ToLower(contentType)
	var out string
	switch {
	case strings.Contains(ct, "json"):
		var r response
		if err := json.Unmarshal(body, &r); err != nil {
			return "", fmt.Errorf("enhance: decode response: %w", err)
		}
		if r.Error != "" {
			return "", fmt.Errorf("enhance: upstream error: %s", r.Error)
		}
		out = r.Enhanced
	case strings.Contains(ct, "text/html"):
		md, err := htmlToMarkdown(body)
		if err != nil {
			return "", err
		}
		out = md
	case strings.HasPrefix(ct, "text/"):
		out = string(body)
	default:
		return "", fmt.Errorf("enhance: unsupported content type %q", contentType)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
