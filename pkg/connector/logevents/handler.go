// Package logevents implements a stateless sync connector for the MediaWiki
// log-events API.
//
// Each call fetches one page of events newer than the stored watermark and
// returns them together with the next state. While the upstream reports a
// continuation cursor the watermark stays put and the caller is told to call
// again; once a fetch completes, the watermark moves to the time the fetch
// started so nothing logged during the fetch is skipped.
package logevents

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/ajitpratap0/logevents/pkg/clients"
	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"github.com/ajitpratap0/logevents/pkg/metrics"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/observability"
	"go.uber.org/zap"
)

const (
	// ConnectorName is the registry and metrics name of this connector
	ConnectorName = "logevents"

	// DefaultTitle and DefaultLimit make up the fixed upstream query
	DefaultTitle = "Data"
	DefaultLimit = 5
)

// Handler fetches log events. It holds no per-cursor state and is safe for
// concurrent use; callers serialize calls that share a cursor.
type Handler struct {
	name           string
	client         *clients.HTTPClient
	logger         *zap.Logger
	tracer         *observability.ConnectorTracer
	now            func() time.Time
	title          string
	limit          int
	requestTimeout time.Duration
}

// Option configures a Handler
type Option func(*Handler)

// WithHTTPClient sets the client used for upstream requests
func WithHTTPClient(c *clients.HTTPClient) Option {
	return func(h *Handler) { h.client = c }
}

// WithLogger sets the base logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithTitle overrides the letitle filter
func WithTitle(title string) Option {
	return func(h *Handler) { h.title = title }
}

// WithLimit overrides the page size
func WithLimit(limit int) Option {
	return func(h *Handler) { h.limit = limit }
}

// WithRequestTimeout bounds the upstream fetch. Zero means no bound beyond
// the caller's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) { h.requestTimeout = d }
}

// WithName overrides the name used in logs, spans and metrics
func WithName(name string) Option {
	return func(h *Handler) { h.name = name }
}

// New creates a Handler with the fixed query defaults
func New(opts ...Option) *Handler {
	h := &Handler{
		name:  ConnectorName,
		now:   time.Now,
		title: DefaultTitle,
		limit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.client == nil {
		h.client = clients.NewHTTPClient(nil, h.logger)
	}
	if h.title == "" {
		h.title = DefaultTitle
	}
	if h.limit <= 0 {
		h.limit = DefaultLimit
	}
	h.logger = h.logger.With(zap.String("connector", h.name))
	h.tracer = observability.NewConnectorTracer(h.name)
	return h
}

// NewFromConfig creates a Handler whose client, query and timeout come from cfg
func NewFromConfig(cfg *config.Config, log *zap.Logger) *Handler {
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.DialTimeout = cfg.Timeouts.Connection
	httpCfg.UserAgent = cfg.Upstream.UserAgent
	if cfg.Reliability.IsRateLimited() {
		httpCfg.RateLimit = cfg.Reliability.RateLimitPerSec
		httpCfg.RateBurst = cfg.Reliability.RateBurst
	}

	return New(
		WithName(cfg.Name),
		WithLogger(log),
		WithHTTPClient(clients.NewHTTPClient(httpCfg, log)),
		WithTitle(cfg.Upstream.Title),
		WithLimit(cfg.Upstream.Limit),
		WithRequestTimeout(cfg.Timeouts.Request),
	)
}

// Name implements core.Function
func (h *Handler) Name() string {
	return h.name
}

// Close releases the HTTP client's idle connections
func (h *Handler) Close() error {
	return h.client.Close()
}

// Handle performs one invocation. req.State is never modified; on error the
// returned batch is nil and the caller should retry with its prior state.
func (h *Handler) Handle(ctx context.Context, req *models.Request) (batch *models.SyncBatch, err error) {
	ctx, span := h.tracer.StartSpan(ctx, "handle")
	defer func() {
		span.RecordError(err)
		span.End()
		metrics.RecordInvocation(h.name, batch, err)
	}()

	log := logger.FromContext(ctx, h.logger)

	if req == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "request is required")
	}
	baseURL := req.Secrets.BaseURL()
	if baseURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "secret BASE_URL is required")
	}

	state := req.State.WithDefaults()

	// Captured before the request so events logged mid-fetch fall after the
	// next watermark.
	callTimestamp := models.FormatTimestamp(h.now())

	requestURL, err := buildURL(baseURL, h.queryParams(state))
	if err != nil {
		return nil, err
	}

	token, hasContinue := state.Continue()
	log.Debug("fetching log events",
		zap.String("lestart", state.LastUpdated()),
		zap.Bool("continuation", hasContinue),
		zap.String("lecontinue", token))

	resp, err := h.fetch(ctx, requestURL)
	if err != nil {
		log.Error("log events fetch failed", zap.Error(err))
		return nil, err
	}

	if code, info, ok := resp.apiError(); ok {
		log.Warn("upstream returned an API error",
			zap.String("code", code),
			zap.String("info", info))
	}

	records := resp.records()
	span.SetAttribute("records", len(records))

	next, more := resp.continuation()
	if more {
		state = state.WithContinuation(next)
	} else {
		state = state.Advanced(callTimestamp)
	}
	span.SetAttribute("has_more", more)

	log.Info("log events fetched",
		zap.Int("records", len(records)),
		zap.Bool("has_more", more),
		zap.String("last_updated", state.LastUpdated()))

	return models.NewLogEventsBatch(state, records, more), nil
}

// fetch issues the GET and decodes the body. Only 2xx answers are decoded.
func (h *Handler) fetch(ctx context.Context, requestURL string) (*apiResponse, error) {
	ctx, span := h.tracer.StartSpan(ctx, "fetch")
	defer span.End()

	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	timer := metrics.NewTimer()
	resp, err := h.client.Get(ctx, requestURL, nil)
	if err != nil {
		metrics.UpstreamRequestDuration.WithLabelValues(h.name, metrics.StatusLabel(0)).Observe(timer.Stop().Seconds())
		err = classifyTransportError(ctx, err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttribute("http.status_code", resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.UpstreamRequestDuration.WithLabelValues(h.name, metrics.StatusLabel(resp.StatusCode)).Observe(timer.Stop().Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		err := errors.Newf(errors.ErrorTypeUpstream, "upstream returned status %d: %s", resp.StatusCode, string(body)).
			WithDetail("status_code", resp.StatusCode)
		span.RecordError(err)
		return nil, err
	}

	decoded, err := decodeResponse(resp.Body)
	metrics.UpstreamRequestDuration.WithLabelValues(h.name, metrics.StatusLabel(resp.StatusCode)).Observe(timer.Stop().Seconds())
	if err != nil {
		if ctx.Err() != nil {
			err = classifyTransportError(ctx, err)
		}
		span.RecordError(err)
		return nil, err
	}

	span.RecordError(nil)
	return decoded, nil
}

// classifyTransportError maps a failed request to a timeout, a rate limiter
// refusal or a connection error.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.IsType(err, errors.ErrorTypeRateLimit) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "upstream request timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "upstream request failed")
}
