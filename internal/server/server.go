// Package server exposes a connector as an HTTP function: the platform POSTs
// {state, secrets} and receives the sync batch.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/ajitpratap0/logevents/pkg/connector/core"
	"github.com/ajitpratap0/logevents/pkg/errors"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Messages returned when the request body lacks a required field
const (
	MsgNoState   = "No state is defined!"
	MsgNoSecrets = "No secrets is defined!"
)

// InvocationIDHeader carries the invocation ID back to the caller
const InvocationIDHeader = "X-Invocation-ID"

// Config configures the HTTP wrapper
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	EnableMetrics   bool
	// DefaultSecrets fill keys missing from request secrets
	DefaultSecrets models.Secrets
}

// Server serves one connector over HTTP
type Server struct {
	fn     core.Function
	config Config
	logger *zap.Logger
	router *gin.Engine
}

// invokeRequest keeps pointers so absent fields can be told from empty ones
type invokeRequest struct {
	State   *models.State   `json:"state"`
	Secrets *models.Secrets `json:"secrets"`
}

type errorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

// New creates a server for fn
func New(fn core.Function, config *Config, log *zap.Logger) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		fn:     fn,
		config: *config,
		logger: log.With(zap.String("component", "server")),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connector": fn.Name()})
	})
	if config.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.POST("/", s.handleInvoke)

	s.router = router
	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to listen")
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "server shutdown failed")
	}
	return <-errCh
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req invokeRequest
	if err := jsonpool.Decode(c.Request.Body, &req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMessage: "invalid request body: " + err.Error()})
		return
	}
	if req.State == nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMessage: MsgNoState})
		return
	}
	if req.Secrets == nil {
		c.JSON(http.StatusBadRequest, errorResponse{ErrorMessage: MsgNoSecrets})
		return
	}

	secrets := s.mergeSecrets(*req.Secrets)

	id := uuid.NewString()
	ctx := observability.ExtractHeaders(c.Request.Context(), c.Request.Header)
	ctx = logger.WithInvocation(ctx, id, s.fn.Name())
	c.Header(InvocationIDHeader, id)

	batch, err := s.fn.Handle(ctx, &models.Request{State: *req.State, Secrets: secrets})
	if err != nil {
		c.JSON(statusFor(err), errorResponse{ErrorMessage: err.Error()})
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) mergeSecrets(secrets models.Secrets) models.Secrets {
	if len(s.config.DefaultSecrets) == 0 {
		return secrets
	}
	merged := make(models.Secrets, len(secrets)+len(s.config.DefaultSecrets))
	for k, v := range s.config.DefaultSecrets {
		merged[k] = v
	}
	for k, v := range secrets {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// statusFor maps a failed invocation to an HTTP status
func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeUpstream, errors.ErrorTypeConnection, errors.ErrorTypeRateLimit:
		return http.StatusBadGateway
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("invocation_id", c.Writer.Header().Get(InvocationIDHeader)),
			zap.Duration("duration", time.Since(start)))
	}
}
