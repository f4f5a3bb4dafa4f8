package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"newsdigest/internal/logging"
	"newsdigest/internal/services"
	"newsdigest/internal/store"
)

const (
	defaultDigestLimit = 20
	defaultItemLimit   = 50
	maxListLimit       = 500
)

// Store is the read-only store surface the API needs.
type Store interface {
	CheckHealth(ctx context.Context) (store.DatabaseHealth, error)
	LatestDigest(ctx context.Context) (*store.DigestRecord, error)
	GetDigest(ctx context.Context, runID string) (*store.DigestRecord, error)
	ListDigests(ctx context.Context, limit int) ([]store.DigestRecord, error)
	List(ctx context.Context, filter store.ListFilter) ([]*store.Item, error)
}

// Server exposes digests and items over HTTP.
type Server struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewServer constructs a Server.
func NewServer(st Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		store:  st,
		logger: logging.NewComponentLogger(logger, "api"),
		now:    time.Now,
	}
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/digests", s.listDigests)
		api.GET("/digests/latest", s.latestDigest)
		api.GET("/digests/:runID", s.getDigest)
		api.GET("/items", s.listItems)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "serve", "listen", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("api listening", logging.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("request served",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	health, err := s.store.CheckHealth(c.Request.Context())
	resp := HealthResponse{
		Status:        "ok",
		SchemaVersion: health.SchemaVersion,
		TotalItems:    health.TotalItems,
	}
	if err != nil || health.IntegrityCheck != "ok" {
		resp.Status = "degraded"
		resp.Detail = health.Error
		if err != nil {
			resp.Detail = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listDigests(c *gin.Context) {
	limit := queryLimit(c, defaultDigestLimit)
	records, err := s.store.ListDigests(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := DigestListResponse{Digests: make([]DigestSummary, 0, len(records))}
	for _, record := range records {
		resp.Digests = append(resp.Digests, FromDigestRecord(record))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) latestDigest(c *gin.Context) {
	record, err := s.store.LatestDigest(c.Request.Context())
	s.writeDigest(c, record, err)
}

func (s *Server) getDigest(c *gin.Context) {
	record, err := s.store.GetDigest(c.Request.Context(), c.Param("runID"))
	s.writeDigest(c, record, err)
}

func (s *Server) writeDigest(c *gin.Context, record *store.DigestRecord, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DigestResponse{
		DigestSummary: FromDigestRecord(*record),
		Digest:        json.RawMessage(record.Payload),
	})
}

func (s *Server) listItems(c *gin.Context) {
	filter := store.ListFilter{Limit: queryLimit(c, defaultItemLimit)}
	if raw := c.Query("status"); raw != "" {
		status, ok := store.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "unknown status " + strconv.Quote(raw)})
			return
		}
		filter.Statuses = []store.Status{status}
	}
	if raw := c.Query("since_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "since_hours must be a positive integer"})
			return
		}
		filter.Since = s.now().Add(-time.Duration(hours) * time.Hour)
	}
	items, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := ItemListResponse{Items: make([]Item, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, FromItem(item))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: err.Error()})
		return
	}
	logging.WarnWithContext(s.logger, "api request failed", "api_error",
		logging.String("path", c.FullPath()),
		logging.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: "internal server error"})
}

func queryLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(fallback)))
	if err != nil || limit <= 0 {
		return fallback
	}
	return min(limit, maxListLimit)
}
