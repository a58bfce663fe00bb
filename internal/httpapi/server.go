package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"seriescache/internal/market"
	"seriescache/internal/seriescache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMaxImportBytes = 32 << 20

// Server exposes the series cache over HTTP.
type Server struct {
	addr           string
	cache          *seriescache.Cache
	log            *zap.Logger
	router         *gin.Engine
	maxImportBytes int64
}

type Options struct {
	Addr           string
	MetricsPath    string
	MetricsHandler http.Handler
	MaxImportBytes int64
}

func New(cache *seriescache.Cache, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if opts.MaxImportBytes <= 0 {
		opts.MaxImportBytes = defaultMaxImportBytes
	}
	s := &Server{
		addr:           opts.Addr,
		cache:          cache,
		log:            log,
		router:         router,
		maxImportBytes: opts.MaxImportBytes,
	}
	s.registerRoutes(opts)
	return s
}

func (s *Server) registerRoutes(opts Options) {
	s.router.GET("/healthz", s.handleHealth)
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(opts.MetricsHandler))
	}
	api := s.router.Group("/api")
	api.GET("/series/:symbol/:interval", s.handleGet)
	api.DELETE("/series/:symbol/:interval", s.handleDelete)
	api.DELETE("/series", s.handleClear)
	api.GET("/export", s.handleExport)
	api.POST("/import", s.handleImport)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("http api listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	storage := "ok"
	if !s.cache.Available() {
		status = http.StatusServiceUnavailable
		storage = "unavailable"
	}
	c.JSON(status, gin.H{"storage": storage})
}

func (s *Server) handleGet(c *gin.Context) {
	key := market.NewKey(c.Param("symbol"), c.Param("interval"))
	entry := s.cache.Get(c.Request.Context(), key)
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not cached", "key": key.String(), "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry, "stale": s.cache.IsStale(entry)})
}

func (s *Server) handleDelete(c *gin.Context) {
	key := market.NewKey(c.Param("symbol"), c.Param("interval"))
	s.cache.Delete(c.Request.Context(), key)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClear(c *gin.Context) {
	s.cache.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExport(c *gin.Context) {
	format, err := seriescache.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol, interval := c.Query("symbol"), c.Query("interval")
	var payload []byte
	switch {
	case symbol == "" && interval == "":
		payload, err = s.cache.ExportAll(c.Request.Context(), format)
	case symbol == "" || interval == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval must be given together"})
		return
	default:
		payload, err = s.cache.ExportEntry(c.Request.Context(), market.NewKey(symbol, interval), format)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentType(format), payload)
}

func (s *Server) handleImport(c *gin.Context) {
	format, err := seriescache.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, s.maxImportBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if int64(len(body)) > s.maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "import body exceeds limit", "limit_bytes": s.maxImportBytes})
		return
	}
	entries, err := s.cache.Import(c.Request.Context(), body, format)
	if err != nil {
		s.log.Warn("import rejected", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "imported": len(entries)})
		return
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key().String())
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(entries), "keys": keys})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, seriescache.ErrInvalidImportFormat):
		return http.StatusBadRequest
	case errors.Is(err, seriescache.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, seriescache.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func contentType(format seriescache.Format) string {
	if format == seriescache.FormatMsgpack {
		return "application/msgpack"
	}
	return "application/json; charset=utf-8"
}
