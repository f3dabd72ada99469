package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go-liveclass/internal/config"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// NewEngine builds the gin engine with recovery and request logging.
func NewEngine(mode string, logger *slog.Logger) *gin.Engine {
	gin.SetMode(mode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	return r
}

// RequestLogger logs one line per request. The upgrade route returns once
// the handshake is done and the pumps are started, so it is logged right
// after the upgrade rather than when the socket closes.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

type Server struct {
	cfg    config.ServerConfig
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is done, then shuts down gracefully. Upgraded
// connections are not tracked by http.Server and must be closed by the hub.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS() {
			s.logger.Info("https server listening", "addr", s.srv.Addr)
			err = s.srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			s.logger.Info("http server listening", "addr", s.srv.Addr)
			err = s.srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
