package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/helapay/paystream/src/factory"
	"github.com/helapay/paystream/src/model"
	"go.uber.org/zap"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// HistoryStore replays the durable audit trail (the postgres events and
// transfers tables in production).
type HistoryStore interface {
	EventsForLedger(ctx context.Context, ledgerId string, limit int) ([]model.Event, error)
	EventsForEmployee(ctx context.Context, ledgerId string, employee model.Address, limit int) ([]model.Event, error)
	TransfersForRecipient(ctx context.Context, recipient model.Address, limit int) ([]model.Transfer, error)
}

// EventCache serves recent events without touching the durable trail (the
// redis event buffer in production).
type EventCache interface {
	Recent(ctx context.Context, ledgerId string, since int64, limit int64) ([]model.Event, error)
}

// Server is the JSON surface the dashboard talks to. Every route is a thin
// wrapper over one ledger call; the server holds no settlement state of its
// own.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	factory *factory.Factory
	history HistoryStore
	cache   EventCache
	logger  *zap.Logger
}

type ServerOption func(*Server)

// WithHistory backs the event and transfer reads with the durable trail.
func WithHistory(h HistoryStore) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithEventCache serves /events from the recent-events buffer first.
func WithEventCache(c EventCache) ServerOption {
	return func(s *Server) { s.cache = c }
}

// corsMiddleware lets the browser dashboard call the API cross-origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func NewServer(f *factory.Factory, logger *zap.Logger, opts ...ServerOption) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		factory: f,
		logger:  logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Start serves the API until the listener fails or Shutdown is called.
func (s *Server) Start(port string) error {
	s.server = &http.Server{
		Addr:    port,
		Handler: s.router,
	}
	s.logger.Info("starting API server", zap.String("address", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
