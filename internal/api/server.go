package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"futures-quant-bot/config"
	"futures-quant-bot/internal/bot"
	"futures-quant-bot/internal/circuit"
	"futures-quant-bot/internal/logging"
	"futures-quant-bot/internal/store"
)

const recentReportsKept = 100

// Server exposes read-only bot status over HTTP. It observes the decision
// loop for in-memory recency and reads history from the cycle store; it
// never mutates trading state.
type Server struct {
	cfg     config.ServerConfig
	sink    store.Sink
	breaker *circuit.Breaker
	log     *logging.Logger
	started time.Time
	http    *http.Server

	mu      sync.RWMutex
	recent  []*bot.CycleReport
	counts  map[bot.CycleOutcome]int
	lastRun time.Time
}

// NewServer creates a status server. Register it as a bot observer before
// starting the engine.
func NewServer(cfg config.ServerConfig, sink store.Sink, breaker *circuit.Breaker, log *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		sink:    sink,
		breaker: breaker,
		log:     log.WithComponent("api"),
		started: time.Now(),
		counts:  make(map[bot.CycleOutcome]int),
	}
}

// CycleFinished implements bot.Observer
func (s *Server) CycleFinished(report *bot.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, report)
	if len(s.recent) > recentReportsKept {
		s.recent = s.recent[len(s.recent)-recentReportsKept:]
	}
	s.counts[report.Outcome]++
	s.lastRun = report.FinishedAt
}

// Run serves until the context ends
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Content-Type"},
	}))

	router.GET("/health", s.handleHealth)
	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/cycles", s.handleCycles)
		api.GET("/breaker", s.handleBreaker)
	}

	s.http = &http.Server{Addr: s.cfg.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status API listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(s.started).String()})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcomes := make(map[string]int, len(s.counts))
	total := 0
	for outcome, n := range s.counts {
		outcomes[string(outcome)] = n
		total += n
	}

	var last gin.H
	if n := len(s.recent); n > 0 {
		report := s.recent[n-1]
		last = gin.H{
			"cycle_id": report.CycleID,
			"symbol":   report.Symbol,
			"outcome":  string(report.Outcome),
			"finished": report.FinishedAt,
		}
		if report.Vote != nil {
			last["action"] = string(report.Vote.Action)
			last["confidence"] = report.Vote.Confidence
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime":       time.Since(s.started).String(),
		"total_cycles": total,
		"outcomes":     outcomes,
		"last_cycle":   last,
		"last_run":     s.lastRun,
	})
}

func (s *Server) handleCycles(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter required"})
		return
	}
	limit := 50
	records, err := s.sink.RecentCycles(c.Request.Context(), symbol, limit)
	if err != nil {
		s.log.Error("cycle history query failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "cycles": records})
}

func (s *Server) handleBreaker(c *gin.Context) {
	if s.breaker == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.breaker.Stats())
}
