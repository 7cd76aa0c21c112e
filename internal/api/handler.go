// Package api exposes read-only HTTP and websocket views of a running
// session: strategy snapshots, execution history and persisted runs.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"strategy-core/internal/events"
	"strategy-core/internal/persistence"
	"strategy-core/internal/scheduler"
)

// Server wires HTTP endpoints around the scheduler's boundary snapshots and
// the run store. It never touches a ledger or recorder directly.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	Sched  *scheduler.Scheduler
	Store  *persistence.Store
	Meta   SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Mode       string
	Symbols    []string
	DataSource string
	Version    string
}

func NewServer(bus *events.Bus, sched *scheduler.Scheduler, store *persistence.Store, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router: r,
		Bus:    bus,
		Sched:  sched,
		Store:  store,
		Meta:   meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)

		api.GET("/strategies", s.listStrategies)
		api.GET("/strategies/:id", s.getStrategy)
		api.GET("/strategies/:id/positions", s.getPositions)
		api.GET("/strategies/:id/trades", s.getTrades)
		api.GET("/strategies/:id/events", s.getEvents)
		api.GET("/strategies/:id/state", s.getCurrentState)

		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
		api.GET("/runs/:id/trades", s.getRunTrades)
		api.GET("/runs/:id/events", s.getRunEvents)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":        s.Meta.Mode,
		"symbols":     s.Meta.Symbols,
		"data_source": s.Meta.DataSource,
		"version":     s.Meta.Version,
		"ticks":       s.Sched.Processed(),
		"last_tick":   s.Sched.LastTick(),
	})
}

func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.Sched.Snapshots())
}

func (s *Server) snapshot(c *gin.Context) (scheduler.StrategySnapshot, bool) {
	id := c.Param("id")
	snap, ok := s.Sched.Snapshot(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy", "id": id})
	}
	return snap, ok
}

func (s *Server) getStrategy(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap)
	}
}

func (s *Server) getPositions(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, gin.H{
			"positions":      snap.Positions,
			"open_positions": snap.OpenPositions,
			"realized_pnl":   snap.RealizedPnL,
		})
	}
}

func (s *Server) getTrades(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap.Trades)
	}
}

func (s *Server) getEvents(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap.Events)
	}
}

func (s *Server) getCurrentState(c *gin.Context) {
	if snap, ok := s.snapshot(c); ok {
		c.JSON(http.StatusOK, snap.CurrentState)
	}
}

func (s *Server) listRuns(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	runs, err := s.Store.Runs(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	run, err := s.Store.Run(c.Request.Context(), c.Param("id"))
	if errors.Is(err, persistence.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run", "id": c.Param("id")})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getRunTrades(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	trades, err := s.Store.TradesForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) getRunEvents(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	evs, err := s.Store.EventsForRun(c.Request.Context(), c.Param("id"), c.Query("strategy"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, evs)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
