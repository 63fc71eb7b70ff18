// Package server exposes the HTTP admin API: health, engine status,
// positions, the consolidated book, the effective config, Prometheus
// metrics and the kill switch. Read endpoints pull from the live
// components; nothing here sits on the trading path.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/risk"
)

// Controls is what the admin API may do to the engine.
type Controls interface {
	Running() bool
	Pause()
	Resume()
}

// Server is the admin HTTP server.
type Server struct {
	log  *zap.Logger
	cfg  *config.Config
	gate *risk.Gate
	book *book.ConsolidatedBook
	mgr  *exchange.Manager
	ctrl Controls

	http *http.Server
}

// New wires the admin API to the live components. Any of book, mgr and
// ctrl may be nil; the affected endpoints then degrade rather than the
// constructor failing.
func New(cfg *config.Config, gate *risk.Gate, cb *book.ConsolidatedBook, mgr *exchange.Manager, ctrl Controls, log *zap.Logger) *Server {
	return &Server{
		log:  log.Named("admin"),
		cfg:  cfg,
		gate: gate,
		book: cb,
		mgr:  mgr,
		ctrl: ctrl,
	}
}

// Router builds the gin engine with logging, recovery and CORS.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(s.log, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.log, true))
	router.Use(s.corsMiddleware())

	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	router.GET("/positions", s.handlePositions)
	router.GET("/book/:symbol", s.handleBook)
	router.GET("/config", s.handleConfig)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/killswitch", s.handleKillSwitch)
	router.POST("/strategy/:action", s.handleStrategy)
	return router
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	for _, origin := range s.cfg.Admin.Origins {
		if origin == "*" {
			return cors.Default()
		}
	}
	conf := cors.DefaultConfig()
	conf.AllowOrigins = s.cfg.Admin.Origins
	return cors.New(conf)
}

// Start binds the listener and serves in the background. Binding
// errors surface here; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Admin.Addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Handler: s.Router()}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("Admin server failed", zap.Error(err))
		}
	}()
	s.log.Info("Admin API listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	running := false
	if s.ctrl != nil {
		running = s.ctrl.Running()
	}
	venues := make([]gin.H, 0, 4)
	connected := 0
	if s.mgr != nil {
		for _, cl := range s.mgr.Clients() {
			up := cl.IsConnected()
			if up {
				connected++
			}
			venues = append(venues, gin.H{
				"exchange":   cl.Exchange().String(),
				"connected":  up,
				"latency_ms": float64(s.mgr.Latency(cl.Exchange()).Microseconds()) / 1000,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":           s.cfg.Trading.Symbol,
		"exchange":         s.cfg.Trading.Exchange,
		"paper":            s.cfg.Trading.Paper,
		"running":          running,
		"kill_switch":      s.gate.KillSwitchActive(),
		"open_orders":      s.gate.OpenOrderCount(),
		"daily_pnl":        s.gate.DailyPnL(),
		"realized_pnl":     s.gate.RealizedPnL(),
		"rejects":          s.gate.RejectCount(),
		"errors":           s.gate.ErrorCount(),
		"connected_venues": connected,
		"venues":           venues,
	})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions := s.gate.Positions()
	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		out = append(out, gin.H{
			"symbol":          p.Symbol.String(),
			"quantity":        fmtScaled(p.Quantity),
			"avg_entry_price": fmtScaled(p.AvgEntryPrice),
			"realized_pnl":    p.RealizedPnL,
			"unrealized_pnl":  p.UnrealizedPnL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) handleBook(c *gin.Context) {
	if s.book == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "book unavailable"})
		return
	}
	symbol := c.Param("symbol")
	if symbol != s.book.Symbol().String() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return
	}
	depth := 10
	if d := c.Query("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 || n > 50 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be 1..50"})
			return
		}
		depth = n
	}

	nbbo := s.book.NBBO()
	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"nbbo": gin.H{
			"bid":          fmtScaled(nbbo.BidPrice),
			"bid_qty":      fmtScaled(nbbo.BidQty),
			"ask":          fmtScaled(nbbo.AskPrice),
			"ask_qty":      fmtScaled(nbbo.AskQty),
			"bid_exchange": nbbo.BidExchange.String(),
			"ask_exchange": nbbo.AskExchange.String(),
		},
		"bids": levelsJSON(s.book.ConsolidatedBids(depth)),
		"asks": levelsJSON(s.book.ConsolidatedAsks(depth)),
	})
}

func levelsJSON(levels []book.ConsolidatedLevel) []gin.H {
	out := make([]gin.H, 0, len(levels))
	for _, lvl := range levels {
		venues := make([]gin.H, 0, len(lvl.Contributions))
		for _, vq := range lvl.Contributions {
			venues = append(venues, gin.H{
				"exchange": vq.Exchange.String(),
				"quantity": fmtScaled(vq.Quantity),
			})
		}
		out = append(out, gin.H{
			"price":    fmtScaled(lvl.Price),
			"quantity": fmtScaled(lvl.Quantity),
			"venues":   venues,
		})
	}
	return out
}

func (s *Server) handleConfig(c *gin.Context) {
	dump, err := s.cfg.Dump()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "application/yaml")
	c.String(http.StatusOK, dump)
}

func (s *Server) handleKillSwitch(c *gin.Context) {
	var req struct {
		Active bool   `json:"active"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Active {
		reason := req.Reason
		if reason == "" {
			reason = "manual"
		}
		s.gate.ActivateKillSwitch(reason)
	} else {
		s.gate.DeactivateKillSwitch()
	}
	c.JSON(http.StatusOK, gin.H{"kill_switch": s.gate.KillSwitchActive()})
}

func (s *Server) handleStrategy(c *gin.Context) {
	if s.ctrl == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
		return
	}
	switch c.Param("action") {
	case "enable":
		s.ctrl.Resume()
	case "disable":
		s.ctrl.Pause()
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         "unknown action " + c.Param("action"),
			"valid_actions": []string{"enable", "disable"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": s.ctrl.Running()})
}

func fmtScaled(v int64) string {
	return decimal.New(v, -8).String()
}
