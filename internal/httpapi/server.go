package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/internal/notify"
	"stock-price-alerts/internal/pubsub"
	"stock-price-alerts/internal/tracker"
	"stock-price-alerts/pkg/models"
)

const defaultHistoryLimit = 500

// HistoryStore serves recorded quotes for charts in the UI.
type HistoryStore interface {
	History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.Quote, error)
}

// LatestQuotes serves the most recent quote per symbol.
type LatestQuotes interface {
	Latest(ctx context.Context, symbols ...string) ([]models.Quote, error)
}

type Deps struct {
	Registry   *alerts.Registry
	Tracker    *tracker.Tracker
	Engine     *alerts.Engine
	TriggerBus *alerts.TriggerBus
	Broker     *pubsub.Broker
	Dispatcher *notify.Dispatcher
	History    HistoryStore
	// Latest is optional; without it latest quotes come from the evaluator
	// baselines.
	Latest LatestQuotes
	Logger *zap.Logger
}

// Server is the HTTP and websocket gateway used by the UI.
type Server struct {
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", s.handleWebsocket)

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)

	alertsGroup := api.Group("/alerts")
	alertsGroup.GET("", s.handleAlertsList)
	alertsGroup.POST("", s.handleAlertsCreate)
	alertsGroup.DELETE("/:id", s.handleAlertDelete)
	alertsGroup.POST("/:id/rearm", s.handleAlertRearm)
	alertsGroup.POST("/:id/disarm", s.handleAlertDisarm)

	watchlist := api.Group("/watchlist")
	watchlist.GET("", s.handleWatchlist)
	watchlist.POST("", s.handleWatchlistAdd)
	watchlist.DELETE("/:symbol", s.handleWatchlistRemove)

	api.GET("/quotes", s.handleLatestQuotes)
	api.GET("/quotes/:symbol/history", s.handleQuoteHistory)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type statusResponse struct {
	Symbols       []tracker.SymbolStatus  `json:"symbols"`
	Engine        alerts.EngineStats      `json:"engine"`
	TriggerBus    alerts.TriggerBusStats  `json:"trigger_bus"`
	Notifications *notify.DispatcherStats `json:"notifications,omitempty"`
	Rules         int                     `json:"rules"`
	QuotesDropped uint64                  `json:"quotes_dropped"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{
		Symbols:       s.deps.Tracker.Status(),
		Engine:        s.deps.Engine.GetStats(),
		TriggerBus:    s.deps.TriggerBus.GetStats(),
		Rules:         s.deps.Registry.Count(),
		QuotesDropped: s.deps.Broker.Dropped(),
	}
	if s.deps.Dispatcher != nil {
		stats := s.deps.Dispatcher.GetStats()
		resp.Notifications = &stats
	}
	c.JSON(http.StatusOK, resp)
}

type createAlertRequest struct {
	Symbol         string           `json:"symbol"`
	Metric         models.Metric    `json:"metric"`
	Direction      models.Direction `json:"direction"`
	Threshold      decimal.Decimal  `json:"threshold"`
	Note           string           `json:"note"`
	Email          string           `json:"email"`
	TelegramChatID string           `json:"telegram_chat_id"`
}

func (s *Server) handleAlertsList(c *gin.Context) {
	var rules []*models.AlertRule
	if symbol := c.Query("symbol"); symbol != "" {
		rules = s.deps.Registry.List(symbol)
	} else {
		rules = s.deps.Registry.All()
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rules})
}

func (s *Server) handleAlertsCreate(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := models.NewAlertRule(req.Symbol, req.Direction, req.Threshold, req.Note)
	rule.Metric = req.Metric
	rule.Recipients = models.Recipients{Email: req.Email, TelegramChatID: req.TelegramChatID}
	if err := s.deps.Registry.Add(rule); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.deps.Tracker.Track(c.Request.Context(), rule.Symbol); err != nil {
		s.logger.Warn("Alert created but symbol is not tracked", zap.String("symbol", rule.Symbol), zap.Error(err))
	}

	s.logger.Info("Created alert", zap.Stringer("rule", rule))
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleAlertDelete(c *gin.Context) {
	if err := s.deps.Registry.Remove(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAlertRearm(c *gin.Context) {
	s.setArmed(c, s.deps.Registry.Rearm)
}

func (s *Server) handleAlertDisarm(c *gin.Context) {
	s.setArmed(c, s.deps.Registry.Disarm)
}

func (s *Server) setArmed(c *gin.Context, apply func(string) error) {
	id := c.Param("id")
	if err := apply(id); err != nil {
		s.writeError(c, err)
		return
	}
	rule, err := s.deps.Registry.Get(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.deps.Tracker.Status()})
}

func (s *Server) handleWatchlistAdd(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Tracker.Track(c.Request.Context(), req.Symbol); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"symbol": models.NormalizeSymbol(req.Symbol)})
}

func (s *Server) handleWatchlistRemove(c *gin.Context) {
	if err := s.deps.Tracker.Untrack(c.Request.Context(), c.Param("symbol")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleLatestQuotes returns the last quote for each requested symbol, or for
// every tracked symbol when none are given.
func (s *Server) handleLatestQuotes(c *gin.Context) {
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		for _, symbol := range strings.Split(raw, ",") {
			if symbol = models.NormalizeSymbol(symbol); symbol != "" {
				symbols = append(symbols, symbol)
			}
		}
	} else {
		symbols = s.deps.Tracker.Tracked()
	}

	quotes := []models.Quote{}
	if s.deps.Latest != nil {
		cached, err := s.deps.Latest.Latest(c.Request.Context(), symbols...)
		if err != nil {
			s.writeError(c, err)
			return
		}
		quotes = append(quotes, cached...)
	} else {
		for _, symbol := range symbols {
			if quote, ok := s.deps.Engine.Evaluator().LastQuote(symbol); ok {
				quotes = append(quotes, quote)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (s *Server) handleQuoteHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "quote history is not enabled"})
		return
	}

	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	symbol := models.NormalizeSymbol(c.Param("symbol"))
	quotes, err := s.deps.History.History(c.Request.Context(), symbol, since, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "quotes": quotes})
}

func (s *Server) writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		code = http.StatusBadRequest
	case errors.Is(err, alerts.ErrRuleNotFound), errors.Is(err, tracker.ErrNotTracked):
		code = http.StatusNotFound
	case errors.Is(err, alerts.ErrRuleExists):
		code = http.StatusConflict
	case errors.Is(err, tracker.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
