// Package api serves sessions, bets and EV charts over HTTP, and
// interactive chart sessions over WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rewired-gh/evgraph/internal/cache"
	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/logger"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/segment"
	"github.com/rewired-gh/evgraph/internal/storage"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Options tunes query limits and segment detection.
type Options struct {
	// QueryLimit is the default and maximum row count of list endpoints.
	QueryLimit int
	Segment    segment.Options
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	store  storage.Store
	cache  cache.ChartCache
	opts   Options
	router *gin.Engine
}

// New builds the router. A nil chart cache disables caching.
func New(store storage.Store, chartCache cache.ChartCache, opts Options) *Server {
	if chartCache == nil {
		chartCache = cache.Nop{}
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = 1000
	}
	s := &Server{store: store, cache: chartCache, opts: opts}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), cors(), metricsMiddleware(), requestLogger())

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id", s.getSession)
		api.GET("/sessions/:id/bets", s.sessionBets)
		api.GET("/bets", s.getBet)
		api.GET("/bets/ev", s.evRecords)
		api.GET("/bets/chart", s.getChart)
		api.GET("/bets/chart/ws", s.chartSession)
		api.POST("/viewport", s.applyViewport)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	s.router = router
	return s
}

// Handler exposes the router for http.Server and httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "EVGraph API", "version": Version})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		logger.Warn("health check: storage ping failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listSessions(c *gin.Context) {
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}
	includeStats, err := strconv.ParseBool(c.DefaultQuery("include_stats", "true"))
	if err != nil {
		badRequest(c, "include_stats must be a boolean")
		return
	}

	start := time.Now()
	sessions, err := s.store.ListSessions(c.Request.Context(), limit)
	observeQuery("list_sessions", start)
	if err != nil {
		s.fail(c, "list sessions", err, "")
		return
	}

	var stats map[int64]models.SessionStats
	if includeStats && len(sessions) > 0 {
		ids := make([]int64, len(sessions))
		for i, sess := range sessions {
			ids[i] = sess.ID
		}
		start = time.Now()
		stats, err = s.store.SessionStats(c.Request.Context(), ids)
		observeQuery("session_stats", start)
		if err != nil {
			s.fail(c, "session stats", err, "")
			return
		}
	}

	out := make([]models.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		if !includeStats {
			out = append(out, models.Summarize(sess, nil))
			continue
		}
		st := stats[sess.ID]
		out = append(out, models.Summarize(sess, &st))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		s.fail(c, "get session", err, "Session not found")
		return
	}
	stats, err := s.store.SessionStats(ctx, []int64{id})
	if err != nil {
		s.fail(c, "session stats", err, "")
		return
	}
	st := stats[id]
	c.JSON(http.StatusOK, models.Summarize(*sess, &st))
}

func (s *Server) sessionBets(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	limit, ok := s.limitParam(c)
	if !ok {
		return
	}
	start := time.Now()
	bets, err := s.store.SessionBets(c.Request.Context(), id, limit)
	observeQuery("session_bets", start)
	if err != nil {
		s.fail(c, "session bets", err, "")
		return
	}
	c.JSON(http.StatusOK, bets)
}

func (s *Server) getBet(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	bet, err := s.store.GetBet(c.Request.Context(), betID)
	if err != nil {
		s.fail(c, "get bet", err, "Bet not found")
		return
	}
	c.JSON(http.StatusOK, bet)
}

func (s *Server) evRecords(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		s.fail(c, "get bet", err, "Bet not found")
		return
	}
	start := time.Now()
	records, err := s.store.EVRecordsForBet(ctx, bet)
	observeQuery("ev_records", start)
	if err != nil {
		s.fail(c, "ev records", err, "")
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) getChart(c *gin.Context) {
	betID, ok := betIDParam(c)
	if !ok {
		return
	}
	sessionID, ok := optionalSessionID(c)
	if !ok {
		return
	}
	ch, err := s.loadChart(c.Request.Context(), betID, sessionID)
	if err != nil {
		s.fail(c, "load chart", err, chartNotFound(err))
		return
	}
	c.JSON(http.StatusOK, ch)
}

var errSessionLookup = errors.New("chart session lookup")

func chartNotFound(err error) string {
	if errors.Is(err, errSessionLookup) {
		return "Session not found"
	}
	return "Bet not found"
}

// loadChart builds the chart of betID, drawing session overlays when
// sessionID is non-zero, and serves it from the cache when possible.
func (s *Server) loadChart(ctx context.Context, betID string, sessionID int64) (*chart.Chart, error) {
	key := cache.Key(betID, sessionID)
	if ch, ok := s.cache.Get(ctx, key); ok {
		chartCacheLookups.WithLabelValues("hit").Inc()
		return ch, nil
	}
	chartCacheLookups.WithLabelValues("miss").Inc()

	bet, err := s.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	var session *models.Session
	if sessionID != 0 {
		session, err = s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errSessionLookup, err)
		}
	}
	start := time.Now()
	records, err := s.store.EVRecordsForBet(ctx, bet)
	observeQuery("ev_records", start)
	if err != nil {
		return nil, err
	}

	ch := chart.Build(bet, session, records, s.opts.Segment)
	s.cache.Set(ctx, key, ch)
	return ch, nil
}

type viewportRequest struct {
	N        int                `json:"n"`
	Viewport *viewport.Viewport `json:"viewport"`
	Event    viewport.Event     `json:"event"`
}

type viewportResponse struct {
	Viewport *viewport.Viewport `json:"viewport"`
	Empty    bool               `json:"empty"`
}

// applyViewport applies one button or wheel gesture to a client-held
// viewport. A missing viewport starts from the full range.
func (s *Server) applyViewport(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.N < 0 {
		badRequest(c, "n must not be negative")
		return
	}
	if !req.Event.Kind.Stateless() {
		if req.Event.Kind.Valid() {
			badRequest(c, "drag events need a chart session")
		} else {
			badRequest(c, "unknown event type: "+string(req.Event.Kind))
		}
		return
	}
	if req.N == 0 {
		c.JSON(http.StatusOK, viewportResponse{Empty: true})
		return
	}
	current, _ := viewport.Reset(req.N)
	if req.Viewport != nil {
		current = *req.Viewport
	}
	next := viewport.Apply(current, req.N, req.Event)
	c.JSON(http.StatusOK, viewportResponse{Viewport: &next})
}

// fail maps err to a response. notFound is the 404 message; an empty
// notFound treats ErrNotFound as an internal error.
func (s *Server) fail(c *gin.Context, op string, err error, notFound string) {
	if notFound != "" && errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	logger.Error("%s failed (request_id=%s): %v", op, c.GetString("request_id"), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return s.opts.QueryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	return min(limit, s.opts.QueryLimit), true
}

func sessionIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid session id")
		return 0, false
	}
	return id, true
}

func optionalSessionID(c *gin.Context) (int64, bool) {
	raw := c.Query("session_id")
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid session_id")
		return 0, false
	}
	return id, true
}

func betIDParam(c *gin.Context) (string, bool) {
	betID := c.Query("bet_id")
	if betID == "" {
		badRequest(c, "bet_id is required")
		return "", false
	}
	return betID, true
}
