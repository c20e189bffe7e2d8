package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gamecaps/api/sse"
	"github.com/kasuganosora/gamecaps/api/ws"
	"github.com/kasuganosora/gamecaps/audit"
	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/game"
	"github.com/kasuganosora/gamecaps/game/matchmaking"
	mw "github.com/kasuganosora/gamecaps/middleware"
	"github.com/kasuganosora/gamecaps/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by middleware.AdminGuard.
type AdminHandler struct {
	svcs   *game.Services
	sm     *ws.SessionManager
	sched  *scheduler.Scheduler
	audit  *audit.Service
	cache  cache.Cache
	sse    *sse.Handler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	svcs *game.Services,
	sm *ws.SessionManager,
	sched *scheduler.Scheduler,
	al *audit.Service,
	c cache.Cache,
	sseH *sse.Handler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{svcs: svcs, sm: sm, sched: sched, audit: al, cache: c, sse: sseH, logger: logger}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g gin.IRoutes) {
	g.GET("/stats", h.Stats)
	g.GET("/sessions", h.ListSessions)
	g.POST("/sessions/:id/kick", h.KickSession)
	g.GET("/audit", h.ListAudit)
	g.GET("/matches", h.ListMatches)
	g.GET("/matches/:id/result", h.MatchResult)
	g.POST("/announce", h.Announce)
}

// Stats returns live server counters.
// GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	queued, live := h.svcs.Matchmaking.Load()
	c.JSON(http.StatusOK, gin.H{
		"sessions":        h.sm.Count(),
		"entities":        h.svcs.World.Count(),
		"rooms":           h.svcs.Chat.RoomCount(),
		"queued":          queued,
		"matches":         live,
		"scheduler_tasks": h.sched.Tasks(),
	})
}

// ListSessions returns a snapshot of every connected session.
// GET /admin/sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions := h.sm.All()
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// KickSession forcibly disconnects a session.
// POST /admin/sessions/:id/kick
func (h *AdminHandler) KickSession(c *gin.Context) {
	id := c.Param("id")
	if !h.sm.Kick(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.logger.Info("admin kicked session", zap.String("session", id), zap.String("trace_id", mw.GetTraceID(c)))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListAudit returns the newest audit rows.
// GET /admin/audit?limit=N
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	rows, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows, "count": len(rows)})
}

// ListMatches returns every match created since start.
// GET /admin/matches
func (h *AdminHandler) ListMatches(c *gin.Context) {
	matches := h.svcs.Matchmaking.Matches()
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

// MatchResult returns the result reported for a match, read from the cache.
// GET /admin/matches/:id/result
func (h *AdminHandler) MatchResult(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	raw, err := h.cache.Get(c.Request.Context(), game.ResultKey(id))
	if cache.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reported result"})
		return
	}
	if err != nil {
		h.logger.Error("match result read failed", zap.Uint64("match_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	var res matchmaking.MatchResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		h.logger.Error("cached match result corrupt", zap.Uint64("match_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache error"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Announce broadcasts a message to every SSE room subscriber.
// POST /admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sse.Announce(c.Request.Context(), req.Message); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
