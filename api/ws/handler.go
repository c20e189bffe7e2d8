package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gamecaps/audit"
	"github.com/kasuganosora/gamecaps/config"
	"github.com/kasuganosora/gamecaps/metrics"
	mw "github.com/kasuganosora/gamecaps/middleware"
	"github.com/kasuganosora/gamecaps/rpc"
	"go.uber.org/zap"
)

// audited lists the calls written to the audit log, as Interface.method.
var audited = map[string]bool{
	"ChatService.createRoom":       true,
	"InventoryService.startTrade":  true,
	"TradeSession.confirm":         true,
	"TradeSession.cancel":          true,
	"MatchmakingService.findMatch": true,
	"MatchController.reportResult": true,
	"MatchController.cancelMatch":  true,
}

// Handler is the Gin handler for GET /ws. Each websocket carries one
// capability connection whose bootstrap is boot.
type Handler struct {
	boot     rpc.Server
	sm       *SessionManager
	metrics  *metrics.Metrics
	audit    *audit.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler. m and al may be nil.
// sec.AllowedOrigins controls which origins are accepted; an empty slice
// permits all origins.
func NewHandler(
	boot rpc.Server,
	sm *SessionManager,
	sec config.SecurityConfig,
	m *metrics.Metrics,
	al *audit.Service,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		boot:    boot,
		sm:      sm,
		metrics: m,
		audit:   al,
		logger:  logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS upgrades the request and serves RPC until the socket closes.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	id := mw.GetTraceID(c)
	if id == "" {
		id = uuid.NewString()
	}
	sess := NewSession(id, conn, h.logger)
	h.sm.Register(sess)
	if h.metrics != nil {
		h.metrics.ConnOpened()
	}

	opts := rpc.Options{
		Logger: h.logger.With(zap.String("session", id)),
		OnCall: func(ci rpc.CallInfo) { h.observe(sess, ci) },
	}
	if h.metrics != nil {
		opts.OnExport = h.metrics.Export
	}
	rc := rpc.NewConn(sess, h.boot, opts)
	err = rc.Serve(context.WithoutCancel(c.Request.Context()))

	_ = sess.Close()
	h.sm.Unregister(sess)
	if h.metrics != nil {
		h.metrics.ConnClosed()
	}
	h.logger.Info("session disconnected", zap.String("session", id), zap.NamedError("reason", err))
}

// observe records one delivered call in metrics, the log and, for state
// changing calls, the audit log.
func (h *Handler) observe(sess *Session, ci rpc.CallInfo) {
	if h.metrics != nil {
		h.metrics.ObserveCall(ci)
	}

	fields := []zap.Field{
		zap.String("trace_id", ci.TraceID),
		zap.String("session", sess.ID),
		zap.Uint64("cap", ci.Cap),
		zap.String("interface", ci.Interface),
		zap.String("method", ci.Method),
		zap.Duration("duration", ci.Duration),
		zap.Bool("pipelined", ci.Pipelined),
		zap.String("status", ci.Status),
	}
	if ci.Err != nil {
		h.logger.Warn("rpc call failed", append(fields, zap.Error(ci.Err))...)
	} else {
		h.logger.Debug("rpc call", fields...)
	}

	if h.audit == nil || !audited[ci.Interface+"."+ci.Method] {
		return
	}
	entry := audit.AuditEntry{
		TraceID:    ci.TraceID,
		PlayerID:   playerIDOf(ci.Params),
		Interface:  ci.Interface,
		Action:     ci.Method,
		Request:    ci.Params,
		Response:   ci.Result,
		Status:     ci.Status,
		RemoteAddr: sess.RemoteAddr,
		DurationMs: int(ci.Duration.Milliseconds()),
	}
	if ci.Err != nil {
		entry.Status = metrics.StatusError
		entry.Error = ci.Err.Error()
	}
	h.audit.Log(entry)
}

// playerIDOf picks the acting player out of call params, if there is one.
func playerIDOf(params json.RawMessage) *uint64 {
	if len(params) == 0 {
		return nil
	}
	var p struct {
		Player *struct {
			ID uint64 `json:"id"`
		} `json:"player"`
		InitiatorID *uint64 `json:"initiatorId"`
		PlayerID    *uint64 `json:"playerId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil
	}
	switch {
	case p.Player != nil:
		return &p.Player.ID
	case p.InitiatorID != nil:
		return p.InitiatorID
	default:
		return p.PlayerID
	}
}
