package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/gamecaps/api/rest"
	"github.com/kasuganosora/gamecaps/api/sse"
	apiws "github.com/kasuganosora/gamecaps/api/ws"
	"github.com/kasuganosora/gamecaps/audit"
	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/config"
	"github.com/kasuganosora/gamecaps/game"
	"github.com/kasuganosora/gamecaps/metrics"
	mw "github.com/kasuganosora/gamecaps/middleware"
	"github.com/kasuganosora/gamecaps/rpc"
	"github.com/kasuganosora/gamecaps/scheduler"
	"github.com/kasuganosora/gamecaps/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdminKey is the admin key every test server is started with.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	Svcs   *game.Services
	Cache  cache.Cache
	PubSub cache.PubSub
	SM     *apiws.SessionManager
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
}

// NewTestServer starts a server exposing schema on /ws.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T, schema string) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	auditSvc := audit.New(db, logger, audit.WithFlushInterval(10*time.Millisecond))

	// ---- Game services ----
	svcs := game.NewServices(c, pubsub, logger)
	boot, err := apiws.NewBootstrap(schema, svcs)
	require.NoError(t, err)
	m := metrics.New()
	sm := apiws.NewSessionManager(logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(t.Context(), rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", apirest.Health(schema))
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/ws", apiws.NewHandler(boot, sm, sec, m, auditSvc, logger).ServeWS)

	sseH := sse.NewHandler(svcs.Feed, pubsub, 0, logger)
	r.GET("/sse/rooms/:name", sseH.ServeRoom)

	adminH := apirest.NewAdminHandler(svcs, sm, sched, auditSvc, c, sseH, logger)
	adminH.Register(r.Group("/admin", mw.AdminGuard(AdminKey, nil)))

	// ---- Start server ----
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		sm.CloseAll(time.Second)
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})

	return &TestServer{
		Svcs:   svcs,
		Cache:  c,
		PubSub: pubsub,
		SM:     sm,
		Audit:  auditSvc,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + server.URL[len("http"):] + "/ws",
	}
}

// Dial opens an rpc client on the websocket endpoint. It is closed when the
// test ends.
func (ts *TestServer) Dial(t *testing.T) *rpc.Client {
	t.Helper()
	client, err := apiws.Dial(Ctx(t), ts.WSURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Ctx returns a context that expires after five seconds.
func Ctx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --- HTTP helpers ---

// AdminGet sends a GET request carrying the admin key.
func (ts *TestServer) AdminGet(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(mw.AdminKeyHeader, AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// AdminPost sends a POST request with a JSON body carrying the admin key.
func (ts *TestServer) AdminPost(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.AdminKeyHeader, AdminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
