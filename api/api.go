package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/api/rest"
	"github.com/zlnvch/collabdocs/api/ws"
	"github.com/zlnvch/collabdocs/collab"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/service"
)

const healthTimeout = 2 * time.Second

type Options struct {
	AllowedOrigins []string
	AdminKey       string
	Client         ws.ClientOptions
	// HealthChecks are run by /health. Any failure reports 503.
	HealthChecks map[string]func(ctx context.Context) error
}

type CollabDocsAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	authLimiter *clientLimiter
	options     Options
	shutdownCtx context.Context
	log         *logger.ContextLogger
}

func NewCollabDocsAPI(
	svc *service.Service,
	hub *collab.Hub,
	gate *collab.Gate,
	coordinator *collab.Coordinator,
	options Options,
	shutdownCtx context.Context,
	log *zap.Logger,
) *CollabDocsAPI {
	if log == nil {
		log = zap.NewNop()
	}

	restHandler := rest.NewHandler(svc, coordinator, hub, options.AdminKey, log)
	wsHandler := ws.NewHandler(svc, gate, hub, coordinator, options.Client, log)

	return &CollabDocsAPI{
		restHandler: restHandler,
		wsHandler:   wsHandler,
		wsUpgrader:  wsHandler.NewWsUpgrader(options.AllowedOrigins),
		authLimiter: newClientLimiter(5, 10),
		options:     options,
		shutdownCtx: shutdownCtx,
		log:         logger.NewContextLogger(log),
	}
}

func (a *CollabDocsAPI) RegisterRoutes(mux *http.ServeMux) {
	r := a.restHandler
	limited := a.authLimiter.wrap

	mux.HandleFunc("GET /ping", a.handlePing)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/login", limited(r.HandleLogin))
	mux.HandleFunc("POST /api/auth/register", limited(r.HandleRegister))
	mux.HandleFunc("POST /api/auth/forgot-password", limited(r.HandleForgotPassword))
	mux.HandleFunc("POST /api/auth/reset-password", limited(r.HandleResetPassword))
	mux.HandleFunc("POST /api/auth/logout", r.HandleLogout)
	mux.HandleFunc("GET /api/auth/verify-session", r.HandleVerifySession)
	mux.HandleFunc("POST /api/auth/update-profile", r.HandleUpdateProfile)
	mux.HandleFunc("POST /api/auth/update-password", limited(r.HandleUpdatePassword))

	mux.HandleFunc("GET /api/users/company", r.HandleCompanyUsers)
	mux.HandleFunc("GET /api/admin/users", r.HandleAdminUsers)
	mux.HandleFunc("POST /api/admin/update-user-permissions", r.HandleUpdateUserPermissions)
	mux.HandleFunc("GET /api/admin/sessions", r.HandleSessions)
	mux.HandleFunc("POST /api/admin/clear-sessions", r.HandleClearSessions)

	mux.HandleFunc("GET /api/documents", r.HandleListDocuments)
	mux.HandleFunc("POST /api/documents", r.HandleCreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", r.HandleGetDocument)
	mux.HandleFunc("PUT /api/documents/{id}", r.HandleUpdateDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", r.HandleDeleteDocument)
	mux.HandleFunc("GET /api/documents/{id}/permissions", r.HandleGetPermissions)
	mux.HandleFunc("PUT /api/documents/{id}/permissions", r.HandleUpdatePermissions)

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		a.wsHandler.ServeWS(a.wsUpgrader, w, r, a.shutdownCtx)
	})
	mux.HandleFunc("GET /ws/public", func(w http.ResponseWriter, r *http.Request) {
		a.wsHandler.ServePublicWS(a.wsUpgrader, w, r, a.shutdownCtx)
	})
}

// Handler returns mux wrapped in the middleware chain.
// Order: CORS → Recovery → Logging → Body limit → Routes
func (a *CollabDocsAPI) Handler(mux *http.ServeMux) http.Handler {
	var handler http.Handler = mux
	handler = bodyLimit(handler)
	handler = requestLogging(a.log)(handler)
	handler = recovery(a.log.Logger())(handler)

	corsOptions := cors.Options{
		AllowedOrigins:   a.options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
	}
	if len(corsOptions.AllowedOrigins) == 0 {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}
	return cors.New(corsOptions).Handler(handler)
}

func (a *CollabDocsAPI) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "pong",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *CollabDocsAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.options.HealthChecks))
	for name, check := range a.options.HealthChecks {
		if err := check(ctx); err != nil {
			a.log.LogWarn(ctx, "health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": overall, "checks": checks})
}
