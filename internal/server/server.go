package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/trustvault/internal/backup"
	"github.com/dukerupert/trustvault/internal/handler"
	"github.com/dukerupert/trustvault/internal/middleware"
	"github.com/dukerupert/trustvault/internal/portal"
	"github.com/dukerupert/trustvault/internal/vault"
	ws "github.com/dukerupert/trustvault/internal/websocket"
)

type Config struct {
	// AdminToken guards the debug and backup routes. Empty leaves them open.
	AdminToken string
	WSOrigins  []string
}

type Server struct {
	cfg         Config
	hub         *ws.Hub
	vaultH      *handler.VaultHandler
	portalH     *handler.PortalHandler
	debugH      *handler.DebugHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(cfg Config, hub *ws.Hub, vaultSvc *vault.Service, portalSvc *portal.Service, backupMgr *backup.Manager, limiter *middleware.RateLimiter, logger *slog.Logger) *Server {
	debugH := handler.NewDebugHandler(logger.With("component", "debug"))
	debugH.Register(ws.DocVault, vaultSvc, func() any { return vaultSvc.Snapshot() })
	debugH.Register(ws.DocPortal, portalSvc, func() any { return portalSvc.Snapshot() })

	return &Server{
		cfg:         cfg,
		hub:         hub,
		vaultH:      handler.NewVaultHandler(vaultSvc, logger.With("component", "vault")),
		portalH:     handler.NewPortalHandler(portalSvc, logger.With("component", "portal")),
		debugH:      debugH,
		backupH:     handler.NewBackupHandler(backupMgr, logger.With("component", "backup")),
		rateLimiter: limiter,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.cfg.WSOrigins))
	s.registerVaultRoutes(outerMux)
	s.registerPortalRoutes(outerMux)

	// Admin routes share one bearer token.
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	requireToken := middleware.RequireToken(s.cfg.AdminToken)
	outerMux.Handle("/api/debug/", requireToken(adminMux))
	outerMux.Handle("/api/backup/", requireToken(adminMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": s.hub.ClientCount()})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}

func (s *Server) registerVaultRoutes(mux *http.ServeMux) {
	// Views
	mux.HandleFunc("GET /api/vault/dashboard", s.vaultH.Dashboard)
	mux.HandleFunc("GET /api/vault/members", s.vaultH.Members)
	mux.HandleFunc("GET /api/vault/invoices", s.vaultH.Invoices)
	mux.HandleFunc("GET /api/vault/stats", s.vaultH.Stats)
	mux.HandleFunc("GET /api/vault/finances", s.vaultH.Finances)
	mux.HandleFunc("GET /api/vault/messages", s.vaultH.Messages)
	mux.HandleFunc("GET /api/vault/transactions", s.vaultH.Transactions)
	mux.HandleFunc("GET /api/vault/todos", s.vaultH.Todos)
	mux.HandleFunc("GET /api/vault/settings", s.vaultH.Settings)

	// Members
	mux.HandleFunc("POST /api/vault/members", s.vaultH.CreateMember)
	mux.HandleFunc("PUT /api/vault/members/{id}", s.vaultH.UpdateMember)
	mux.HandleFunc("DELETE /api/vault/members/{id}", s.vaultH.DeleteMember)
	mux.HandleFunc("POST /api/vault/members/{id}/remind", s.vaultH.Remind)

	// Ledger
	mux.HandleFunc("POST /api/vault/deposits", s.vaultH.Deposit)
	mux.HandleFunc("POST /api/vault/withdrawals", s.vaultH.Withdraw)
	mux.HandleFunc("DELETE /api/vault/transactions/{id}", s.vaultH.DeleteTransaction)

	// Notes, events, minutes
	mux.HandleFunc("POST /api/vault/todos", s.vaultH.CreateTodo)
	mux.HandleFunc("DELETE /api/vault/todos/{id}", s.vaultH.DeleteTodo)

	mux.HandleFunc("DELETE /api/vault/messages", s.vaultH.ClearMessages)

	// Settings
	mux.HandleFunc("PUT /api/vault/settings/admin", s.vaultH.UpdateAdmin())
	mux.HandleFunc("PUT /api/vault/settings/target", s.vaultH.UpdateTarget())
	mux.HandleFunc("PUT /api/vault/settings/rules", s.vaultH.UpdateRules())
	mux.HandleFunc("PUT /api/vault/settings/methods", s.vaultH.UpdatePaymentMethods())
	mux.HandleFunc("PUT /api/vault/settings/appearance", s.vaultH.UpdateAppearance())
}

func (s *Server) registerPortalRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/portal", s.portalH.View)
	mux.HandleFunc("POST /api/portal/login", s.portalH.Login)
	mux.HandleFunc("POST /api/portal/subscribers/{id}/disconnect", s.portalH.Disconnect)
	mux.HandleFunc("POST /api/portal/vouchers", s.portalH.CreateVoucher)
	mux.Handle("POST /api/portal/redeem", s.rateLimitedHandler(s.portalH.Redeem))
	mux.HandleFunc("POST /api/portal/deposits", s.portalH.Deposit)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/debug/{doc}", s.debugH.Get)
	mux.HandleFunc("POST /api/debug/{doc}/save", s.debugH.Save)
	mux.HandleFunc("POST /api/debug/{doc}/reset", s.debugH.Reset)

	mux.HandleFunc("POST /api/backup/export", s.backupH.Export)
	mux.HandleFunc("POST /api/backup/import", s.backupH.Import)
	mux.HandleFunc("GET /api/backup/history", s.backupH.History)
}
