package api

import (
	"log/slog"
	"net/http"

	"github.com/parley-chat/parley/internal/auth"
)

// Config carries the dependencies and settings for the HTTP server.
type Config struct {
	Logger *slog.Logger

	Issuer        *auth.Issuer
	Users         UserStore
	Credentials   CredentialStore
	Conversations ConversationStore
	Turns         Turner
	Sealer        Sealer
	DB            Pinger

	// CORSOrigins lists origins allowed to call the API from browsers.
	CORSOrigins []string
	// TrustProxy enables X-Real-IP / X-Forwarded-For handling.
	TrustProxy bool
	// IsDev disables HSTS (plain HTTP during development).
	IsDev bool

	RatePerMinute int
	RateBurst     int
}

// NewHandler builds the full HTTP handler: health probes outside the
// middleware stack, everything else behind recovery, request IDs, logging,
// CORS, and per-IP rate limiting.
func NewHandler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authH := &authHandler{users: cfg.Users, issuer: cfg.Issuer, logger: logger}
	keysH := &apiKeyHandler{credentials: cfg.Credentials, sealer: cfg.Sealer, logger: logger}
	convH := &conversationHandler{conversations: cfg.Conversations, logger: logger}
	chatH := &chatHandler{turns: cfg.Turns, logger: logger}
	healthH := &healthHandler{db: cfg.DB, logger: logger}

	requireAuth := authMiddleware(cfg.Issuer, logger)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/auth/register", authH.register)
	api.HandleFunc("POST /api/v1/auth/login", authH.login)
	api.Handle("GET /api/v1/auth/me", requireAuth(http.HandlerFunc(authH.me)))

	api.Handle("POST /api/v1/api-keys", requireAuth(http.HandlerFunc(keysH.set)))
	api.Handle("GET /api/v1/api-keys", requireAuth(http.HandlerFunc(keysH.list)))
	api.Handle("DELETE /api/v1/api-keys/{provider}", requireAuth(http.HandlerFunc(keysH.remove)))

	api.Handle("POST /api/v1/conversations", requireAuth(http.HandlerFunc(convH.create)))
	api.Handle("GET /api/v1/conversations", requireAuth(http.HandlerFunc(convH.list)))
	api.Handle("GET /api/v1/conversations/{id}", requireAuth(http.HandlerFunc(convH.get)))
	api.Handle("PATCH /api/v1/conversations/{id}", requireAuth(http.HandlerFunc(convH.rename)))
	api.Handle("DELETE /api/v1/conversations/{id}", requireAuth(http.HandlerFunc(convH.remove)))

	api.Handle("POST /api/v1/conversations/{id}/messages", requireAuth(http.HandlerFunc(chatH.send)))
	api.Handle("POST /api/v1/conversations/{id}/stream", requireAuth(http.HandlerFunc(chatH.stream)))

	secured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, cfg.IsDev)
		api.ServeHTTP(w, r)
	})

	limiter := newRateLimiter(cfg.RatePerMinute, cfg.RateBurst)

	stacked := chain(secured,
		recoveryMiddleware(logger),
		requestIDMiddleware(),
		loggingMiddleware(logger),
		corsMiddleware(cfg.CORSOrigins),
		rateLimitMiddleware(limiter, cfg.TrustProxy, logger),
	)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", healthH.health)
	root.HandleFunc("GET /ready", healthH.ready)
	root.Handle("/", stacked)

	return root
}

// chain applies middleware in order: the first listed is outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
