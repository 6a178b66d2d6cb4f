// ABOUTME: Gateway orchestrator that wires the identity core to its HTTP surface
// ABOUTME: Manages store, token signer, newsletter, rate limiter, and server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/identity-gateway/internal/auth"
	"github.com/2389/identity-gateway/internal/config"
	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/metrics"
	"github.com/2389/identity-gateway/internal/newsletter"
	"github.com/2389/identity-gateway/internal/oauth"
	"github.com/2389/identity-gateway/internal/ratelimit"
	"github.com/2389/identity-gateway/internal/store"
)

// maxPendingLogins bounds the OAuth state cache.
const maxPendingLogins = 10_000

// Gateway orchestrates the identity-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	httpServer *http.Server
	logger     *slog.Logger

	signer        *auth.JWTSigner
	issuer        *identity.Issuer
	authenticator *identity.Authenticator
	reconciler    *identity.Reconciler
	newsletter    *newsletter.Service

	// limiter throttles credential and subscription endpoints per client
	limiter ratelimit.Limiter
	ips     *ratelimit.IPResolver

	// metrics is nil when metrics are disabled
	metrics *metrics.Recorder

	// google is nil when Google sign-in is disabled
	google oauth.Provider
	states *oauth.StateCache

	// mailer overrides the Brevo client, used by tests
	mailer newsletter.Mailer
}

// Option customizes a Gateway before its components are built.
type Option func(*Gateway)

// WithStore uses s instead of opening the configured database.
func WithStore(s store.Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithOAuthProvider uses p for Google sign-in instead of discovering Google's endpoints.
func WithOAuthProvider(p oauth.Provider) Option {
	return func(g *Gateway) { g.google = p }
}

// WithMailer uses m for newsletter delivery instead of a Brevo client.
func WithMailer(m newsletter.Mailer) Option {
	return func(g *Gateway) { g.mailer = m }
}

// WithLimiter uses l instead of the configured rate limit backend.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithMetrics records into m regardless of metrics.enabled.
func WithMetrics(m *metrics.Recorder) Option {
	return func(g *Gateway) { g.metrics = m }
}

// initStore creates the store selected by database.driver.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		s, err := store.NewMongoStore(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	default:
		dbPath := cfg.Database.Path
		if envPath := os.Getenv("IDENTITY_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	}
}

// initLimiter creates the limiter selected by rate_limit.backend.
func initLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.RateLimit.Backend != config.BackendRedis {
		return ratelimit.NewMemoryLimiter(), nil
	}
	rl := cfg.RateLimit
	limiter, err := ratelimit.NewRedisLimiter(ctx, rl.RedisAddr, rl.RedisPassword, rl.RedisDB, logger.With("component", "ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("initializing rate limiter: %w", err)
	}
	return limiter, nil
}

// initMailer returns the Brevo client, or nil when no API key is configured.
func initMailer(cfg *config.Config) (newsletter.Mailer, error) {
	nl := cfg.Newsletter
	if nl.BrevoAPIKey == "" {
		return nil, nil
	}
	client, err := newsletter.NewBrevoClient(newsletter.BrevoConfig{
		APIKey:            nl.BrevoAPIKey,
		BaseURL:           nl.APIBaseURL,
		SenderEmail:       nl.SenderEmail,
		SenderName:        nl.SenderName,
		ListID:            nl.ListID,
		RequestsPerSecond: nl.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating brevo client: %w", err)
	}
	return client, nil
}

// initIdentity builds the signer and the three core services on top of s.
func (g *Gateway) initIdentity() error {
	idCfg := g.config.IdentityConfig()
	if err := idCfg.Validate(); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}

	signer, err := auth.NewJWTSigner(idCfg.SigningKey)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}

	g.signer = signer
	g.issuer = identity.NewIssuer(g.store, signer, idCfg)
	g.authenticator, err = identity.NewAuthenticator(g.store, identity.NewBcryptHasher(idCfg.BcryptCost), g.issuer)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}
	g.reconciler = identity.NewReconciler(g.store, g.issuer)
	return nil
}

// New creates a new Gateway instance with the given configuration.
// ctx bounds startup work such as database connection and OIDC discovery.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(gw)
	}

	if gw.store == nil {
		s, err := initStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		gw.store = s
	}

	// From here on, failures must release what was already opened.
	cleanup := func() {
		gw.closeOptionalComponents()
		_ = gw.store.Close()
	}

	if err := gw.initIdentity(); err != nil {
		cleanup()
		return nil, err
	}

	ips, err := ratelimit.NewIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		cleanup()
		return nil, err
	}
	gw.ips = ips

	if gw.metrics == nil && cfg.Metrics.Enabled {
		gw.metrics = metrics.New()
	}

	if gw.limiter == nil {
		limiter, err := initLimiter(ctx, cfg, logger)
		if err != nil {
			cleanup()
			return nil, err
		}
		gw.limiter = limiter
	}

	if gw.mailer == nil {
		mailer, err := initMailer(cfg)
		if err != nil {
			cleanup()
			return nil, err
		}
		gw.mailer = mailer
	}
	nlOpts := []newsletter.Option{
		newsletter.WithFrontendURL(cfg.Server.FrontendURL),
		newsletter.WithLogger(logger.With("component", "newsletter")),
	}
	if gw.mailer != nil {
		nlOpts = append(nlOpts, newsletter.WithMailer(gw.mailer))
	} else {
		logger.Warn("newsletter provider sync disabled - no brevo_api_key configured")
	}
	if gw.metrics != nil {
		nlOpts = append(nlOpts, newsletter.WithFailureRecorder(gw.metrics))
	}
	gw.newsletter = newsletter.NewService(gw.store, nlOpts...)

	if gw.google == nil && cfg.OAuth.Google.Enabled {
		g := cfg.OAuth.Google
		provider, err := oauth.NewGoogleProvider(ctx, g.ClientID, g.ClientSecret, g.RedirectURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("initializing google sign-in: %w", err)
		}
		gw.google = provider
	}
	if gw.google != nil {
		gw.states = oauth.NewStateCache(cfg.OAuth.Google.StateTTL, maxPendingLogins)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// routes builds the HTTP handler tree.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	rl := g.config.RateLimit
	authMiddleware := auth.HTTPAuthMiddleware(g.signer, g.logger.With("component", "auth"))
	optionalAuth := auth.OptionalAuthMiddleware(g.signer)

	g.handle(mux, "/auth/signup", g.rateLimit("signup", rl.SignupPerMinute, http.HandlerFunc(g.handleSignup)))
	g.handle(mux, "/auth/login", g.rateLimit("login", rl.LoginPerMinute, http.HandlerFunc(g.handleLogin)))
	g.handle(mux, "/auth/profile", authMiddleware(http.HandlerFunc(g.handleProfile)))
	g.handle(mux, "/auth/logout", optionalAuth(http.HandlerFunc(g.handleLogout)))
	g.handle(mux, "/auth/activity", authMiddleware(http.HandlerFunc(g.handleActivity)))

	if g.google != nil {
		g.handle(mux, "/auth/google", http.HandlerFunc(g.handleGoogleLogin))
		g.handle(mux, "/auth/google/callback", http.HandlerFunc(g.handleGoogleCallback))
		g.logger.Info("google sign-in enabled")
	}

	g.handle(mux, "/newsletter/subscribe", g.rateLimit("subscribe", rl.SubscribePerMinute, http.HandlerFunc(g.handleSubscribe)))
	g.handle(mux, "/newsletter/subscribers", authMiddleware(http.HandlerFunc(g.handleListSubscribers)))

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	if g.metrics != nil {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}

	return mux
}

// handle registers h at pattern with request instrumentation.
func (g *Gateway) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, g.instrument(pattern, h))
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until ctx is canceled or the server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeOptionalComponents closes components that may be nil.
func (g *Gateway) closeOptionalComponents() {
	if g.states != nil {
		g.states.Close()
	}
	if g.limiter != nil {
		if err := g.limiter.Close(); err != nil {
			g.logger.Warn("closing rate limiter", "error", err)
		}
	}
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.closeOptionalComponents()

	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
