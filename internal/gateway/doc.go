// Package gateway orchestrates the identity-gateway server components.
//
// # Overview
//
// The gateway package is the HTTP front of the identity core. It owns the
// store, token signer, newsletter service, rate limiter, metrics recorder,
// and the optional Google sign-in provider, and translates between JSON
// requests and the identity package.
//
// # HTTP API
//
//   - POST /auth/signup - Create a password account, returns {access_token, user}
//   - POST /auth/login - Password login, returns {access_token, user}
//   - GET /auth/google - Redirect to Google's consent page (PKCE)
//   - GET /auth/google/callback - Reconcile and redirect to the frontend with ?token=
//   - GET /auth/profile - Current profile (bearer token)
//   - GET /auth/logout - Acknowledge logout; tokens are stateless
//   - GET /auth/activity - Caller's recent sign-ins, newest first (bearer token)
//   - POST /newsletter/subscribe - Subscribe an email address
//   - GET /newsletter/subscribers - List subscribers (bearer token)
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store ping)
//   - GET /metrics - Prometheus metrics when enabled
//
// # Error Mapping
//
// Handlers map core errors with errors.Is:
//
//	identity.ErrConflict           -> 409
//	identity.ErrInvalidCredentials -> 401
//	identity.ErrNotFound           -> 404
//	validation failures            -> 400
//	rate limit exceeded            -> 429
//	anything else                  -> 500 (logged)
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Canceling ctx makes Run shut the server down and close the store.
package gateway
