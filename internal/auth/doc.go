// Package auth provides bearer-token authentication for identity-gateway.
//
// # Session Tokens
//
// Sessions are HS256 JWTs signed with the configured auth.jwt_secret, which
// must be at least 32 bytes. A token carries:
//
//   - sub: the account id
//   - email, name, picture: the profile at issue time
//   - iat, exp: issue and expiry times (auth.token_ttl, 7 days by default)
//
// JWTSigner implements identity.TokenSigner, so the identity core signs
// sessions without depending on this package:
//
//	signer, err := auth.NewJWTSigner(secret)
//	token, err := signer.Sign(identity.Claims{AccountID: id}, ttl)
//	claims, err := signer.Verify(token)
//
// # HTTP Middleware
//
// HTTPAuthMiddleware rejects requests without a valid "Authorization: Bearer"
// header with 401 and attaches an AuthContext otherwise. Handlers read it
// with FromContext. OptionalAuthMiddleware does the same but lets anonymous
// requests through.
package auth
