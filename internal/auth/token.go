// ABOUTME: JWT session tokens for authenticating HTTP requests
// ABOUTME: HS256 signing and verification of account claims with a configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/identity-gateway/internal/identity"
)

// MinSecretLength is the minimum signing secret length in bytes (256 bits for HS256).
const MinSecretLength = identity.MinSigningKeyLength

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("jwt secret too short")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*identity.Claims, error)
}

// sessionClaims is the JSON shape of a session token.
type sessionClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTSigner signs and verifies HS256 session tokens. It implements both
// identity.TokenSigner and TokenVerifier.
type JWTSigner struct {
	secret []byte
	now    func() time.Time
}

var (
	_ identity.TokenSigner = (*JWTSigner)(nil)
	_ TokenVerifier        = (*JWTSigner)(nil)
)

// NewJWTSigner creates a signer. The secret must be at least MinSecretLength bytes.
func NewJWTSigner(secret []byte) (*JWTSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	return &JWTSigner{secret: secret, now: time.Now}, nil
}

// Sign creates a token carrying the claims that expires after ttl.
func (s *JWTSigner) Sign(claims identity.Claims, ttl time.Duration) (string, error) {
	if claims.AccountID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email:   claims.Email,
		Name:    claims.DisplayName,
		Picture: claims.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// Verify validates the token signature and expiry and returns its claims.
func (s *JWTSigner) Verify(tokenString string) (*identity.Claims, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return &identity.Claims{
		AccountID:   claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}, nil
}
