// ABOUTME: Process-wide settings injected into the identity core at startup
// ABOUTME: Signing key, bcrypt cost, token lifetime, and default profile values

package identity

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MinSigningKeyLength is the minimum HS256 key size accepted.
const MinSigningKeyLength = 32

// DefaultTokenTTL matches the seven day session lifetime of the web frontend.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Config is built once from the loaded configuration and is read-only afterwards.
type Config struct {
	SigningKey []byte
	BcryptCost int
	TokenTTL   time.Duration

	// Used in the public profile when the account has no value of its own
	DefaultDisplayName string
	DefaultAvatarURL   string
}

// Validate checks the settings are usable.
func (c Config) Validate() error {
	if len(c.SigningKey) < MinSigningKeyLength {
		return fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}
