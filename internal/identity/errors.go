// ABOUTME: Error taxonomy for the identity core
// ABOUTME: Callers map these to transport responses with errors.Is

package identity

import "errors"

var (
	// ErrConflict is returned when an email or external id is already claimed.
	ErrConflict = errors.New("identity conflict")

	// ErrInvalidCredentials is returned for any failed password login. It never
	// says whether the account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when a profile lookup misses.
	ErrNotFound = errors.New("account not found")

	// ErrMissingEmail is returned when signing up without an email address.
	ErrMissingEmail = errors.New("email is required")

	// ErrInvalidAssertion is returned when a federated assertion lacks an external id.
	ErrInvalidAssertion = errors.New("invalid federated assertion")
)
