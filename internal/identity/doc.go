// Package identity is the core of identity-gateway: it decides who a caller is
// and issues their session.
//
// # Components
//
//   - Authenticator: email and password Signup and Login, bcrypt hashing
//   - Reconciler: maps federated (OAuth) assertions onto accounts
//   - Issuer: signs session tokens and projects public profiles
//
// Authenticator and Reconciler finish by calling Issuer. Issuer never calls back.
// All three sit on top of an AccountStore and hold no mutable state beyond the
// Config handed to them at startup.
//
// # Races
//
// Duplicate detection is a lookup followed by an insert. The store's unique
// constraint (store.ErrDuplicateKey) is the authoritative signal: a caller that
// loses a race re-runs its lookup-and-decide step once, then reports ErrConflict.
//
// # Email normalization
//
// Emails are trimmed and lowercased (NormalizeEmail) before every lookup and
// insert, so "Alice@Example.com " and "alice@example.com" are the same account.
//
// # Logging
//
// The package never logs. It returns the sentinel errors in errors.go and
// leaves reporting to the transport layer.
package identity
