// Package store provides persistent storage for identity-gateway.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - AccountStore: accounts keyed by id, email, and external (federated) id
//   - SubscriberStore: newsletter subscribers keyed by email
//   - AuditStore: per-account activity log (sign-ups and sign-ins), newest first
//   - Store: all of the above plus Ping and Close
//
// Three implementations share one behavioural contract (see store_test.go):
//
//   - SQLiteStore: modernc.org/sqlite, the default backend
//   - MongoStore: MongoDB via the official v2 driver, for document-store deployments
//   - MockStore: in-memory maps for tests
//
// # Uniqueness
//
// Account email and external id are unique when present. SQLite stores absent
// values as NULL under UNIQUE columns; MongoDB omits them from the document and
// relies on sparse unique indexes. Every backend reports a violation as
// ErrDuplicateKey, which the identity core treats as a lost race.
//
// # Timestamps
//
// SQLite stores timestamps as fixed-width RFC 3339 text in UTC so they sort
// lexically. MongoDB stores native dates truncated to milliseconds.
//
// # Errors
//
//   - ErrNotFound: lookup miss (including malformed ids)
//   - ErrDuplicateKey: unique constraint violation
//   - ErrStoreClosed: Ping after Close (MockStore)
package store
