// Package runid tags one nkftlsim process invocation with a UUID, used to
// keep telemetry rows from separate demo runs apart in a shared sqlite
// database (internal/telemetry.SQLiteRecorder). Adapted from the teacher's
// internal/storage/uuid_helpers.go, which did the same parse/bytes pair
// for row identifiers in its SQL engine.
package runid

import "github.com/google/uuid"

// New generates a fresh run ID.
func New() string { return uuid.NewString() }

// Parse validates a run ID string, returning the underlying uuid.UUID.
func Parse(s string) (uuid.UUID, error) { return uuid.Parse(s) }

// Bytes returns the 16-byte representation of a run ID, for callers that
// want a compact key instead of the string form.
func Bytes(u uuid.UUID) []byte { return u[:] }
