// Package inmem provides mutex-guarded in-memory repositories with the same
// conditional-write semantics as the database implementations. Used by tests
// and as a scratch backend for local tooling.
package inmem

import "github.com/google/uuid"

func newID() string {
	return uuid.New().String()
}
