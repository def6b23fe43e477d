// Package storage provides the two backends a collection can bind to:
// an embedded SQLite store and an HTTP proxy to a remote service that
// owns an equivalent store. Both expose the same contract; the closed
// set of implementations is deliberate.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/imgvec/imgvec/internal/record"
)

// InsertOutcome distinguishes a stored record from a silently absorbed
// duplicate. Duplicate identity keys are ignored by design to keep
// re-ingestion idempotent, but callers and operators can still observe
// the drop through this variant.
type InsertOutcome int

const (
	// Inserted means the record was appended to the collection.
	Inserted InsertOutcome = iota
	// DuplicateIgnored means a record with the same identity key
	// already existed and the insert was a no-op.
	DuplicateIgnored
)

func (o InsertOutcome) String() string {
	if o == DuplicateIgnored {
		return "duplicate-ignored"
	}
	return "inserted"
}

// QueryRequest carries one similarity query to a backend. The local
// backend ranks against Vector; the remote backend ships Payload and
// lets the server embed it, so Vector never crosses the wire.
type QueryRequest struct {
	// Payload is the base64-encoded query image.
	Payload string

	// Vector is the query embedding, computed caller-side. Unused by
	// the remote backend.
	Vector []float32

	TopN      int
	Threshold float64
	Filter    record.Filter
}

// Backend is the uniform storage contract behind a collection.
//
// Exactly two implementations exist: SQLite (embedded) and HTTP
// (remote proxy). EmbedsRemotely tells the façade which side is
// authoritative for computing embeddings.
type Backend interface {
	// EnsureSchema idempotently provisions the collection namespace.
	EnsureSchema(ctx context.Context, name string) error

	// Insert appends a record. A duplicate identity key is absorbed
	// and reported as DuplicateIgnored, not as an error.
	Insert(ctx context.Context, name string, rec record.Record) (InsertOutcome, error)

	// Query runs a ranked similarity search over the full collection.
	Query(ctx context.Context, name string, req QueryRequest) (*record.ResultSet, error)

	// Drop destroys the namespace. Safe to call when it does not
	// exist. The remote backend does not support it.
	Drop(ctx context.Context, name string) error

	// EmbedsRemotely reports whether the backend computes embeddings
	// on its own side from the payload.
	EmbedsRemotely() bool
}

// ErrNotSupported is returned for operations a backend does not expose,
// such as dropping a collection through the remote proxy.
var ErrNotSupported = errors.New("storage: operation not supported by this backend")

// BackendError reports a failed storage operation. For remote failures
// Status and Body carry the raw response for diagnosis.
type BackendError struct {
	Op     string
	Status int
	Body   string
	cause  error
}

func (e *BackendError) Error() string {
	msg := "storage: " + e.Op + " failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.cause }

// SchemaDriftError means a namespace exists but does not match the
// expected record shape. Fatal for that collection; no migration is
// attempted.
type SchemaDriftError struct {
	Collection string
	Detail     string
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("storage: collection %q has an incompatible schema: %s", e.Collection, e.Detail)
}
