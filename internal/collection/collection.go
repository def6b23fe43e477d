// Package collection exposes the public insert/query contract over a
// storage backend and an embedding model. Behavior is identical
// whether the backend is the embedded SQLite store or the remote HTTP
// proxy, except for the documented remote capability gaps.
package collection

import (
	"context"
	"fmt"
	"os"

	"github.com/imgvec/imgvec/internal/embeddings"
	"github.com/imgvec/imgvec/internal/imaging"
	"github.com/imgvec/imgvec/internal/record"
	"github.com/imgvec/imgvec/internal/similarity"
	"github.com/imgvec/imgvec/internal/storage"
)

// DefaultTopN bounds queries when the caller does not say otherwise.
const DefaultTopN = storage.DefaultTopN

// Collection is a named set of vector+metadata records. Construction
// ensures the schema synchronously, so a Collection is always observed
// ready.
type Collection struct {
	name     string
	backend  storage.Backend
	embedder embeddings.Embedder
	debug    bool
}

// Open validates the name, provisions the namespace and returns a
// ready collection.
func Open(ctx context.Context, name string, backend storage.Backend, embedder embeddings.Embedder) (*Collection, error) {
	return OpenWithDebug(ctx, name, backend, embedder, false)
}

// OpenWithDebug is Open with debug logging of absorbed duplicates and
// other quiet paths.
func OpenWithDebug(ctx context.Context, name string, backend storage.Backend, embedder embeddings.Embedder, debug bool) (*Collection, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}
	if err := backend.EnsureSchema(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %q: %w", name, err)
	}
	return &Collection{name: name, backend: backend, embedder: embedder, debug: debug}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// QueryOptions controls a similarity query. TopN is honored literally:
// zero or negative yields an empty ranked list (the match count is
// still computed). Use DefaultOptions for the conventional defaults.
type QueryOptions struct {
	TopN      int
	Threshold float64
	Filter    record.Filter
}

// DefaultOptions returns the conventional query settings: top 5, no
// threshold, no filter.
func DefaultOptions() QueryOptions {
	return QueryOptions{TopN: DefaultTopN}
}

// InsertImage decodes the raw image, embeds it (locally, unless the
// backend embeds on its own side) and stores the record. A duplicate
// identity key is absorbed by design and reported through the outcome,
// never as an error.
func (c *Collection) InsertImage(ctx context.Context, identityKey string, raw []byte, meta record.Metadata) (storage.InsertOutcome, error) {
	img, _, err := imaging.Decode(raw)
	if err != nil {
		return storage.Inserted, err
	}

	rec := record.Record{
		IdentityKey: identityKey,
		Payload:     imaging.ToBase64(raw),
		Metadata:    meta,
	}

	if !c.backend.EmbedsRemotely() {
		vec, err := c.embedder.Embed(ctx, img)
		if err != nil {
			return storage.Inserted, fmt.Errorf("failed to embed %q: %w", identityKey, err)
		}
		if err := similarity.ValidateVector(vec); err != nil {
			return storage.Inserted, err
		}
		rec.Vector = vec
	}

	outcome, err := c.backend.Insert(ctx, c.name, rec)
	if err != nil {
		return outcome, err
	}
	if outcome == storage.DuplicateIgnored && c.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Collection %s: duplicate identity key %q ignored\n", c.name, identityKey)
	}
	return outcome, nil
}

// Query embeds the raw image once (the embedding is never persisted)
// and returns the ranked result set.
func (c *Collection) Query(ctx context.Context, raw []byte, opts QueryOptions) (*record.ResultSet, error) {
	img, _, err := imaging.Decode(raw)
	if err != nil {
		return nil, err
	}

	req := storage.QueryRequest{
		Payload:   imaging.ToBase64(raw),
		TopN:      opts.TopN,
		Threshold: opts.Threshold,
		Filter:    opts.Filter,
	}

	if !c.backend.EmbedsRemotely() {
		vec, err := c.embedder.Embed(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query image: %w", err)
		}
		if err := similarity.ValidateVector(vec); err != nil {
			return nil, err
		}
		req.Vector = vec
	}

	return c.backend.Query(ctx, c.name, req)
}

// Reset drops all records and re-provisions the empty namespace. The
// remote backend does not support it and returns ErrNotSupported.
func (c *Collection) Reset(ctx context.Context) error {
	if err := c.backend.Drop(ctx, c.name); err != nil {
		return err
	}
	return c.backend.EnsureSchema(ctx, c.name)
}
