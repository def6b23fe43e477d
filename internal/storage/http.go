package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imgvec/imgvec/internal/record"
)

// HTTP proxies the backend contract to a remote service. Each method is
// a single synchronous round trip; the serving side owns the store and
// the embedding model, so inserts and queries carry only the payload.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP creates a remote backend for the service at baseURL.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureSchema asks the server to provision the collection. Anything
// but the exact acknowledgement message is a hard failure, since the
// remote namespace state is then unknown.
func (h *HTTP) EnsureSchema(ctx context.Context, name string) error {
	if err := record.ValidateName(name); err != nil {
		return err
	}

	var ack MessageResponse
	if err := h.post(ctx, PathCreateCollection, CreateRequest{Name: name}, &ack); err != nil {
		return err
	}
	if ack.Message != CreateAck(name) {
		return &BackendError{Op: "create collection", Body: ack.Message, cause: fmt.Errorf("unexpected acknowledgement")}
	}
	return nil
}

// Insert ships the payload and metadata only. The server recomputes the
// embedding with its own model; a client-supplied vector is never sent
// and would not be trusted.
func (h *HTTP) Insert(ctx context.Context, name string, rec record.Record) (InsertOutcome, error) {
	if err := record.ValidateName(name); err != nil {
		return Inserted, err
	}

	req := AddImageRequest{
		Collection:  name,
		File:        rec.IdentityKey,
		ImageBase64: rec.Payload,
		Metadata:    rec.Metadata,
	}

	var ack MessageResponse
	if err := h.post(ctx, PathAddImage, req, &ack); err != nil {
		return Inserted, err
	}
	if ack.Message == DuplicateAck {
		return DuplicateIgnored, nil
	}
	return Inserted, nil
}

// Query sends the payload-level search and returns the server-ranked
// result set.
func (h *HTTP) Query(ctx context.Context, name string, req QueryRequest) (*record.ResultSet, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, err
	}
	if req.Payload == "" {
		return nil, &record.ValidationError{Reason: "remote query requires an image payload"}
	}

	wireReq := FindSimilarRequest{
		Collection:  name,
		ImageBase64: req.Payload,
		TopN:        req.TopN,
		Threshold:   req.Threshold,
		Where:       req.Filter,
	}

	var resp FindSimilarResponse
	if err := h.post(ctx, PathFindSimilar, wireReq, &resp); err != nil {
		return nil, err
	}
	return resp.ToResultSet()
}

// Drop is not part of the remote contract: server-side collections are
// not remotely resettable.
func (h *HTTP) Drop(ctx context.Context, name string) error {
	return ErrNotSupported
}

// EmbedsRemotely reports true: the serving side is authoritative for
// embedding computation.
func (h *HTTP) EmbedsRemotely() bool { return true }

// post runs one JSON round trip. A non-200 status or an undecodable
// body surfaces as a backend failure carrying the raw response.
func (h *HTTP) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return &BackendError{Op: path, cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &BackendError{Op: path, Status: resp.StatusCode, cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &BackendError{Op: path, Status: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &BackendError{Op: path, Status: resp.StatusCode, Body: string(raw), cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
