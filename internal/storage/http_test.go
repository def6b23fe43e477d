package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imgvec/imgvec/internal/record"
)

func TestHTTPEnsureSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCreateCollection, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "animals", req.Name)

		json.NewEncoder(w).Encode(MessageResponse{Message: CreateAck(req.Name)})
	}))
	defer srv.Close()

	backend := NewHTTP(srv.URL)
	require.NoError(t, backend.EnsureSchema(context.Background(), "animals"))
}

func TestHTTPEnsureSchemaUnexpectedAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MessageResponse{Message: "something else entirely"})
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL).EnsureSchema(context.Background(), "animals")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Body, "something else")
}

func TestHTTPEnsureSchemaValidatesNameLocally(t *testing.T) {
	// No server: a bad name must be rejected before any request is made.
	var ve *record.ValidationError
	err := NewHTTP("http://127.0.0.1:0").EnsureSchema(context.Background(), "drop table; --")
	require.ErrorAs(t, err, &ve)
}

func TestHTTPInsertOmitsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathAddImage, r.URL.Path)

		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Contains(t, raw, "image_base64")
		assert.NotContains(t, raw, "vector")

		json.NewEncoder(w).Encode(MessageResponse{Message: InsertAck})
	}))
	defer srv.Close()

	rec := record.Record{
		IdentityKey: "cat.png",
		Payload:     "cGF5bG9hZA==",
		Vector:      []float32{1, 2, 3},
		Metadata:    record.Metadata{"zone": record.String("a")},
	}
	outcome, err := NewHTTP(srv.URL).Insert(context.Background(), "animals", rec)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
}

func TestHTTPInsertDuplicateAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MessageResponse{Message: DuplicateAck})
	}))
	defer srv.Close()

	outcome, err := NewHTTP(srv.URL).Insert(context.Background(), "animals", record.Record{
		IdentityKey: "cat.png",
		Payload:     "cGF5bG9hZA==",
	})
	require.NoError(t, err)
	assert.Equal(t, DuplicateIgnored, outcome)
}

func TestHTTPQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathFindSimilar, r.URL.Path)

		var req FindSimilarRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "animals", req.Collection)
		assert.Equal(t, 2, req.TopN)
		assert.InDelta(t, 0.5, req.Threshold, 1e-12)

		json.NewEncoder(w).Encode(FindSimilarResponse{
			NFindings: 3,
			Scores:    []float64{0.9, 0.8},
			Files:     []string{"cat.png", "dog.png"},
			Base64:    []string{"YQ==", "Yg=="},
			Metadata: []record.Metadata{
				{"zone": record.String("a")},
				{"zone": record.String("b")},
			},
		})
	}))
	defer srv.Close()

	rs, err := NewHTTP(srv.URL).Query(context.Background(), "animals", QueryRequest{
		Payload:   "cGF5bG9hZA==",
		TopN:      2,
		Threshold: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rs.TotalMatches)
	require.Len(t, rs.Matches, 2)
	assert.Equal(t, "cat.png", rs.Matches[0].IdentityKey)
	assert.Equal(t, "YQ==", rs.Matches[0].Payload)
	assert.True(t, rs.Matches[1].Metadata.Equal(record.Metadata{"zone": record.String("b")}))
}

func TestHTTPQueryRequiresPayload(t *testing.T) {
	var ve *record.ValidationError
	_, err := NewHTTP("http://127.0.0.1:0").Query(context.Background(), "animals", QueryRequest{
		Vector: []float32{1, 0},
	})
	require.ErrorAs(t, err, &ve)
}

func TestHTTPQueryInconsistentArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FindSimilarResponse{
			NFindings: 2,
			Scores:    []float64{0.9, 0.8},
			Files:     []string{"cat.png"},
			Base64:    []string{"YQ=="},
		})
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Query(context.Background(), "animals", QueryRequest{Payload: "cGF5bG9hZA=="})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent result arrays")
}

func TestHTTPErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "cannot decode image"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL).EnsureSchema(context.Background(), "animals")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Contains(t, be.Body, "cannot decode image")
}

func TestHTTPErrorOnUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL).EnsureSchema(context.Background(), "animals")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "not json at all", be.Body)
}

func TestHTTPDropNotSupported(t *testing.T) {
	err := NewHTTP("http://127.0.0.1:0").Drop(context.Background(), "animals")
	assert.True(t, errors.Is(err, ErrNotSupported))
}

func TestHTTPEmbedsRemotely(t *testing.T) {
	assert.True(t, NewHTTP("http://127.0.0.1:0").EmbedsRemotely())
}

func TestHTTPTrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCreateCollection, r.URL.Path)
		json.NewEncoder(w).Encode(MessageResponse{Message: CreateAck("animals")})
	}))
	defer srv.Close()

	require.NoError(t, NewHTTP(srv.URL+"/").EnsureSchema(context.Background(), "animals"))
}
