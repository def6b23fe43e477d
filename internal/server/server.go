// Package server exposes the remote wire contract over HTTP. It wraps
// the embedded SQLite backend and an embedder; every inserted or
// queried payload is re-embedded here, so the serving side stays
// authoritative for vectors.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/kelseyhightower/envconfig"

	"github.com/imgvec/imgvec/internal/embeddings"
	"github.com/imgvec/imgvec/internal/imaging"
	"github.com/imgvec/imgvec/internal/record"
	"github.com/imgvec/imgvec/internal/similarity"
	"github.com/imgvec/imgvec/internal/storage"
)

// Settings configures the serving process. Values come from the
// IMGVEC_* environment.
type Settings struct {
	Addr     string `envconfig:"ADDR" default:":5000"`
	DBPath   string `envconfig:"DB_PATH" default:"imgvec.db3"`
	Embedder string `envconfig:"EMBEDDER" default:"pixel"`

	OllamaURL   string `envconfig:"OLLAMA_URL"`
	OllamaModel string `envconfig:"OLLAMA_MODEL"`
	CLIPURL     string `envconfig:"CLIP_URL"`
	CLIPKey     string `envconfig:"CLIP_KEY"`
	CLIPModel   string `envconfig:"CLIP_MODEL"`
}

// LoadSettings reads the IMGVEC_* environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("imgvec", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to read server settings: %w", err)
	}
	return s, nil
}

// EmbedderConfig converts the settings to an embedder factory config.
func (s Settings) EmbedderConfig() embeddings.Config {
	return embeddings.Config{
		Provider:    s.Embedder,
		OllamaURL:   s.OllamaURL,
		OllamaModel: s.OllamaModel,
		CLIPURL:     s.CLIPURL,
		CLIPKey:     s.CLIPKey,
		CLIPModel:   s.CLIPModel,
	}
}

// Server handles the three wire operations.
type Server struct {
	store    *storage.SQLite
	embedder embeddings.Embedder
}

// New creates a server over the given store and embedder.
func New(store *storage.SQLite, embedder embeddings.Embedder) *Server {
	return &Server{store: store, embedder: embedder}
}

// Handler returns the HTTP handler for the wire contract.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+storage.PathCreateCollection, s.handleCreate)
	mux.HandleFunc("POST "+storage.PathAddImage, s.handleAddImage)
	mux.HandleFunc("POST "+storage.PathFindSimilar, s.handleFindSimilar)
	return mux
}

// ListenAndServe runs the server until it fails.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("imgvec server listening on %s (embedder: %s)", addr, s.embedder.Name())
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req storage.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.store.EnsureSchema(r.Context(), req.Name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, storage.MessageResponse{Message: storage.CreateAck(req.Name)})
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	var req storage.AddImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.store.EnsureSchema(r.Context(), req.Collection); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	vec, err := s.embedPayload(r.Context(), req.ImageBase64)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	outcome, err := s.store.Insert(r.Context(), req.Collection, record.Record{
		IdentityKey: req.File,
		Payload:     req.ImageBase64,
		Vector:      vec,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if outcome == storage.DuplicateIgnored {
		log.Printf("collection %s: duplicate identity key %q ignored", req.Collection, req.File)
		writeJSON(w, storage.MessageResponse{Message: storage.DuplicateAck})
		return
	}
	writeJSON(w, storage.MessageResponse{Message: storage.InsertAck})
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	// Pre-seed the default so an omitted top_N yields a bounded ranked
	// list; a present top_N, even 0, overwrites it.
	req := storage.FindSimilarRequest{TopN: storage.DefaultTopN}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.store.EnsureSchema(r.Context(), req.Collection); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	vec, err := s.embedPayload(r.Context(), req.ImageBase64)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	rs, err := s.store.Query(r.Context(), req.Collection, storage.QueryRequest{
		Vector:    vec,
		TopN:      req.TopN,
		Threshold: req.Threshold,
		Filter:    req.Where,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, storage.FromResultSet(rs))
}

// embedPayload decodes a base64 image and embeds it with the server's
// own model.
func (s *Server) embedPayload(ctx context.Context, payload string) ([]float32, error) {
	img, err := imaging.DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	if err := similarity.ValidateVector(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func statusFor(err error) int {
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Printf("request failed: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
