package storage

import (
	"fmt"

	"github.com/imgvec/imgvec/internal/record"
)

// Wire contract shared by the HTTP backend and the serving side.
// Field names follow the reference service and must stay stable.

const (
	PathCreateCollection = "/create_collection"
	PathAddImage         = "/add_image"
	PathFindSimilar      = "/find_similar"

	// DefaultTopN is the ranked-list bound applied when a find_similar
	// request omits top_N. An explicit top_N, including 0, is honored
	// literally.
	DefaultTopN = 5

	// InsertAck is the generic success message for a stored image.
	InsertAck = "Image added to collection."
	// DuplicateAck acknowledges an insert that was absorbed because
	// the identity key already existed.
	DuplicateAck = "Image already stored; insert ignored."
)

// CreateAck is the exact acknowledgement a create-collection call must
// return. Anything else is treated as a hard failure.
func CreateAck(name string) string {
	return fmt.Sprintf("Collection '%s' created.", name)
}

// CreateRequest asks the server to provision a collection.
type CreateRequest struct {
	Name string `json:"name"`
}

// MessageResponse is the acknowledgement body for create and insert.
type MessageResponse struct {
	Message string `json:"message"`
}

// AddImageRequest carries one insert. The vector is deliberately
// absent: the serving side re-embeds the payload with its own model.
type AddImageRequest struct {
	Collection  string          `json:"collection"`
	File        string          `json:"file"`
	ImageBase64 string          `json:"image_base64"`
	Metadata    record.Metadata `json:"metadata,omitempty"`
}

// FindSimilarRequest carries one similarity query.
type FindSimilarRequest struct {
	Collection  string        `json:"collection"`
	ImageBase64 string        `json:"image_base64"`
	TopN        int           `json:"top_N"`
	Threshold   float64       `json:"threshold"`
	Where       record.Filter `json:"where,omitempty"`
}

// FindSimilarResponse is the fully formed result set, as parallel
// arrays ordered by descending score.
type FindSimilarResponse struct {
	NFindings int               `json:"n_findings"`
	Scores    []float64         `json:"scores"`
	Files     []string          `json:"files"`
	Base64    []string          `json:"base64"`
	Metadata  []record.Metadata `json:"metadata"`
}

// ToResultSet reassembles the parallel arrays into a result set.
func (r *FindSimilarResponse) ToResultSet() (*record.ResultSet, error) {
	if len(r.Scores) != len(r.Files) || len(r.Files) != len(r.Base64) {
		return nil, fmt.Errorf("inconsistent result arrays: %d scores, %d files, %d payloads",
			len(r.Scores), len(r.Files), len(r.Base64))
	}
	rs := &record.ResultSet{
		TotalMatches: r.NFindings,
		Matches:      make([]record.Match, len(r.Scores)),
	}
	for i := range r.Scores {
		var meta record.Metadata
		if i < len(r.Metadata) {
			meta = r.Metadata[i]
		}
		rs.Matches[i] = record.Match{
			Score:       r.Scores[i],
			IdentityKey: r.Files[i],
			Payload:     r.Base64[i],
			Metadata:    meta,
		}
	}
	return rs, nil
}

// FromResultSet splits a result set into the wire's parallel arrays.
func FromResultSet(rs *record.ResultSet) *FindSimilarResponse {
	resp := &FindSimilarResponse{
		NFindings: rs.TotalMatches,
		Scores:    make([]float64, len(rs.Matches)),
		Files:     make([]string, len(rs.Matches)),
		Base64:    make([]string, len(rs.Matches)),
		Metadata:  make([]record.Metadata, len(rs.Matches)),
	}
	for i, m := range rs.Matches {
		resp.Scores[i] = m.Score
		resp.Files[i] = m.IdentityKey
		resp.Base64[i] = m.Payload
		resp.Metadata[i] = m.Metadata
	}
	return resp
}
