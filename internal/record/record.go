// Package record defines the value types exchanged between the storage
// backends, the similarity engine and the collection façade, together
// with their storage codecs.
package record

import "regexp"

// Record is a single stored item: an embedding vector plus the encoded
// source image and its metadata.
type Record struct {
	// ID is the backend-assigned surrogate identifier, monotonically
	// increasing and immutable once assigned.
	ID int64

	// IdentityKey is the caller-supplied unique string for the record,
	// typically the original file name. Unique per collection.
	IdentityKey string

	// Payload is the base64 encoding of the source image, stored and
	// returned verbatim.
	Payload string

	// Vector is the embedding produced by whichever embedder ingested
	// the image. Its length is not validated against other records;
	// a mismatch surfaces at comparison time.
	Vector []float32

	// Metadata holds the structured key/value map for the record.
	Metadata Metadata
}

// Match is one entry of a ranked result list.
type Match struct {
	Score       float64  `json:"score"`
	IdentityKey string   `json:"identity_key"`
	Payload     string   `json:"payload"`
	Metadata    Metadata `json:"metadata"`
}

// ResultSet is the answer to a similarity query.
//
// TotalMatches counts every record whose score met the threshold. It is
// computed before the metadata filter and independently of the top-N
// truncation, so it can exceed len(Matches).
type ResultSet struct {
	TotalMatches int     `json:"total_matches"`
	Matches      []Match `json:"matches"`
}

// ValidationError reports malformed or unsupported input. It is
// surfaced to the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Collection names become storage namespace identifiers (table names),
// so they are restricted to simple identifiers.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName rejects collection names that are not plain identifiers.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return &ValidationError{Reason: "collection name must be a plain identifier (letters, digits, underscore): " + name}
	}
	return nil
}
