// Package imaging converts between raw image bytes, decoded images and
// the base64 text form stored as a record payload.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	// Register the standard decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/imgvec/imgvec/internal/record"
)

// Decode parses raw image bytes, returning the image and its format
// name. Undecodable bytes are a validation error, not a storage error.
func Decode(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", &record.ValidationError{Reason: fmt.Sprintf("cannot decode image: %v", err)}
	}
	return img, format, nil
}

// ToBase64 encodes raw image bytes to the payload text form.
func ToBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// FromBase64 decodes a payload back to raw image bytes.
func FromBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &record.ValidationError{Reason: fmt.Sprintf("invalid base64 payload: %v", err)}
	}
	return raw, nil
}

// DecodeBase64 decodes a payload directly to an image.
func DecodeBase64(payload string) (image.Image, error) {
	raw, err := FromBase64(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(raw)
	return img, err
}
