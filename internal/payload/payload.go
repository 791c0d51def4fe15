// Package payload normalizes backend response bodies.
//
// The backend serves some datasets as native JSON and others as a JSON string
// literal whose contents are serialized JSON. Normalize turns either form into
// one canonical document so decoders never branch on the encoding.
package payload

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/antonholmquist/jason"

	"github.com/naturethrive/birdmonitor/internal/errors"
)

const (
	componentName = "payload"

	// previewLen bounds how much of a rejected body is kept in error context
	previewLen = 64
)

// Normalize returns the canonical JSON document carried by body.
//
// A JSON string literal is unwrapped exactly once and its contents must
// themselves be valid JSON. Any other valid JSON value is returned with
// surrounding whitespace trimmed. Empty or invalid input is a
// MalformedPayload error.
func Normalize(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, malformed("empty body", body)
	}
	if !json.Valid(trimmed) {
		return nil, malformed("body is not valid JSON", body)
	}

	// Only a string literal needs unwrapping; anything else is already canonical.
	if trimmed[0] != '"' {
		return json.RawMessage(trimmed), nil
	}

	v, err := jason.NewValueFromBytes(trimmed)
	if err != nil {
		return nil, malformed("body is not valid JSON", body)
	}
	s, err := v.String()
	if err != nil {
		return nil, malformed("string body could not be read", body)
	}

	inner := bytes.TrimSpace([]byte(s))
	if len(inner) == 0 {
		return nil, malformed("string body is empty", body)
	}
	if !json.Valid(inner) {
		return nil, malformed("string body does not contain valid JSON", body)
	}

	return json.RawMessage(inner), nil
}

// Parse normalizes body and returns it as a dynamic jason value for
// field-by-field inspection.
func Parse(body []byte) (*jason.Value, error) {
	raw, err := Normalize(body)
	if err != nil {
		return nil, err
	}

	v, err := jason.NewValueFromBytes(raw)
	if err != nil {
		return nil, malformed("normalized body could not be parsed", raw)
	}
	return v, nil
}

// Decode normalizes body and unmarshals it into v.
// A shape mismatch between the document and v is a MalformedPayload error.
func Decode(body []byte, v any) error {
	raw, err := Normalize(body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryMalformedPayload).
			Context("operation", "decode").
			Context("body_preview", preview(raw)).
			Build()
	}
	return nil
}

func malformed(reason string, body []byte) error {
	return errors.Newf("malformed payload: %s", reason).
		Component(componentName).
		Category(errors.CategoryMalformedPayload).
		Context("operation", "normalize").
		Context("body_preview", preview(body)).
		Context("body_bytes", len(body)).
		Build()
}

// preview returns at most previewLen bytes of body, cut on a rune boundary.
func preview(body []byte) string {
	if len(body) <= previewLen {
		return string(body)
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
