package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Payload is normalized log content. FileName is kept for display only.
type Payload struct {
	Text     string
	FileName string
}

// Empty reports whether the payload has nothing but whitespace.
func (p Payload) Empty() bool { return strings.TrimSpace(p.Text) == "" }

// FromText passes raw log text through unchanged.
func FromText(text string) Payload {
	return Payload{Text: text}
}

// FromDocument parses data as a JSON document and re-serializes it with
// two-space indentation. Malformed documents are rejected with ErrInvalidDocument.
func FromDocument(name string, data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, name, err)
	}
	// a single document only, no trailing values
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Payload{}, fmt.Errorf("%w: %s: unexpected data after document", ErrInvalidDocument, name)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, name, err)
	}
	return Payload{Text: strings.TrimSuffix(buf.String(), "\n"), FileName: name}, nil
}

// NewRequest builds a validated request from a payload.
func NewRequest(p Payload, sendNotification bool) (Request, error) {
	req := Request{RawText: p.Text, SendNotification: sendNotification}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate rejects whitespace-only text.
func (r Request) Validate() error {
	if strings.TrimSpace(r.RawText) == "" {
		return fmt.Errorf("%w: log text is required", ErrValidation)
	}
	return nil
}
