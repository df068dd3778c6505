package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

//go:embed fallback.json
var defaultFallback []byte

// Fallback is the payload served in place of any failed upstream response.
// It is validated and compacted once and never changes afterwards.
type Fallback struct {
	body []byte
}

// DefaultFallback returns the built-in mock titles.
func DefaultFallback() Fallback {
	f, err := NewFallback(defaultFallback)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded fallback is invalid: %v", err))
	}
	return f
}

// LoadFallback reads a fallback payload from path, or returns the built-in
// one when path is empty.
func LoadFallback(path string) (Fallback, error) {
	if path == "" {
		return DefaultFallback(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fallback{}, fmt.Errorf("read fallback file: %w", err)
	}
	return NewFallback(raw)
}

// NewFallback validates that raw is a JSON object with a results array.
func NewFallback(raw []byte) (Fallback, error) {
	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Fallback{}, fmt.Errorf("decode fallback: %w", err)
	}
	if envelope.Results == nil {
		return Fallback{}, errors.New("fallback must contain a results array")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Fallback{}, fmt.Errorf("compact fallback: %w", err)
	}
	return Fallback{body: buf.Bytes()}, nil
}

// Bytes returns a copy of the encoded payload.
func (f Fallback) Bytes() []byte {
	return bytes.Clone(f.body)
}
