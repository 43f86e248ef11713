// Package id generates the identifiers dropwatch attaches to dispatches and events.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for generated IDs.
const (
	PrefixDispatch = "dsp"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "dsp-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Dispatch returns a new dispatch ID. Dispatch IDs only correlate log lines
// and audit rows, so an entropy failure degrades to a fixed marker instead
// of aborting the dispatch.
func Dispatch() string {
	id, err := Generate(PrefixDispatch)
	if err != nil {
		return PrefixDispatch + "-unavailable"
	}
	return id
}

// Event returns a new event ID. Event IDs travel with the event to external
// systems and use the UUID format those systems expect.
func Event() string {
	return uuid.NewString()
}
