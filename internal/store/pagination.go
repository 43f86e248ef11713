package store

import (
	"encoding/base64"
	"fmt"
)

// Pagination limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// PaginationParams contains pagination request parameters.
type PaginationParams struct {
	Limit  int    // items per page, defaults to DefaultLimit and is capped at MaxLimit
	Cursor string // opaque cursor for the next page, empty for the first page
}

// PaginatedResult contains paginated data and metadata.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"` // empty if no more pages
	HasMore    bool   `json:"has_more"`
}

// Validate clamps the limit into range.
func (p *PaginationParams) Validate() {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
}

// EncodeCursor creates an opaque cursor from a key.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to a key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}

	return string(decoded), nil
}
