package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows a single page can hold.
	MaxLimit = 200
)

// Params holds cursor pagination inputs from controllers.
type Params struct {
	Limit  int
	Cursor string
}

// Enabled reports whether the caller asked for a page at all. Without a limit
// or a cursor the full history is returned.
func (p Params) Enabled() bool {
	return p.Limit > 0 || strings.TrimSpace(p.Cursor) != ""
}

// Cursor is the sort key of the last row of a page, in newest-first order.
type Cursor struct {
	OccurredAt time.Time
	CreatedAt  time.Time
	ID         uuid.UUID
}

// Precedes reports whether c sorts strictly before other in newest-first
// order. Rows a cursor precedes belong to later pages.
func (c Cursor) Precedes(other Cursor) bool {
	if !c.OccurredAt.Equal(other.OccurredAt) {
		return c.OccurredAt.After(other.OccurredAt)
	}
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.After(other.CreatedAt)
	}
	return c.ID.String() > other.ID.String()
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%s|%s",
		cursor.OccurredAt.UTC().Format(time.RFC3339Nano),
		cursor.CreatedAt.UTC().Format(time.RFC3339Nano),
		cursor.ID.String(),
	)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{
		OccurredAt: occurredAt,
		CreatedAt:  createdAt,
		ID:         id,
	}, nil
}

// Page cuts one page out of rows already sorted newest first. next is empty
// on the last page.
func Page[T any](rows []T, params Params, key func(T) Cursor) (page []T, next string, err error) {
	after, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if after != nil {
		start = len(rows)
		for i, row := range rows {
			if after.Precedes(key(row)) {
				start = i
				break
			}
		}
	}

	limit := NormalizeLimit(params.Limit)
	end := start + limit
	if end >= len(rows) {
		return rows[start:], "", nil
	}
	return rows[start:end], EncodeCursor(key(rows[end-1])), nil
}
