package model

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor marks a position in a (created_at, id) ordered listing. The zero
// value means "from the top".
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}

	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to decode cursor: %w", err)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	const cursorPartCount = 2
	if len(parts) != cursorPartCount {
		return Cursor{}, fmt.Errorf("malformed cursor %q", string(raw))
	}

	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}

	return Cursor{CreatedAt: ts, ID: parts[1]}, nil
}
