package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	orig := Cursor{
		CreatedAt: time.Date(2025, 3, 14, 15, 9, 26, 535000000, time.UTC),
		ID:        "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
	}

	decoded, err := DecodeCursor(orig.Encode())
	require.NoError(t, err)
	assert.True(t, orig.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, orig.ID, decoded.ID)
}

func TestCursor_Zero(t *testing.T) {
	var zero Cursor
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.Encode())

	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, decoded.IsZero())
}

func TestDecodeCursor_errors(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "%%%"},
		{"no separator", "bm8tc2VwYXJhdG9y"},
		{"bad timestamp", "bm90LWEtZGF0ZXxzb21lLWlk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
