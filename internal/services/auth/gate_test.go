package auth

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAuthorized(t *testing.T) {
	gate := NewGate(zerolog.New(io.Discard), "  Open-Sesame ")

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"exact", "open-sesame", true},
		{"upper case", "OPEN-SESAME", true},
		{"embedded", "en:badge=Open-Sesame;v=2", true},
		{"other token", "open-sesam", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Authorized(tt.text))
		})
	}
}

func TestAuthorized_EmptyToken(t *testing.T) {
	gate := NewGate(zerolog.New(io.Discard), "   ")

	assert.False(t, gate.Authorized(""))
	assert.False(t, gate.Authorized("anything"))
}
