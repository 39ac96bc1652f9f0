// Package auth decides whether a tag's text authorizes a login.
package auth

import (
	"strings"

	"github.com/rs/zerolog"
)

// Gate matches tag text against the configured token.
type Gate struct {
	token  string
	logger zerolog.Logger
}

// NewGate creates a gate for token. Surrounding whitespace is ignored.
func NewGate(logger zerolog.Logger, token string) *Gate {
	return &Gate{token: strings.ToLower(strings.TrimSpace(token)), logger: logger}
}

// Authorized reports whether text contains the token, ignoring case. An
// empty token authorizes nothing.
func (g *Gate) Authorized(text string) bool {
	if g.token == "" {
		g.logger.Warn().Msg("no auth token configured, rejecting tag")
		return false
	}
	ok := strings.Contains(strings.ToLower(text), g.token)
	g.logger.Debug().Int("tag_length", len(text)).Bool("authorized", ok).Msg("tag checked")
	return ok
}
