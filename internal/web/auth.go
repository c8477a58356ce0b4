package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorize checks the shared token, if one is configured. The token is
// accepted either as a bearer header or a "token" query parameter; the
// latter exists because browser WebSocket clients cannot set headers.
func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	if header := bearerToken(r.Header.Get("Authorization")); header != "" && secureEqual(header, s.cfg.Token) {
		return true
	}

	if query := strings.TrimSpace(r.URL.Query().Get("token")); query != "" && secureEqual(query, s.cfg.Token) {
		return true
	}

	return false
}

func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
