package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// handleToken issues a short-lived bearer token. Nothing is gated on it; the
// endpoint exists so clients built against the standard login flow work
// unchanged.
func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request) {
	claims := jwt.MapClaims{
		"sub": "public_user",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sign token: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: signed, TokenType: "bearer"})
}
