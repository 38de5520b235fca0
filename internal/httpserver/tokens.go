// internal/httpserver/tokens.go
//
// Lobby player tokens.
// A token is an HS256 JWT naming the player, the lobby and the display name.
// It is handed out by POST /lobby and POST /lobby/{id}/join and presented on
// the websocket upgrade, so a reconnect resumes the same seat.

package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("httpserver: invalid player token")

// playerClaims identify one seat in one lobby.
type playerClaims struct {
	PlayerID string `json:"playerId"`
	LobbyID  string `json:"lobbyId"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// signPlayerToken creates an HS256 JWT valid for TokenTTL.
func (s *Server) signPlayerToken(lobbyID, playerID, name string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, playerClaims{
		PlayerID: playerID,
		LobbyID:  lobbyID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	})
	return t.SignedString([]byte(s.TokenSecret))
}

// parsePlayerToken verifies signature, algorithm and expiry.
func (s *Server) parsePlayerToken(raw string) (*playerClaims, error) {
	if raw == "" {
		return nil, errInvalidToken
	}
	claims := &playerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.TokenSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.PlayerID == "" || claims.LobbyID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// bearerOrQuery extracts a token from the Authorization header or ?token=.
// Browsers cannot set headers on a websocket upgrade, hence the query form.
func bearerOrQuery(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return r.URL.Query().Get("token")
}
