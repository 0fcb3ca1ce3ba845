package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type ctxKey int

const userKey ctxKey = iota

// GenerateJWT returns a signed token naming user.  A positive ttl sets the
// token's expiration.
func GenerateJWT(secret, user string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"user": user}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

// userFromContext returns the authenticated user or "".
func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// isAuthorized is middleware that validates a bearer JWT and records the
// authenticated user in the request context.
func (s *Server) isAuthorized(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		h.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(fn)
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	reqToken := r.Header.Get("Authorization")
	if len(reqToken) == 0 {
		return "", fmt.Errorf("JWT required via Authorization in request header")
	}
	reqToken, found := strings.CutPrefix(reqToken, "Bearer")
	if !found {
		return "", fmt.Errorf("bearer not in proper format")
	}
	reqToken = strings.TrimSpace(reqToken)
	if len(reqToken) == 0 {
		return "", fmt.Errorf("requests require JWT authentication")
	}
	token, err := jwt.Parse(reqToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("error parsing JWT: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("failed authorization")
	}
	user, ok := claims["user"].(string)
	if !ok {
		return "", fmt.Errorf("user %v is not a simple string", claims["user"])
	}
	return user, nil
}
