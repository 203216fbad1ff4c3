package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/edvin/miniforge/internal/api/response"
)

type contextKey string

// IdentityKey holds the authenticated caller in the request context.
const IdentityKey contextKey = "identity"

var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// StaticKey accepts a single configured key. With no key configured every
// request is let through as "anonymous".
type StaticKey struct {
	key string
}

func NewStaticKey(key string) *StaticKey {
	return &StaticKey{key: key}
}

func (s *StaticKey) Authenticate(r *http.Request) (string, error) {
	if s.key == "" {
		return "anonymous", nil
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = extractAPIKey(r)
	}
	if key == "" {
		// Browsers cannot set headers on WebSocket handshakes.
		key = r.URL.Query().Get("token")
	}
	if key == "" {
		return "", ErrMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.key)) != 1 {
		return "", ErrInvalidKey
	}
	return "api-key", nil
}

// Auth rejects requests the authenticator does not accept.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the caller stored by Auth.
func GetIdentity(ctx context.Context) string {
	id, _ := ctx.Value(IdentityKey).(string)
	return id
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return key
	}
	return ""
}
