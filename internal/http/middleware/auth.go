package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valooran/patient-intake-system/internal/auth"
)

// ErrInvalidToken is returned by ParseToken for any unusable token.
var ErrInvalidToken = errors.New("middleware: invalid token")

// Claims is the payload of an intake access token.
type Claims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HMAC-signed token and returns the caller identity.
func ParseToken(secret, tokenString string) (auth.Identity, error) {
	if secret == "" || tokenString == "" {
		return auth.Identity{}, ErrInvalidToken
	}
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || strings.TrimSpace(claims.ID) == "" {
		return auth.Identity{}, ErrInvalidToken
	}
	role := claims.Role
	if role != auth.RoleAdmin {
		role = auth.RoleUser
	}
	return auth.Identity{UserID: claims.ID, Role: role, Email: claims.Email}, nil
}

// MintToken signs a token for identity. Token issuance belongs to the account
// service; this exists for local tooling and tests.
func MintToken(secret string, identity auth.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:    identity.UserID,
		Role:  identity.Role,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// RequireUser enforces a bearer token and stores the caller identity in the request context.
func RequireUser(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if tokenString == "" {
				writeMsg(w, http.StatusUnauthorized, "No token")
				return
			}
			identity, err := ParseToken(secret, tokenString)
			if err != nil {
				writeMsg(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects callers without the admin role. Mount after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.FromContext(r.Context())
		if !ok || !identity.IsAdmin() {
			writeMsg(w, http.StatusForbidden, "Admin access only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
