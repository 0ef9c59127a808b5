package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/tenancy"
)

// BusinessClaims are the claims carried by dashboard tokens. Subject is the
// authenticated user.
type BusinessClaims struct {
	jwt.RegisteredClaims
	BusinessID string `json:"business_id"`
}

// BusinessJWT enforces an HMAC-signed JWT and scopes the request to the
// business and user named in its claims.
func BusinessJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeUnauthorized(w, "auth disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeUnauthorized(w, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := BusinessClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeUnauthorized(w, "invalid token")
				return
			}
			if strings.TrimSpace(claims.BusinessID) == "" {
				writeUnauthorized(w, "token missing business_id")
				return
			}

			ctx := tenancy.WithBusinessID(r.Context(), claims.BusinessID)
			if claims.Subject != "" {
				ctx = tenancy.WithUserID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BusinessLookup resolves an ingestion API key to its business.
type BusinessLookup interface {
	GetBusinessByAPIKey(ctx context.Context, apiKey string) (*business.Business, error)
}

// APIKeyHeader carries lead-ingestion keys.
const APIKeyHeader = "X-API-Key"

// APIKey authenticates server-to-server lead intake by API key and scopes the
// request to the owning business.
func APIKey(lookup BusinessLookup) func(http.Handler) http.Handler {
	if lookup == nil {
		panic("middleware: business lookup required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if key == "" {
				writeUnauthorized(w, "missing api key")
				return
			}
			biz, err := lookup.GetBusinessByAPIKey(r.Context(), key)
			if err != nil || biz == nil {
				writeUnauthorized(w, "invalid api key")
				return
			}
			ctx := tenancy.WithBusinessID(r.Context(), biz.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
