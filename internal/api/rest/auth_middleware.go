package rest

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bidhaus/auction-backend/internal/domain/account"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
)

// Claims is the JWT payload carried by API tokens
type Claims struct {
	jwt.RegisteredClaims
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Roles    []string  `json:"roles"`
}

// AuthConfig configures token signing and validation
type AuthConfig struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
	Issuer      string
}

// AuthMiddleware validates bearer tokens and injects the caller identity
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware creates the JWT auth middleware
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{config: config}
}

// Middleware authenticates requests. Requests without a valid bearer token
// are rejected; handlers read the caller through ActorFromContext.
func (a *AuthMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			claims, err := a.validateToken(token)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			actor := auctionsvc.Actor{
				ID:    claims.UserID,
				Admin: slices.Contains(claims.Roles, account.RoleAdmin.String()),
			}
			ctx := context.WithValue(r.Context(), contextKeyActor, actor)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GenerateToken issues a signed token for an account
func (a *AuthMiddleware) GenerateToken(acct *account.Account) (string, error) {
	now := time.Now()

	roles := make([]string, len(acct.Roles))
	for i, role := range acct.Roles {
		roles[i] = role.String()
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID.String(),
			Issuer:    a.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID:   acct.ID,
		Username: acct.Username,
		Roles:    roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.config.JWTSecret)
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.config.JWTSecret, nil
	}, jwt.WithIssuer(a.config.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token has no user id")
	}
	return claims, nil
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization format")
	}
	return parts[1], nil
}

// ActorFromContext returns the authenticated caller, if any
func ActorFromContext(ctx context.Context) (auctionsvc.Actor, bool) {
	actor, ok := ctx.Value(contextKeyActor).(auctionsvc.Actor)
	return actor, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":{"code":"UNAUTHORIZED","message":"%s"}}`, message)
}
