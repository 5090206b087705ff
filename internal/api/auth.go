package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
)

type actorKey struct{}

// Claims is the JWT payload issued by the auth service.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

// Authenticator verifies bearer tokens and stores the actor in the request
// context.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for actor valid for ttl
func (a *Authenticator) Issue(actor maintenance.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: actor.UserID,
		Role:   string(actor.Role),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify parses a token and returns its actor
func (a *Authenticator) Verify(tokenString string) (maintenance.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return maintenance.Actor{}, err
	}
	if !token.Valid || claims.UserID == "" {
		return maintenance.Actor{}, fmt.Errorf("invalid token")
	}
	return maintenance.Actor{UserID: claims.UserID, Role: maintenance.Role(claims.Role)}, nil
}

// Middleware rejects requests without a valid bearer token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respondMessage(w, http.StatusUnauthorized, "access token required")
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondMessage(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		actor, err := a.Verify(parts[1])
		if err != nil {
			respondMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns a context carrying actor
func WithActor(ctx context.Context, actor maintenance.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor of a request context
func ActorFrom(ctx context.Context) (maintenance.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(maintenance.Actor)
	return actor, ok
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...maintenance.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				respondMessage(w, http.StatusUnauthorized, "access token required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondMessage(w, http.StatusForbidden, "insufficient role")
		})
	}
}
