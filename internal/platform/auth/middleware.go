package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserEmailKey contextKey = "user_email"
	UserRolesKey contextKey = "user_roles"
)

// AdminID accepts the token's id claim as either a JSON number or a string.
// Tokens issued by the dashboard login carry numeric admin-table ids, older
// ones carry strings.
type AdminID string

func (id *AdminID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = AdminID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id claim must be a string or number: %w", err)
	}
	*id = AdminID(n.String())
	return nil
}

// Claims is the payload of an admin session token.
type Claims struct {
	jwt.RegisteredClaims
	AdminID AdminID `json:"id"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
}

// Identity is the authenticated caller as seen by handlers.
type Identity struct {
	ID    string
	Email string
	Role  string
}

type JWTConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey []byte
	// Issuer is checked when non-empty.
	Issuer string
}

// JWTMiddleware rejects requests without a valid HS256 bearer token and
// stores the caller identity on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), claims, keyFunc)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id := string(claims.AdminID)
			if id == "" {
				id = claims.Subject
			}

			c.Set("admin_id", id)
			c.Set("admin_email", claims.Email)

			ctx := WithIdentity(c.Request().Context(), Identity{ID: id, Email: claims.Email, Role: claims.Role})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// WithIdentity stores id on ctx the same way JWTMiddleware does.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.ID)
	ctx = context.WithValue(ctx, UserEmailKey, id.Email)
	var roles []string
	if id.Role != "" {
		roles = []string{id.Role}
	}
	return context.WithValue(ctx, UserRolesKey, roles)
}

func IdentityFromContext(ctx context.Context) Identity {
	id := Identity{ID: UserIDFromContext(ctx), Email: EmailFromContext(ctx)}
	if roles := RolesFromContext(ctx); len(roles) > 0 {
		id.Role = roles[0]
	}
	return id
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
