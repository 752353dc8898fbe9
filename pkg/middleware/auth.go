package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shaamilshan/hamme/pkg/jwt"
	pkglog "github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/response"
)

const (
	UserIDKey     = pkglog.FieldUserID
	EmailKey      = pkglog.FieldEmail
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// TokenValidator validates access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates JWT access tokens issued by pkg/jwt.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return m.require(false)
}

// RequireAuthOrQuery is RequireAuth that also accepts ?token=, for clients
// such as browser WebSockets that cannot set headers.
func (m *AuthMiddleware) RequireAuthOrQuery() gin.HandlerFunc {
	return m.require(true)
}

func (m *AuthMiddleware) require(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c, allowQuery)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		claims, err := m.validator.ValidateAccessToken(token)
		if err != nil {
			response.Unauthorized(c, tokenErrorMessage(err))
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise continues anonymously.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c, false)
		if err == nil {
			if claims, err := m.validator.ValidateAccessToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(EmailKey, claims.Email)
	c.Set(ClaimsKey, claims)
	c.Request = c.Request.WithContext(pkglog.WithUser(c.Request.Context(), claims.UserID))
}

var (
	errMissingHeader = errors.New("missing authorization header")
	errBadFormat     = errors.New("invalid authorization format")
)

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	header := c.GetHeader(AuthHeaderKey)
	if header == "" {
		if allowQuery {
			if t := c.Query(TokenQueryKey); t != "" {
				return t, nil
			}
		}
		return "", errMissingHeader
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", errBadFormat
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return "", errBadFormat
	}
	return token, nil
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return "token has expired"
	case errors.Is(err, jwt.ErrRevokedToken):
		return "token has been revoked"
	default:
		return "invalid token"
	}
}

// GetUserID extracts the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetEmail extracts the authenticated email from the Gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(EmailKey)
}

// GetClaims returns the validated token claims, or nil for anonymous requests.
func GetClaims(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}
