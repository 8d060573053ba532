package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turnomed/scheduling-api/internal/config"
	"github.com/turnomed/scheduling-api/internal/model"
)

const (
	ctxKeyRole    = "role"
	ctxKeySubject = "subjectID"
)

// Claims is the token payload an upstream issuer mints: the subject is
// the doctor or patient id, the role decides which route group applies.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(cfg.Secret)}
}

// Authenticate verifies the bearer token and sets role and subject id in
// context. No credentials are checked here; the engine trusts the
// issuer.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		subject, err := uuid.Parse(claims.Subject)
		if err != nil {
			abortUnauthorized(c, "invalid token subject")
			return
		}

		c.Set(ctxKeyRole, claims.Role)
		c.Set(ctxKeySubject, subject)
		c.Next()
	}
}

// RequireRole gates a route group to one caller role.
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxKeyRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   gin.H{"code": http.StatusForbidden, "message": "insufficient role"},
			})
			return
		}
		c.Next()
	}
}

// Subject returns the authenticated caller id.
func Subject(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxKeySubject)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Role returns the authenticated caller role.
func Role(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

// Caller roles as minted by the token issuer.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// ActorFromRole maps a caller role to the ledger's updated_by enum.
func ActorFromRole(role string) model.Actor {
	switch role {
	case RoleDoctor:
		return model.ActorDoctor
	case RolePatient:
		return model.ActorPatient
	default:
		return model.ActorNone
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"code": http.StatusUnauthorized, "message": message},
	})
}
