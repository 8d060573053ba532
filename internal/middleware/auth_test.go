package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnomed/scheduling-api/internal/config"
	"github.com/turnomed/scheduling-api/internal/middleware"
	"github.com/turnomed/scheduling-api/internal/model"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject uuid.UUID, role string, secret string) string {
	t.Helper()

	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestEngine(role string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	auth := middleware.NewAuthMiddleware(config.JWTConfig{Secret: testSecret})
	engine := gin.New()

	group := engine.Group("/", auth.Authenticate())
	if role != "" {
		group.Use(auth.RequireRole(role))
	}
	group.GET("/whoami", func(c *gin.Context) {
		id, ok := middleware.Subject(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": id.String(), "role": middleware.Role(c)})
	})

	return engine
}

func doRequest(engine *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	engine := newTestEngine("")
	subject := uuid.New()

	w := doRequest(engine, "Bearer "+signToken(t, subject, middleware.RolePatient, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), subject.String())
	assert.Contains(t, w.Body.String(), middleware.RolePatient)
}

func TestAuthenticateRejections(t *testing.T) {
	engine := newTestEngine("")
	subject := uuid.New()

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
		"wrong secret":   "Bearer " + signToken(t, subject, middleware.RolePatient, "other-secret"),
		"bad subject":    "Bearer " + badSubjectToken(t),
	}

	for name, header := range cases {
		w := doRequest(engine, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func badSubjectToken(t *testing.T) string {
	t.Helper()

	claims := middleware.Claims{
		Role: middleware.RolePatient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestRequireRole(t *testing.T) {
	engine := newTestEngine(middleware.RoleDoctor)

	w := doRequest(engine, "Bearer "+signToken(t, uuid.New(), middleware.RoleDoctor, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(engine, "Bearer "+signToken(t, uuid.New(), middleware.RolePatient, testSecret))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestActorFromRole(t *testing.T) {
	assert.Equal(t, model.ActorDoctor, middleware.ActorFromRole(middleware.RoleDoctor))
	assert.Equal(t, model.ActorPatient, middleware.ActorFromRole(middleware.RolePatient))
	assert.Equal(t, model.ActorNone, middleware.ActorFromRole("admin"))
}
