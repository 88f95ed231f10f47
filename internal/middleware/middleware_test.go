package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/issue-audit-api/internal/models"
	"github.com/noah-isme/issue-audit-api/internal/service"
	"github.com/noah-isme/issue-audit-api/pkg/middleware/requestid"
)

func newProtectedRouter(t *testing.T, tokens *service.TokenService, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	handlers := append([]gin.HandlerFunc{JWT(tokens)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		require.True(t, ok)
		meta := RequestMeta(c)
		c.JSON(http.StatusOK, gin.H{"actor": actor.Key(), "requestId": meta.RequestID, "ua": meta.UserAgent})
	})
	r.GET("/secure", handlers...)
	return r
}

func bearer(t *testing.T, tokens *service.TokenService, role models.UserRole) string {
	t.Helper()
	token, err := tokens.Sign("42", role, "Dana", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestJWTResolvesActor(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	r := newProtectedRouter(t, tokens)

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", bearer(t, tokens, models.RoleAdmin))
	req.Header.Set("User-Agent", "admin-ui/1.0")
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "admin:42", body["actor"])
	assert.Equal(t, "abc", body["requestId"])
	assert.Equal(t, "admin-ui/1.0", body["ua"])
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	r := newProtectedRouter(t, tokens)

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	}
}

func TestRequireAdminBlocksUsers(t *testing.T) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	r := newProtectedRouter(t, tokens, RequireAdmin())

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", bearer(t, tokens, models.RoleUser))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", bearer(t, tokens, models.RoleSuperAdmin))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseMetaCarriesCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c, time.Now()))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.NotEmpty(t, meta["request_id"])
}

func TestMetricsMiddlewareRecordsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/alerts/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts/7", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var routes []string
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "path" {
					routes = append(routes, label.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"/alerts/:id", "unmatched"}, routes)
}
