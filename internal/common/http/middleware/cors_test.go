package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonmw "safevoice/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	allowed := commonmw.CORSConfig{
		AllowedOrigins: []string{"https://portal.example.edu/"},
		MaxAge:         10 * time.Minute,
	}

	cases := []struct {
		name        string
		config      commonmw.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{
			name:       "disabled",
			config:     commonmw.CORSConfig{},
			method:     http.MethodGet,
			origin:     "https://portal.example.edu",
			wantStatus: http.StatusOK,
		},
		{
			name:        "allowed preflight",
			config:      allowed,
			method:      http.MethodOptions,
			origin:      "https://portal.example.edu",
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "https://portal.example.edu",
			wantMethods: true,
		},
		{
			name:       "allowed request",
			config:     allowed,
			method:     http.MethodGet,
			origin:     "https://PORTAL.example.edu",
			wantStatus: http.StatusOK,
			wantOrigin: "https://PORTAL.example.edu",
		},
		{
			name:       "blocked preflight",
			config:     allowed,
			method:     http.MethodOptions,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "blocked request passes without headers",
			config:     allowed,
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard",
			config:     commonmw.CORSConfig{AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://anywhere.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(commonmw.CORSMiddleware(tc.config))
			router.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tc.method, "/resource", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tc.wantMethods {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
				assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
