package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsEngine(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins))
	r.GET("/api/v1/health", func(c *gin.Context) { c.String(http.StatusOK, "handled") })
	r.POST("/api/v1/verifications", func(c *gin.Context) { c.String(http.StatusCreated, "handled") })
	return r
}

func corsRequest(r *gin.Engine, method, path, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowAll(t *testing.T) {
	r := corsEngine([]string{"*"})

	t.Run("preflight", func(t *testing.T) {
		w := corsRequest(r, http.MethodOptions, "/api/v1/verifications", "https://client.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("simple request", func(t *testing.T) {
		w := corsRequest(r, http.MethodGet, "/api/v1/health", "https://client.example")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "handled", w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("same origin", func(t *testing.T) {
		w := corsRequest(r, http.MethodGet, "/api/v1/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORS_AllowList(t *testing.T) {
	r := corsEngine([]string{"https://a.example"})

	w := corsRequest(r, http.MethodPost, "/api/v1/verifications", "https://a.example")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = corsRequest(r, http.MethodPost, "/api/v1/verifications", "https://evil.example")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Disabled(t *testing.T) {
	r := corsEngine(nil)

	w := corsRequest(r, http.MethodGet, "/api/v1/health", "https://client.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
