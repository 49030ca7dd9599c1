package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	mu         sync.Mutex
	statuses   []int
	suspicious int
}

func (o *recordingObserver) ObserveRequest(status int, latency time.Duration) {
	o.mu.Lock()
	o.statuses = append(o.statuses, status)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveSuspicious() {
	o.mu.Lock()
	o.suspicious++
	o.mu.Unlock()
}

func TestIsSuspicious(t *testing.T) {
	for _, target := range []string{
		"/api/../../etc/passwd",
		"/search?q=%3Cscript%3Ealert(1)%3C/script%3E",
		"/api/orders?id=1%20UNION%20SELECT%20password",
		"/.env",
		"/wp-admin/install.php",
		"/.git/config",
	} {
		assert.True(t, IsSuspicious(target), target)
	}
	for _, target := range []string{"/api/alerts/active", "/api/rules/failed-logins/enabled", "/healthz"} {
		assert.False(t, IsSuspicious(target), target)
	}
}

func TestLogger_FeedsObserver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Logger(obs), Recovery())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { panic("forno explodiu") })

	for _, path := range []string{"/ok", "/boom", "/.env"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusInternalServerError, http.StatusNotFound}, obs.statuses)
	assert.Equal(t, 1, obs.suspicious)
}

func TestCORS_SpecificOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(&CORSConfig{AllowOrigins: []string{"https://painel.pizzaria.local"}, AllowMethods: []string{"GET"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://painel.pizzaria.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://painel.pizzaria.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireRole_WithoutAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
