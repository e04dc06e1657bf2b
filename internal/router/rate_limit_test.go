package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByActor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/withdrawals", nil)
	c.Request.RemoteAddr = "1.2.3.4:5678"

	if key := KeyByActor(c); key != "1.2.3.4" {
		t.Fatalf("key without actor want 1.2.3.4 got %s", key)
	}
	c.Set("actor_id", uint(42))
	if key := KeyByActor(c); key != "actor:42" {
		t.Fatalf("key with actor want actor:42 got %s", key)
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  int64
		ok    bool
	}{
		{name: "int64", input: int64(10), want: 10, ok: true},
		{name: "int", input: int(11), want: 11, ok: true},
		{name: "float64", input: float64(13.9), want: 13, ok: true},
		{name: "string", input: "bad", want: 0, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInt64(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok want %v got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("value want %d got %d", tc.want, got)
			}
		})
	}
}

func TestParseWindowResult(t *testing.T) {
	count, ttl, ok := parseWindowResult([]interface{}{int64(3), int64(42)})
	if !ok || count != 3 || ttl != 42 {
		t.Fatalf("unexpected parse result: count=%d ttl=%d ok=%v", count, ttl, ok)
	}
	if _, _, ok := parseWindowResult([]interface{}{int64(1)}); ok {
		t.Fatalf("short result should not parse")
	}
	if _, _, ok := parseWindowResult("bad"); ok {
		t.Fatalf("non-slice result should not parse")
	}
	if _, _, ok := parseWindowResult([]interface{}{"x", int64(1)}); ok {
		t.Fatalf("non-integer count should not parse")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	if got := retryAfterSeconds(17, 60); got != 17 {
		t.Fatalf("ttl should win, got %d", got)
	}
	if got := retryAfterSeconds(-1, 60); got != 60 {
		t.Fatalf("missing ttl should fall back to window, got %d", got)
	}
	if got := retryAfterSeconds(0, 0); got != 1 {
		t.Fatalf("minimum wait should be 1, got %d", got)
	}
}
