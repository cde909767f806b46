package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-postboard/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() config.Config {
	return config.Config{JWTSecret: "secret", ServerPort: ":0", MediaMaxBytes: 1024, AuthRatePerMinute: 2}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestPostsRequireToken(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["message"] == "" {
		t.Fatalf("expected json error body: %v", err)
	}
}

func TestAuthRateLimited(t *testing.T) {
	s := NewServer(testConfig(), nil, nil, nil)
	defer s.Close()

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("test request: %v", err)
		}
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MediaMaxBytes = 1
	s := NewServer(cfg, nil, nil, nil)
	defer s.Close()

	req := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader(make([]byte, multipartOverhead+2)))
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestServerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewServer(testConfig(), nil, client, nil)
	defer s.Close()
	if s.Stream == nil || s.Redis != client {
		t.Fatalf("expected stream hub wired to redis")
	}
}
