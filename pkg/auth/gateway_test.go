package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const gwSecret = "gateway-test-secret-0123"

func gatewayServer(t *testing.T, cfg GatewayConfig) *httptest.Server {
	t.Helper()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(Gateway(cfg)(inner))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatewayAllowsPublicPathsWithoutToken(t *testing.T) {
	srv := gatewayServer(t, GatewayConfig{JWTSecret: gwSecret})
	// the swagger UI fetches /openapi.yaml anonymously, so it rides along
	// with /docs in the public set
	for _, path := range []string{"/healthz", "/readyz", "/docs/", "/openapi.yaml"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, res.StatusCode)
		}
	}
}

func TestGatewayBlocksProtectedPaths(t *testing.T) {
	srv := gatewayServer(t, GatewayConfig{JWTSecret: gwSecret})

	res, _ := http.Get(srv.URL + "/todos")
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", res.StatusCode)
	}

	tok, err := IssueToken(gwSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/todos", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("with token: expected 200, got %d", res.StatusCode)
	}
	if got := res.Header.Get("X-User"); got != "user-1" {
		t.Fatalf("identity not injected: %q", got)
	}
}

func TestGatewayAcceptsQueryToken(t *testing.T) {
	srv := gatewayServer(t, GatewayConfig{JWTSecret: gwSecret})
	tok, _ := IssueToken(gwSecret, "user-1", time.Hour)

	res, err := http.Get(srv.URL + "/chat/stream?access_token=" + tok)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query token: expected 200, got %d", res.StatusCode)
	}
}

func TestGatewayCORS(t *testing.T) {
	srv := gatewayServer(t, GatewayConfig{
		JWTSecret:      gwSecret,
		AllowedOrigins: []string{"http://localhost:3000"},
	})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/todos", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", res.StatusCode)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing CORS header")
	}

	// unlisted origin gets no CORS headers
	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/todos", nil)
	req.Header.Set("Origin", "http://evil.example")
	res, _ = http.DefaultClient.Do(req)
	res.Body.Close()
	if res.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin should not be allowed")
	}
}

func TestGatewayRateLimitsPerCaller(t *testing.T) {
	srv := gatewayServer(t, GatewayConfig{JWTSecret: gwSecret, RPS: 0.001, Burst: 1})
	tok, _ := IssueToken(gwSecret, "user-1", time.Hour)

	status := func() int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/todos", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		res.Body.Close()
		return res.StatusCode
	}
	if got := status(); got != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", got)
	}
	if got := status(); got != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", got)
	}
}
