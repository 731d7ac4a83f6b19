package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func tokenServer(t *testing.T, issued *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"access_token":"token1","token_type":"bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"token2","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTokenAndSetAuthHeader(t *testing.T) {
	var issued atomic.Int32
	srv := tokenServer(t, &issued)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL})

	token, err := client.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken returned error: %v", err)
	}
	if token != "token1" {
		t.Fatalf("unexpected token %s", token)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := client.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader returned error: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer token1" {
		t.Fatalf("Authorization header = %q", got)
	}
	if issued.Load() != 1 {
		t.Fatalf("token requested %d times, want 1", issued.Load())
	}
}

func TestHTTPClientRefreshesOnUnauthorized(t *testing.T) {
	var issued atomic.Int32
	tokens := tokenServer(t, &issued)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", TokenURL: tokens.URL}).HTTPClient(5 * time.Second)
	resp, err := client.Post(api.URL, "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if issued.Load() != 2 {
		t.Fatalf("token requested %d times, want 2", issued.Load())
	}
}

func TestConfValidate(t *testing.T) {
	if err := (Conf{}).Validate(); err != nil {
		t.Fatalf("disabled conf: %v", err)
	}
	if err := (Conf{TokenURL: "http://idp"}).Validate(); err == nil {
		t.Fatal("expected error without client credentials")
	}
}
