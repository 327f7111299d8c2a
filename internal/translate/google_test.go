package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGoogleTranslateSuccess(t *testing.T) {
	var gotBody googleRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if key := r.URL.Query().Get("key"); key != "test-key" {
			t.Errorf("expected api key in query, got %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"translations":[{"translatedText":"hola"}]}}`))
	}))
	defer ts.Close()

	g := NewGoogle(ts.URL, "test-key", 2*time.Second, zap.NewNop())
	got, err := g.Translate(context.Background(), "hello", "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != "hola" {
		t.Fatalf("expected hola, got %q", got)
	}
	if gotBody.Q != "hello" || gotBody.Target != "es" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestGoogleTranslateProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	g := NewGoogle(ts.URL, "k", 2*time.Second, zap.NewNop())
	if _, err := g.Translate(context.Background(), "hello", "es"); err == nil {
		t.Fatal("expected error on provider failure")
	}
}

func TestGoogleTranslateEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"translations":[]}}`))
	}))
	defer ts.Close()

	g := NewGoogle(ts.URL, "k", 2*time.Second, zap.NewNop())
	if _, err := g.Translate(context.Background(), "hello", "es"); err == nil {
		t.Fatal("expected error on empty translation list")
	}
}

func TestGoogleTranslateContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	g := NewGoogle(ts.URL, "k", 2*time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Translate(ctx, "hello", "es"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
