package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	translatev3 "google.golang.org/api/translate/v3"

	"github.com/lexiqai/caption-gateway/internal/resilience"
)

func newTestGoogleTranslator(t *testing.T, handler http.HandlerFunc) *GoogleTranslator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGoogleTranslator(context.Background(), GoogleOptions{
		ProjectID: "demo",
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
		},
	})
	if err != nil {
		t.Fatalf("NewGoogleTranslator() error = %v", err)
	}
	return g
}

func TestGoogleTranslator_Translate(t *testing.T) {
	var got translatev3.TranslateTextRequest
	g := newTestGoogleTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v3/projects/demo/locations/global:translateText") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[{"translatedText":"こんにちは世界"}]}`))
	})

	translated, err := g.Translate(context.Background(), "hello world", "ja")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if translated != "こんにちは世界" {
		t.Errorf("Translate() = %q, want %q", translated, "こんにちは世界")
	}

	if diff := cmp.Diff([]string{"hello world"}, got.Contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
	if got.TargetLanguageCode != "ja" || got.MimeType != "text/plain" {
		t.Errorf("request = %+v, want ja text/plain", got)
	}
}

func TestGoogleTranslator_EmptyResult(t *testing.T) {
	g := newTestGoogleTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[]}`))
	})

	_, err := g.Translate(context.Background(), "hello", "ja")
	if !errors.Is(err, ErrEmptyResult) {
		t.Errorf("error = %v, want ErrEmptyResult", err)
	}
}

func TestGoogleTranslator_APIError(t *testing.T) {
	g := newTestGoogleTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})

	_, err := g.Translate(context.Background(), "hello", "ja")

	var te *Error
	if !errors.As(err, &te) || te.Provider != "google" {
		t.Fatalf("error = %v, want *Error from google", err)
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		t.Errorf("error = %v, want googleapi 403", err)
	}
}

func TestGoogleTranslator_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestGoogleTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"code":400,"message":"bad target"}}`, http.StatusBadRequest)
	})

	retry := &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	r := NewResilient(g, nil, retry, time.Second)

	if _, err := r.Translate(context.Background(), "hello", "xx"); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGoogleTranslator_TransientErrorRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestGoogleTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"code":503,"message":"try later"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[{"translatedText":"やあ"}]}`))
	})

	retry := &resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	r := NewResilient(g, nil, retry, time.Second)

	translated, err := r.Translate(context.Background(), "hi", "ja")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if translated != "やあ" {
		t.Errorf("Translate() = %q, want %q", translated, "やあ")
	}
}

func TestNewGoogleTranslator_RequiresProject(t *testing.T) {
	if _, err := NewGoogleTranslator(context.Background(), GoogleOptions{}); err == nil {
		t.Error("expected error without project ID")
	}
}
