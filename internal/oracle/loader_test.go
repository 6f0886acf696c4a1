package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"peerquiz/internal/domain"
)

func TestHTTPLoaderFetchesList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"q":"one","opts":["a"],"a":0},{"q":"two","opts":["b"],"a":0}]`))
	}))
	defer server.Close()

	entries, err := NewHTTPLoader(nil).LoadSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestHTTPLoaderRejectsNonListRoot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	if _, err := NewHTTPLoader(nil).LoadSource(context.Background(), server.URL); err != domain.ErrSourceFormat {
		t.Fatalf("expected source format error, got %v", err)
	}
}

func TestHTTPLoaderSurfacesTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewHTTPLoader(nil).LoadSource(context.Background(), server.URL); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}
