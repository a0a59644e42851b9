package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearch_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Subscription-Token"); got != "bs-test" {
			t.Errorf("unexpected token %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("unexpected query %q", got)
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"url":"https://go.dev","title":"Go","description":"desc only"},
			{"url":"https://pkg.go.dev","title":"Pkg","snippet":"has snippet","description":"ignored"}
		]}}`)
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, "bs-test")
	out, err := s.Search(context.Background(), SearchInput{Query: "golang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	// Description fills in when the snippet is absent.
	if out.Results[0].Snippet != "desc only" {
		t.Fatalf("unexpected snippet %q", out.Results[0].Snippet)
	}
	if out.Results[1].Snippet != "has snippet" {
		t.Fatalf("snippet must win over description, got %q", out.Results[1].Snippet)
	}
}

func TestWebSearch_Validation(t *testing.T) {
	s := NewWebSearcher("http://unused", "")
	if _, err := s.Search(context.Background(), SearchInput{Query: "x"}); err == nil {
		t.Fatalf("expected error without key")
	}

	s = NewWebSearcher("http://unused", "bs-test")
	if _, err := s.Search(context.Background(), SearchInput{Query: "  "}); err == nil {
		t.Fatalf("expected error for blank query")
	}
}

func TestWebSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, "bs-test")
	_, err := s.Search(context.Background(), SearchInput{Query: "x"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestImageGenerator_DataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"b64_json":"aGVsbG8="}]}`)
	}))
	defer srv.Close()

	g := NewImageGenerator(srv.URL, "sk-test")
	out, err := g.Generate(context.Background(), ImageInput{Prompt: "a gopher"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.URL != "data:image/png;base64,aGVsbG8=" {
		t.Fatalf("unexpected url %q", out.URL)
	}
	if out.MediaType != "image/png" {
		t.Fatalf("unexpected media type %q", out.MediaType)
	}
}

func TestImageGenerator_Validation(t *testing.T) {
	g := NewImageGenerator("http://unused", "")
	if _, err := g.Generate(context.Background(), ImageInput{Prompt: "x"}); err == nil {
		t.Fatalf("expected error without key")
	}

	g = NewImageGenerator("http://unused", "sk-test")
	if _, err := g.Generate(context.Background(), ImageInput{}); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}
