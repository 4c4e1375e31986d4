package wordpress

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/choiwjun/blogflow/internal/retry"
	"github.com/choiwjun/blogflow/internal/service/publisher"
)

func noRetry() retry.Config {
	return retry.Config{MaxRetries: 0}
}

func fastRetry(maxRetries int) retry.Config {
	return retry.Config{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func credsFor(srv *httptest.Server) publisher.Credentials {
	return publisher.Credentials{
		BaseURL:     srv.URL,
		Username:    "admin",
		AccessToken: "apppass",
	}
}

func TestPublishMissingCredentialFields(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	p := New(zap.NewNop())

	cases := []struct {
		creds publisher.Credentials
		want  string
	}{
		{publisher.Credentials{}, "base URL"},
		{publisher.Credentials{BaseURL: srv.URL}, "username"},
		{publisher.Credentials{BaseURL: srv.URL, Username: "admin"}, "application password"},
	}

	for _, tc := range cases {
		result, err := p.Publish(context.Background(), publisher.PublishParams{Title: "t", Content: "c"}, tc.creds, noRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success || !strings.Contains(result.Error, tc.want) {
			t.Fatalf("expected %q error, got %+v", tc.want, result)
		}
	}

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("credential validation must not hit the network")
	}
}

func TestPublishSuccessDraftStatus(t *testing.T) {
	var gotAuth string
	var gotBody postRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":321,"link":"https://blog.example.com/?p=321","date_gmt":"2026-08-30T10:00:00","status":"draft"}`))
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.Publish(context.Background(), publisher.PublishParams{
		Title:      "T",
		Content:    "# H\n\n**b**",
		Category:   "7",
		Visibility: "draft",
	}, credsFor(srv), noRetry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.PostID != "321" || result.PostURL != "https://blog.example.com/?p=321" {
		t.Fatalf("response fields not extracted: %+v", result)
	}
	if result.PublishedAt == nil || result.PublishedAt.UTC().Hour() != 10 {
		t.Fatalf("date_gmt not parsed: %v", result.PublishedAt)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:apppass"))
	if gotAuth != wantAuth {
		t.Errorf("basic auth header mismatch: %q", gotAuth)
	}
	if gotBody.Status != statusDraft {
		t.Errorf("draft visibility should map to status %q, got %q", statusDraft, gotBody.Status)
	}
	if len(gotBody.Categories) != 1 || gotBody.Categories[0] != 7 {
		t.Errorf("category not mapped to term id: %+v", gotBody.Categories)
	}
	if !strings.Contains(gotBody.Content, "<h1>H</h1>") || !strings.Contains(gotBody.Content, "<strong>b</strong>") {
		t.Errorf("content not converted to markup: %q", gotBody.Content)
	}
}

func TestPublishResolvesTags(t *testing.T) {
	var gotBody postRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wp/v2/tags", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		switch req["name"] {
		case "new":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":11,"name":"new"}`))
		case "existing":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"term_exists","message":"A term with the name provided already exists.","data":{"status":400,"term_id":22}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1,"link":"l","date_gmt":"2026-08-30T10:00:00","status":"publish"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.Publish(context.Background(), publisher.PublishParams{
		Title:      "t",
		Content:    "c",
		Tags:       []string{"new", "existing", "broken"},
		Visibility: "public",
	}, credsFor(srv), noRetry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("tag resolution failure must not fail the publish: %+v", result)
	}
	if len(gotBody.Tags) != 2 || gotBody.Tags[0] != 11 || gotBody.Tags[1] != 22 {
		t.Fatalf("expected resolved term ids [11 22], got %+v", gotBody.Tags)
	}
	if gotBody.Status != statusPublish {
		t.Fatalf("public visibility should map to %q, got %q", statusPublish, gotBody.Status)
	}
}

func TestPublishClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"rest_cannot_create","message":"Sorry, you are not allowed to create posts."}`))
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.Publish(context.Background(), publisher.PublishParams{Title: "t", Content: "c"}, credsFor(srv), fastRetry(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "not allowed to create posts") {
		t.Fatalf("platform message not surfaced: %q", result.Error)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
}

func TestPublishRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":5,"link":"l","date_gmt":"2026-08-30T10:00:00","status":"publish"}`))
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.Publish(context.Background(), publisher.PublishParams{Title: "t", Content: "c"}, credsFor(srv), fastRetry(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after retry: %+v", result)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestUpdateTargetsExistingPost(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"id":321,"link":"l","date_gmt":"2026-08-30T10:00:00","status":"publish"}`))
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.Update(context.Background(), "321", publisher.PublishParams{Title: "t", Content: "c"}, credsFor(srv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if path != "/wp-json/wp/v2/posts/321" {
		t.Fatalf("expected update endpoint, got %s", path)
	}
}

func TestListCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/categories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"id":1,"name":"Uncategorized"},{"id":4,"name":"Dev"}]`))
	}))
	defer srv.Close()

	p := New(zap.NewNop())
	result, err := p.ListCategories(context.Background(), credsFor(srv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || len(result.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", result)
	}
	if result.Categories[1].ID != "4" || result.Categories[1].Name != "Dev" {
		t.Fatalf("category not mapped: %+v", result.Categories[1])
	}
}
