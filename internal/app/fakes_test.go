package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"nbpress/internal/config"
	"nbpress/internal/contents"
	"nbpress/internal/prefs"
	"nbpress/internal/store"
)

const blogNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": ["PostId: 2018-08-18-123456\n", "Title: Hello"]},
  {"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": ["print(1)"]}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 2
}`

const ebookNotebook = `{
 "cells": [
  {"cell_type": "markdown", "metadata": {}, "source": "GithubUrl: https://github.com/alice/book\nFileName: ch1.ipynb"},
  {"cell_type": "code", "execution_count": 1, "metadata": {}, "outputs": [], "source": "1 + 1"}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 2
}`

// fakeContentsAPI records writes and answers every read with 404.
type fakeContentsAPI struct {
	mu        sync.Mutex
	token     string
	puts      []string
	putStatus int
	verified  []string
}

func (f *fakeContentsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "token "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		return
	}
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/contents/"):
		f.verified = append(f.verified, r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte(`[]`))
	case r.Method == http.MethodGet:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.puts = append(f.puts, r.URL.Path)
		status := f.putStatus
		if status == 0 {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeContentsAPI) putPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

type fakeHistory struct {
	mu       sync.Mutex
	attempts []store.Attempt
	pingErr  error
}

func (f *fakeHistory) RecordAttempt(_ context.Context, attempt store.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeHistory) ListAttempts(_ context.Context, documentID string, limit int) ([]store.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Attempt
	for i := len(f.attempts) - 1; i >= 0; i-- {
		if f.attempts[i].DocumentID == documentID {
			out = append(out, f.attempts[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHistory) GetAttempt(_ context.Context, id string) (store.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return store.Attempt{}, store.ErrNotFound
}

func (f *fakeHistory) Ping(context.Context) error {
	return f.pingErr
}

var errPingFailed = errors.New("connection refused")

type testEnv struct {
	api     *fakeContentsAPI
	history *fakeHistory
	prefs   *prefs.RedisStore
	service *Service
}

func testConfig(apiURL string) config.Config {
	return config.Config{
		APIBaseURL:    apiURL,
		Branch:        "MeatPieDay",
		BlogDir:       "ipynb",
		CommitMessage: "Put from nbpress",
		ChunkLimit:    700 * 1024,
		Stagger:       0,
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	api := &fakeContentsAPI{token: "good-token"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	prefStore, err := prefs.NewRedisStoreWithClient(client, "test-secret")
	if err != nil {
		t.Fatalf("NewRedisStoreWithClient() error = %v", err)
	}

	history := &fakeHistory{}
	cfg := testConfig(srv.URL)
	deps := Deps{
		Contents: contents.NewClient(contents.Config{BaseURL: srv.URL}),
		Prefs:    prefStore,
		History:  history,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	svc := New(cfg, deps)
	svc.now = func() time.Time { return time.Date(2018, 8, 18, 12, 34, 56, 0, time.UTC) }
	return &testEnv{api: api, history: history, prefs: prefStore, service: svc}
}
