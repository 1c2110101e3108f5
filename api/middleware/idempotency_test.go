package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/backoffice/api/validators"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

const moderationPath = "/api/admin/v1/users/7d9f6a52-1c1e-4a59-9a51-0b3c4c0f3f10/moderation"

func moderationPost(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, moderationPath, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	handlerCalled := false
	handler := Idempotency(newFakeStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	for _, key := range []string{"", "   ", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, moderationPost(key, `{"action":"APPROVE"}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("key %q: expected 400 got %d", key, rec.Code)
		}
	}
	if handlerCalled {
		t.Fatalf("handler should not run without a usable idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, moderationPost("abc", `{"action":"APPROVE"}`))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", first.Code)
	}
	if first.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("first response must not be marked as a replay")
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, moderationPost("abc", `{"action":"APPROVE"}`))
	if replay.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if replay.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("expected replay marker header")
	}
	if strings.TrimSpace(replay.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("expected ttl 1h on %s, got %v", key, ttl)
		}
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	handler := Idempotency(newFakeStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), moderationPost("xyz", `{"action":"APPROVE"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, moderationPost("xyz", `{"action":"BAN"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	finish := make(chan struct{})
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-finish
		w.WriteHeader(http.StatusOK)
	}))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, moderationPost("dup", `{"action":"APPROVE"}`))
		done <- rec.Code
	}()
	<-entered

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, moderationPost("dup", `{"action":"APPROVE"}`))
	close(finish)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", rec.Code)
	}
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, moderationPost("retry", `{}`))
	if first.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", first.Code)
	}
	if store.size() != 0 {
		t.Fatalf("expected key released after server error")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, moderationPost("retry", `{}`))
	if second.Code != http.StatusOK || calls != 2 {
		t.Fatalf("expected retry to run the handler again, code=%d calls=%d", second.Code, calls)
	}
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() { _ = recover() }()
		handler.ServeHTTP(httptest.NewRecorder(), moderationPost("panic", `{}`))
	}()
	if store.size() != 0 {
		t.Fatalf("expected key released after panic")
	}
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, moderationPath, nil))
	if rec.Code != http.StatusOK || store.size() != 0 {
		t.Fatalf("reads should pass through untouched, code=%d stored=%d", rec.Code, store.size())
	}
}

func TestIdempotencyRejectsOversizedBody(t *testing.T) {
	store := newFakeStore()
	handlerCalled := false
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	body := `{"action":"REJECT","reason":"` + strings.Repeat("x", validators.MaxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, moderationPost("big", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %s", got)
	}
	if handlerCalled {
		t.Fatalf("handler should not run for an oversized body")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.data) != 0 {
		t.Fatalf("oversized body must not reserve a key, store has %d entries", len(store.data))
	}
}
