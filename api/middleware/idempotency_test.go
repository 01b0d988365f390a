package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/parcelhive/parcelhive-backend/pkg/errors"
)

type fakeReplayStore struct {
	data map[string]string
}

func newFakeReplayStore() *fakeReplayStore {
	return &fakeReplayStore{data: make(map[string]string)}
}

func (f *fakeReplayStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeReplayStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeReplayStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeReplayStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func orderSubmitRequest(body string) *http.Request {
	return requestWithPattern(http.MethodPost, "/api/v1/orders/", "/api/v1/orders/", strings.NewReader(body))
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"order submit", http.MethodPost, "/api/v1/orders/", criticalIdempotencyTTL, true},
		{"order cancel", http.MethodPost, "/api/v1/orders/{orderID}/cancel", criticalIdempotencyTTL, true},
		{"register", http.MethodPost, "/api/v1/auth/register", defaultIdempotencyTTL, true},
		{"shipper onboarding", http.MethodPost, "/api/admin/v1/shippers", defaultIdempotencyTTL, true},
		{"locker create", http.MethodPost, "/api/admin/v1/lockers/", defaultIdempotencyTTL, true},
		{"login is not replayed", http.MethodPost, "/api/v1/auth/login", 0, false},
		{"order read", http.MethodGet, "/api/v1/orders/", 0, false},
		{"cancel-ish path under another root", http.MethodPost, "/api/v1/tracking/{orderID}/cancel", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyRequiresKeyHeader(t *testing.T) {
	mw := Idempotency(newFakeReplayStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, orderSubmitRequest(`{"size":"M"}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler ran without an idempotency key")
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	mw := Idempotency(newFakeReplayStore(), nil)
	var submits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order_id":"b7a9"}`))
	})

	const payload = `{"size":"M","origin_locker_id":"l1","destination_locker_id":"l2"}`

	first := httptest.NewRecorder()
	req := orderSubmitRequest(payload)
	req.Header.Set("Idempotency-Key", "submit-20260829-001")
	mw(handler).ServeHTTP(first, req)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first submit 201 got %d", first.Code)
	}

	// The sender times out and retries the exact same submit. It must get
	// the original order back, not a second allocation.
	retry := orderSubmitRequest(payload)
	retry.Header.Set("Idempotency-Key", "submit-20260829-001")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, retry)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type replayed")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"order_id":"b7a9"}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if submits != 1 {
		t.Fatalf("handler executed %d times, expected 1", submits)
	}
}

func TestIdempotencyRejectsReusedKeyWithNewBody(t *testing.T) {
	mw := Idempotency(newFakeReplayStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := orderSubmitRequest(`{"size":"M"}`)
	req.Header.Set("Idempotency-Key", "submit-20260829-002")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	changed := orderSubmitRequest(`{"size":"L"}`)
	changed.Header.Set("Idempotency-Key", "submit-20260829-002")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, changed)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	store := newFakeReplayStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/auth/login", "/api/v1/auth/login", strings.NewReader(`{"email":"ops@parcelhive.dev"}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Fatalf("login should run every time, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("unlisted route wrote to the store: %v", store.data)
	}
}
