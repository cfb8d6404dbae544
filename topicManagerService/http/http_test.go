package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/registry"
	"github.com/busline/pubsubd/topicManagerService"
)

func testHandler() (*Handler, *chi.Mux) {
	cfg := &config.Config{
		IngressQueueCapacity: 100,
		RingBufferCapacity:   10,
		BatchSize:            5,
		BatchTimeout:         10 * time.Millisecond,
		SendDeadline:         500 * time.Millisecond,
	}
	m := metrics.NewMetrics()
	r := registry.New(cfg, m, zerolog.Nop())
	svc := topicManagerService.NewTopicManagerService(r, cfg, m)

	h := NewHandler(svc)
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return h, router
}

func TestHandler_CreateTopic(t *testing.T) {
	_, router := testHandler()

	body := strings.NewReader(`{"name":"orders"}`)
	req := httptest.NewRequest(http.MethodPost, "/topics/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_CreateTopic_Idempotent(t *testing.T) {
	_, router := testHandler()

	for i, wantStatus := range []int{http.StatusCreated, http.StatusOK} {
		body := strings.NewReader(`{"name":"orders"}`)
		req := httptest.NewRequest(http.MethodPost, "/topics/", body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != wantStatus {
			t.Errorf("request %d: expected %d, got %d", i, wantStatus, rec.Code)
		}
	}
}

func TestHandler_CreateTopic_InvalidName(t *testing.T) {
	_, router := testHandler()

	body := strings.NewReader(`{"name":"has a space"}`)
	req := httptest.NewRequest(http.MethodPost, "/topics/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_DeleteTopic(t *testing.T) {
	h, router := testHandler()
	h.topicManager.CreateTopic("orders")

	req := httptest.NewRequest(http.MethodDelete, "/topics/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_DeleteTopic_NotFound(t *testing.T) {
	_, router := testHandler()

	req := httptest.NewRequest(http.MethodDelete, "/topics/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ListTopics(t *testing.T) {
	h, router := testHandler()
	h.topicManager.CreateTopic("orders")

	req := httptest.NewRequest(http.MethodGet, "/topics/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	topics, ok := body["topics"].([]interface{})
	if !ok || len(topics) != 1 {
		t.Errorf("expected 1 topic in response, got %v", body["topics"])
	}
}

func TestHandler_Health(t *testing.T) {
	_, router := testHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_MetricsSnapshot(t *testing.T) {
	_, router := testHandler()

	req := httptest.NewRequest(http.MethodGet, "/metrics/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_RefusesMutationsWhileShuttingDown(t *testing.T) {
	cfg := &config.Config{
		IngressQueueCapacity: 100,
		RingBufferCapacity:   10,
		BatchSize:            5,
		BatchTimeout:         10 * time.Millisecond,
		SendDeadline:         500 * time.Millisecond,
	}
	m := metrics.NewMetrics()
	r := registry.New(cfg, m, zerolog.Nop())
	svc := topicManagerService.NewTopicManagerService(r, cfg, m)
	h := NewHandler(svc)
	router := chi.NewRouter()
	h.RegisterRoutes(router)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.ShutdownAll(ctx)

	body := strings.NewReader(`{"name":"orders"}`)
	req := httptest.NewRequest(http.MethodPost, "/topics/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while shutting down, got %d", rec.Code)
	}
}
