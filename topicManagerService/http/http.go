// Package http provides the control-plane HTTP handlers for topic
// management: create(name), delete(name), list(), stats(), metrics_snapshot().
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/busline/pubsubd/internals/registry"
	"github.com/busline/pubsubd/topicManagerService"
)

// Handler serves the control-plane REST surface.
type Handler struct {
	topicManager topicManagerService.TopicManager
	startTime    time.Time
}

// NewHandler creates an HTTP handler backed by the given topic manager.
func NewHandler(tm topicManagerService.TopicManager) *Handler {
	return &Handler{topicManager: tm, startTime: time.Now()}
}

// RegisterTopicManagerRoutes mounts the control-plane routes for tm on r.
func RegisterTopicManagerRoutes(r chi.Router, tm topicManagerService.TopicManager) {
	NewHandler(tm).RegisterRoutes(r)
}

// RegisterRoutes mounts every control-plane route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Route("/topics", func(r chi.Router) {
		r.Post("/", h.CreateTopic)
		r.Get("/", h.ListTopics)
		r.Delete("/{name}", h.DeleteTopic)
	})

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/metrics/snapshot", h.MetricsSnapshot)
	r.Handle("/metrics", promhttp.Handler())
}

// refuseIfShuttingDown writes 503 and returns true when the broker has begun
// graceful shutdown, per the spec's control-plane contract.
func (h *Handler) refuseIfShuttingDown(w http.ResponseWriter) bool {
	if !h.topicManager.IsShuttingDown() {
		return false
	}
	writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
	return true
}

type createTopicRequest struct {
	Name string `json:"name"`
}

// CreateTopic handles POST /topics. Returns 201 if created, 200 if the topic
// already existed (create is idempotent).
func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	if h.refuseIfShuttingDown(w) {
		return
	}

	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.topicManager.CreateTopic(req.Name)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidTopicName) {
			writeJSONError(w, http.StatusBadRequest, "invalid topic name")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"topic":   req.Name,
		"created": created,
	})
}

// DeleteTopic handles DELETE /topics/{name}. Returns 204 on success, 404 if
// the topic doesn't exist.
func (h *Handler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	if h.refuseIfShuttingDown(w) {
		return
	}

	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.topicManager.DeleteTopic(ctx, name); err != nil {
		if errors.Is(err, registry.ErrTopicNotFound) {
			writeJSONError(w, http.StatusNotFound, "topic not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTopics handles GET /topics.
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topics": h.topicManager.ListTopics(),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	topics := h.topicManager.ListTopics()
	totalSubscribers := 0
	for _, t := range topics {
		totalSubscribers += t.Subscribers
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"uptime_seconds":    time.Since(h.startTime).Seconds(),
		"topics_count":      len(topics),
		"total_subscribers": totalSubscribers,
		"shutting_down":     h.topicManager.IsShuttingDown(),
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	cpuPercent, rssBytes := h.topicManager.ProcessSnapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topics":    h.topicManager.Stats(),
		"timestamp": time.Now().Format(time.RFC3339),
		"process": map[string]interface{}{
			"cpu_percent": cpuPercent,
			"rss_bytes":   rssBytes,
		},
	})
}

// MetricsSnapshot handles GET /metrics/snapshot: the JSON view of engine
// metrics, distinct from the Prometheus exposition format served at /metrics.
func (h *Handler) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.topicManager.MetricsSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
