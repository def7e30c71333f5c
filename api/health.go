package api

import (
	"net/http"
	"time"

	"github.com/0xmhha/indexdb-go/index"
	"github.com/0xmhha/indexdb-go/storage"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Namespace string           `json:"namespace"`
	Storage   *ComponentHealth `json:"storage,omitempty"`
}

// ComponentHealth represents the health of a component
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Backend string `json:"backend,omitempty"`
	Latency string `json:"latency"`
}

// typedBackend is implemented by every storage.Backend
type typedBackend interface {
	Type() storage.BackendType
}

// checkStorageHealth probes the store with a point read of the collection prefix
func (s *Server) checkStorageHealth() *ComponentHealth {
	start := time.Now()
	_, err := s.store.Has(index.CountKeyPrefix(s.txs.Index().Namespace()))
	latency := time.Since(start)

	health := &ComponentHealth{
		Status:  StatusHealthy,
		Message: "storage is operational",
		Latency: latency.String(),
	}
	if backend, ok := s.store.(typedBackend); ok {
		health.Backend = string(backend.Type())
	}
	if err != nil {
		health.Status = StatusUnhealthy
		health.Message = err.Error()
	}
	return health
}

// handleHealth reports 503 when the store cannot be read
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   Version,
		Namespace: s.txs.Index().Namespace(),
		Storage:   s.checkStorageHealth(),
	}

	status := http.StatusOK
	if response.Storage.Status != StatusHealthy {
		response.Status = StatusUnhealthy
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
