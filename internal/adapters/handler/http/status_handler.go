package http

import (
	"encoding/json"
	"net/http"

	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

type StatusHandler struct {
	service ports.WorkerService
}

func NewStatusHandler(service ports.WorkerService) *StatusHandler {
	return &StatusHandler{
		service: service,
	}
}

type statusResponse struct {
	WorkerID string `json:"worker_id"`
	Queue    string `json:"queue"`
	Store    string `json:"store"`
}

// GetStatus answers 200 when both the queue and the store are connected and
// 503 otherwise.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()

	code := http.StatusOK
	if status.Queue != domain.Connected || status.Store != domain.Connected {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(statusResponse{
		WorkerID: status.WorkerID,
		Queue:    status.Queue.String(),
		Store:    status.Store.String(),
	})
}
