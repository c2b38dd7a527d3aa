package events

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueueInspector is the part of *asynq.Inspector the admin endpoints need
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	RunAllArchivedTasks(queue string) (int, error)
}

// QueueStats is the queue-stats response body
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
	Paused    bool   `json:"paused"`
}

// AdminHandler serves queue administration over HTTP
type AdminHandler struct {
	inspector QueueInspector
	logger    *zap.Logger
}

func NewAdminHandler(inspector QueueInspector, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{inspector: inspector, logger: logger}
}

// Routes mounts GET /queue-stats and POST /retry-failed
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/queue-stats", h.QueueStatsHandler)
	r.Post("/retry-failed", h.RetryFailedHandler)
	return r
}

// QueueStatsHandler reports the user-events queue counters
func (h *AdminHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.inspector.GetQueueInfo(QueueUserEvents)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		writeJSON(w, http.StatusOK, QueueStats{Queue: QueueUserEvents})
		return
	}
	if err != nil {
		h.logger.Error("failed to read queue info", zap.Error(err))
		http.Error(w, "failed to read queue info: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, QueueStats{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
	})
}

// RetryFailedHandler moves every archived task back to pending
func (h *AdminHandler) RetryFailedHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.inspector.RunAllArchivedTasks(QueueUserEvents)
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		h.logger.Error("failed to retry archived tasks", zap.Error(err))
		http.Error(w, "failed to retry archived tasks: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("archived tasks requeued", zap.Int("count", n))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue":   QueueUserEvents,
		"retried": n,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
