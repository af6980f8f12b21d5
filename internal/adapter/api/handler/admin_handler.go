package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

// DeliveryAdmin is the delivery adapter surface exposed to operators.
type DeliveryAdmin interface {
	Stats() sls.Stats
	Config() sls.Config
	UpdateConfig(p sls.ConfigPatch)
	RetryQueue() []sls.RetryItem
}

// PipelineStatus reports the tracking pipeline. *usecase.Manager implements it.
type PipelineStatus interface {
	Status() usecase.ManagerStatus
	Breadcrumbs() []usecase.Breadcrumb
}

// AdminHandler serves the operator endpoints of the collector.
type AdminHandler struct {
	delivery DeliveryAdmin
	pipeline PipelineStatus
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(delivery DeliveryAdmin, pipeline PipelineStatus, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{delivery: delivery, pipeline: pipeline, logger: logger}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStats returns delivery counters and pipeline state.
// GET /admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]any{
		"delivery": h.delivery.Stats(),
		"pipeline": h.pipeline.Status(),
	})
}

// configView is Config with the retry interval in milliseconds.
type configView struct {
	sls.Config
	RetryInterval   *struct{} `json:"retryInterval,omitempty"`
	RetryIntervalMs int64     `json:"retryIntervalMs"`
}

// GetConfig returns the delivery adapter configuration.
// GET /admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.delivery.Config()
	h.respondWithJSON(w, http.StatusOK, configView{Config: cfg, RetryIntervalMs: cfg.RetryInterval.Milliseconds()})
}

type configPatchRequest struct {
	Host            *string `json:"host"`
	Project         *string `json:"project"`
	Logstore        *string `json:"logstore"`
	Topic           *string `json:"topic"`
	Source          *string `json:"source"`
	Environment     *string `json:"environment"`
	Debug           *bool   `json:"debug"`
	Enabled         *bool   `json:"enabled"`
	UserID          *string `json:"userId"`
	AppName         *string `json:"appName"`
	AppVersion      *string `json:"appVersion"`
	RetryCount      *int    `json:"retryCount"`
	RetryIntervalMs *int64  `json:"retryIntervalMs"`
}

// PatchConfig applies a partial configuration update. Changes to the endpoint
// take effect for the next transport the adapter builds.
// PATCH /admin/config
func (h *AdminHandler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RetryCount != nil && *req.RetryCount < 0 {
		http.Error(w, "retryCount must not be negative", http.StatusBadRequest)
		return
	}
	if req.RetryIntervalMs != nil && *req.RetryIntervalMs <= 0 {
		http.Error(w, "retryIntervalMs must be a positive integer", http.StatusBadRequest)
		return
	}

	patch := sls.ConfigPatch{
		Host:        req.Host,
		Project:     req.Project,
		Logstore:    req.Logstore,
		Topic:       req.Topic,
		Source:      req.Source,
		Environment: req.Environment,
		Debug:       req.Debug,
		Enabled:     req.Enabled,
		UserID:      req.UserID,
		AppName:     req.AppName,
		AppVersion:  req.AppVersion,
		RetryCount:  req.RetryCount,
	}
	if req.RetryIntervalMs != nil {
		d := time.Duration(*req.RetryIntervalMs) * time.Millisecond
		patch.RetryInterval = &d
	}
	h.delivery.UpdateConfig(patch)
	h.logger.Info("delivery configuration updated")

	h.GetConfig(w, r)
}

// GetBreadcrumbs returns the breadcrumb trail.
// GET /admin/breadcrumbs
func (h *AdminHandler) GetBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.pipeline.Breadcrumbs())
}

type retryItemView struct {
	ID         string    `json:"id"`
	EventType  any       `json:"eventType"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retryCount"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// GetRetryQueue lists payloads waiting for a retry pass.
// GET /admin/retry-queue
func (h *AdminHandler) GetRetryQueue(w http.ResponseWriter, r *http.Request) {
	items := h.delivery.RetryQueue()
	out := make([]retryItemView, 0, len(items))
	for _, item := range items {
		v := retryItemView{
			ID:         item.ID,
			EventType:  item.Payload["eventType"],
			RetryCount: item.RetryCount,
			EnqueuedAt: item.EnqueuedAt,
		}
		if item.Err != nil {
			v.Error = item.Err.Error()
		}
		out = append(out, v)
	}
	h.respondWithJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
