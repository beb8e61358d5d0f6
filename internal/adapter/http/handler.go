package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/service"
)

type HLSService interface {
	Status(ctx context.Context, id string) (domain.MediaItem, error)
	Resubmit(ctx context.Context, id string) (service.SubmitResult, error)
	Inspect(id string) domain.HLSState
	LiveProgress(id string) (domain.ProgressRecord, bool)
	ClearLiveProgress(id string)
	Subscribe(id string) chan service.Event
	Unsubscribe(id string, ch chan service.Event)
	Ping(ctx context.Context) error
}

type Handlers struct {
	hlsSvc HLSService
	logger *slog.Logger
}

func NewHandlers(hlsSvc HLSService, log *slog.Logger) *Handlers {
	return &Handlers{hlsSvc: hlsSvc, logger: log}
}

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	MediaID string               `json:"media_id"`
	Result  service.SubmitResult `json:"result"`
}

type inspectResponse struct {
	MediaID string `json:"media_id"`
	domain.HLSState
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// mediaID reads and validates the {id} path value.
func mediaID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := domain.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid media id")
		return "", false
	}
	return id, true
}

func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mediaID(w, r)
		if !ok {
			return
		}

		item, err := h.hlsSvc.Status(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.logger, id, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func (h *Handlers) Resubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mediaID(w, r)
		if !ok {
			return
		}

		res, err := h.hlsSvc.Resubmit(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.logger, id, err)
			return
		}

		status := http.StatusAccepted
		switch res {
		case service.SubmitAlreadyActive, service.SubmitAlreadyQueued:
			status = http.StatusOK
		case service.SubmitQueueFull, service.SubmitStopped:
			w.Header().Set("Retry-After", "5")
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, submitResponse{MediaID: id, Result: res})
	}
}

func (h *Handlers) Inspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mediaID(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, inspectResponse{MediaID: id, HLSState: h.hlsSvc.Inspect(id)})
	}
}

func (h *Handlers) ClearProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mediaID(w, r)
		if !ok {
			return
		}
		h.hlsSvc.ClearLiveProgress(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.hlsSvc.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeStoreError(w http.ResponseWriter, log *slog.Logger, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "media not found")
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid media id")
	default:
		log.Error("media lookup failed", "media_id", logger.SanitizeForLog(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
