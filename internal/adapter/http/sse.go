package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/service"
)

const keepAliveInterval = 15 * time.Second

type SSEHandler struct {
	hlsSvc    HLSService
	logger    *slog.Logger
	keepAlive time.Duration
}

func NewSSEHandler(hlsSvc HLSService, log *slog.Logger) *SSEHandler {
	return &SSEHandler{hlsSvc: hlsSvc, logger: log, keepAlive: keepAliveInterval}
}

// sseWrite writes one event with a single-line JSON payload.
func sseWrite(w http.ResponseWriter, eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams the item's live record: the merged status first, then
// every published change, all as ProgressRecord payloads. The stream ends
// once the run is terminal or finalizing.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mediaID(w, r)
		if !ok {
			return
		}

		// Subscribe before reading the current state so no change is lost.
		ch := h.hlsSvc.Subscribe(id)
		defer h.hlsSvc.Unsubscribe(id, ch)

		item, err := h.hlsSvc.Status(r.Context(), id)
		if err != nil {
			writeStoreError(w, h.logger, id, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		current := item.Progress()
		_ = sseWrite(w, service.EventStatus, current)
		if isFinal(current) {
			return
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := sseWrite(w, event.Type, event.Record); err != nil {
					h.logger.Warn("sse encode failed", "error", err)
					return
				}
				if isFinal(event.Record) {
					return
				}
			}
		}
	}
}

// isFinal reports whether the run behind rec will publish nothing more. A
// finalizing record means the encoder already exited.
func isFinal(rec domain.ProgressRecord) bool {
	return rec.Status.IsTerminal() || rec.Step == domain.StepFinalizing
}
