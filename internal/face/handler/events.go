package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"faceledger/internal/face/capture"
	dErrors "faceledger/pkg/domain-errors"
	"faceledger/pkg/platform/httputil"
)

func (h *Handler) rememberEvents(handle capture.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handles[handle.SessionID] = handle
}

func (h *Handler) forgetEvents(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handles, sessionID)
}

// handleSessionEvents streams session events as server-sent events until the
// session ends or the client disconnects. One consumer per session; the
// channel is owned by whoever connects first.
func (h *Handler) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	h.mu.Lock()
	handle, ok := h.handles[sessionID]
	if ok {
		delete(h.handles, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found or already streaming"))
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-handle.Events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode session event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
