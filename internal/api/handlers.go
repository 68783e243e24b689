package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/livecap/internal/config"
	"github.com/yegors/livecap/internal/session"
	"github.com/yegors/livecap/internal/storage/sqlite"
	"github.com/yegors/livecap/internal/transcript"
	"github.com/yegors/livecap/internal/websocket"
	"github.com/yegors/livecap/pkg/logger"
)

const stopTimeout = 30 * time.Second

// Handler contains the HTTP handlers for the caption API
type Handler struct {
	session    *session.Session
	reconciler *transcript.Reconciler
	storage    *sqlite.TranscriptStorage
	wsServer   *websocket.Server
	config     *config.Config
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(sess *session.Session, reconciler *transcript.Reconciler, storage *sqlite.TranscriptStorage, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		session:    sess,
		reconciler: reconciler,
		storage:    storage,
		wsServer:   wsServer,
		config:     config,
		logger:     logger.Named("api-handler"),
	}
}

// GetTranscripts returns the transcript log, honoring the hide-before
// cutoff so cleared captions stay off the display while remaining in
// the persisted log.
func (h *Handler) GetTranscripts(w http.ResponseWriter, r *http.Request) {
	cutoff, err := h.storage.GetHideBefore()
	if err != nil {
		h.logger.Error("Failed to read hide-before cutoff", logger.Error(err))
	}

	entries := h.reconciler.Snapshot()
	if !cutoff.IsZero() {
		visible := make([]transcript.Entry, 0, len(entries))
		for _, e := range entries {
			if !e.Timestamp.Before(cutoff) {
				visible = append(visible, e)
			}
		}
		entries = visible
	}

	if max := h.config.Reconciler.DisplayMaxItems; max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ExportTranscripts streams the full log as a download: the versioned
// JSON record by default, or timestamped lines with format=text.
func (h *Handler) ExportTranscripts(w http.ResponseWriter, r *http.Request) {
	stamp := time.Now().UTC().Format("20060102-150405")

	if r.URL.Query().Get("format") == "text" {
		var b strings.Builder
		for _, e := range h.reconciler.Snapshot() {
			prefix := ""
			if e.IsTranslation {
				prefix = "  -> "
			}
			b.WriteString("[" + e.Timestamp.Local().Format("15:04:05") + "] " + prefix + e.Text + "\n")
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"transcript-"+stamp+".txt\"")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, b.String())
		return
	}

	data, err := sqlite.ExportRecord(h.reconciler.Snapshot())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to export transcript")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"transcript-"+stamp+".json\"")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportTranscripts replaces the in-memory log with an uploaded record.
// Both the versioned format and the legacy bare array are accepted.
func (h *Handler) ImportTranscripts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	entries := sqlite.ImportRecord(body)
	if entries == nil {
		h.respondError(w, http.StatusBadRequest, "unrecognized transcript record")
		return
	}

	h.reconciler.Restore(entries)
	if err := h.storage.SaveAll(entries); err != nil {
		h.logger.Error("Failed to persist imported transcript", logger.Error(err))
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"imported": len(entries),
	})
}

// ClearTranscripts hides the current captions without touching the
// persisted log. New entries accepted after the cutoff still display.
func (h *Handler) ClearTranscripts(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if err := h.storage.SetHideBefore(now); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to set display cutoff")
		return
	}

	h.wsServer.Broadcast(&websocket.Message{
		Type: "transcriptions_cleared",
		Data: map[string]interface{}{"hide_before": now.Format(time.RFC3339Nano)},
	})
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"hide_before": now.Format(time.RFC3339Nano),
	})
}

// DeleteTranscripts wipes the persisted log and resets the in-memory
// state, unlike ClearTranscripts which only hides the display.
func (h *Handler) DeleteTranscripts(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Clear(); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to clear transcript log")
		return
	}
	h.reconciler.Restore(nil)

	h.wsServer.Broadcast(&websocket.Message{Type: "transcriptions_deleted"})
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

// StartSession connects the capture source and begins transcribing.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(); err != nil {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"running": true})
}

// StopSession drains in-flight work and stops the pipeline.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	if err := h.session.Stop(ctx); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"running": false})
}

// GetSessionStatus reports whether the pipeline is running.
func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.session.Running(),
		"entries": h.reconciler.Len(),
	})
}

// GetHealth returns service health information.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"running":    h.session.Running(),
		"ws_clients": h.wsServer.ClientCount(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// GetConfig returns the client-relevant configuration. Credentials
// never leave the server.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"primary_language":     h.config.Transcription.PrimaryLanguage,
		"secondary_language":   h.config.Transcription.SecondaryLanguage,
		"active_language_mode": h.config.Transcription.ActiveLanguageMode,
		"enrichment_enabled":   h.config.Enrichment.Enabled,
		"segment_duration_sec": h.config.Segmenter.SegmentDurationSec,
		"overlap_duration_sec": h.config.Segmenter.OverlapDurationSec,
	})
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleWS(w, r)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{"error": message})
}
