package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audience"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/audit"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/dispatch"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/queue"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/service"
)

// Broadcasts is the broadcast lifecycle the handlers drive.
type Broadcasts interface {
	Preview(ctx context.Context, req service.Request) (service.Preview, error)
	Start(ctx context.Context, req service.Request) (dispatch.Snapshot, error)
	Current() (dispatch.Snapshot, error)
	Pause() (dispatch.Snapshot, error)
	Resume() (dispatch.Snapshot, error)
	Cancel() (dispatch.Snapshot, error)
	Discard() error
	ChannelStatus(ctx context.Context) service.ChannelStatus
	Subscribe(fn func(dispatch.Event)) (unsubscribe func())
}

type Handler struct {
	broadcasts     Broadcasts
	audit          *audit.Log
	now            func() time.Time
	allowedOrigins map[string]struct{}
}

func NewHandler(b Broadcasts, l *audit.Log) *Handler {
	return &Handler{broadcasts: b, audit: l, now: time.Now, allowedOrigins: map[string]struct{}{}}
}

// WithAllowedOrigins admits browser origins other than the API's own host,
// such as a dashboard served from another port.
func (h *Handler) WithAllowedOrigins(origins ...string) *Handler {
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			h.allowedOrigins[strings.ToLower(o)] = struct{}{}
		}
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) PreviewBroadcast(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	p, err := h.broadcasts.Preview(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) StartBroadcast(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	snap, err := h.broadcasts.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *Handler) CurrentBroadcast(w http.ResponseWriter, r *http.Request) {
	snap, err := h.broadcasts.Current()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) PauseBroadcast(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.broadcasts.Pause)
}

func (h *Handler) ResumeBroadcast(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.broadcasts.Resume)
}

func (h *Handler) CancelBroadcast(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.broadcasts.Cancel)
}

func (h *Handler) control(w http.ResponseWriter, op func() (dispatch.Snapshot, error)) {
	snap, err := op()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) DiscardBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := h.broadcasts.Discard(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	entries, err := h.audit.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	entries, err := h.audit.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.ExportFilename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if err := audit.WriteCSV(w, entries); err != nil {
		slog.Warn("audit export write failed", "err", err)
	}
}

func (h *Handler) ClearAudit(w http.ResponseWriter, r *http.Request) {
	if err := h.audit.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Channel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.broadcasts.ChannelStatus(r.Context()))
}

func auditFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	q := r.URL.Query()
	f := audit.Filter{
		RecipientID: q.Get("recipient"),
		BroadcastID: q.Get("broadcast"),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := model.ParseItemStatus(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return audit.Filter{}, false
		}
		f.Status = st
	}
	return f, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (service.Request, bool) {
	// Browsers send text/plain cross-origin without a preflight.
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "content type must be application/json"})
		return service.Request{}, false
	}

	var req service.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body: " + err.Error()})
		return service.Request{}, false
	}
	return req, true
}

func statusFor(err error) int {
	var te *model.TransitionError
	switch {
	case errors.Is(err, audience.ErrUnknownAudience),
		errors.Is(err, queue.ErrEmptyMessage),
		errors.Is(err, queue.ErrNoRecipients),
		errors.Is(err, dispatch.ErrNoValidRecipients),
		errors.Is(err, service.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoBroadcast):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBroadcastActive), errors.As(err, &te):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
