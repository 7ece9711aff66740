package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calderasec/lurelab/internal/tracking"
)

// TrackingHandler serves the unauthenticated endpoints reached from the
// simulated phishing emails. The only credential is the tracking token in
// the URL; responses for unknown and malformed tokens are identical.
type TrackingHandler struct {
	tracker   *tracking.Service
	templates *template.Template
	logger    *slog.Logger
}

func NewTrackingHandler(tracker *tracking.Service, templates *template.Template, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{tracker: tracker, templates: templates, logger: logger}
}

// openPixel is a 1x1 transparent GIF.
var openPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Click handles GET /t/{token}. The click is recorded, remediation training
// is assigned, and the reveal page is rendered.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	event, err := h.tracker.RecordClick(r.Context(), token)
	if err != nil {
		h.notFound(w)
		return
	}

	h.render(w, "phished.html", event)
}

// Open handles GET /t/{token}/open.gif. The pixel is returned no matter
// what so a mail scanner cannot distinguish live tokens from dead ones.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.tracker.RecordOpen(r.Context(), token); err != nil && err != tracking.ErrNotFound {
		h.logger.Warn("recording open failed", "error", err)
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(openPixel)
}

// Remediation handles POST /t/{token}/remediation.
func (h *TrackingHandler) Remediation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	acknowledged := r.FormValue("acknowledged") == "true" || r.FormValue("acknowledged") == "on"

	event, err := h.tracker.CompleteRemediation(r.Context(), token, acknowledged)
	if err != nil {
		switch err {
		case tracking.ErrNotAcknowledged:
			http.Error(w, "Acknowledgement is required", http.StatusBadRequest)
		case tracking.ErrNotAssigned:
			http.Error(w, "No remediation training is assigned", http.StatusConflict)
		default:
			h.notFound(w)
		}
		return
	}

	h.render(w, "remediation.html", event)
}

// Report handles POST /t/{token}/report.
func (h *TrackingHandler) Report(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	event, err := h.tracker.ReportPhish(r.Context(), token)
	if err != nil {
		h.notFound(w)
		return
	}

	h.render(w, "reported.html", event)
}

func (h *TrackingHandler) render(w http.ResponseWriter, name string, event *tracking.Event) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, event); err != nil {
		h.logger.Error("rendering tracking page failed", "template", name, "error", err)
	}
}

func (h *TrackingHandler) notFound(w http.ResponseWriter) {
	http.Error(w, "Not Found", http.StatusNotFound)
}
