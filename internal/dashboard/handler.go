package dashboard

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionFunc extracts the officer session from a context.
type SessionFunc func(ctx context.Context) *model.Session

// CSRFFunc extracts the CSRF token from a context.
type CSRFFunc func(ctx context.Context) string

// OfficerFunc returns the API client acting for a bearer token.
type OfficerFunc func(token string) Officer

// Handler holds dependencies for dashboard route handlers. Every route
// expects a session in the request context.
type Handler struct {
	svc        *Service
	officer    OfficerFunc
	templates  *template.Template
	getSession SessionFunc
	getCSRF    CSRFFunc
	logger     *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, officer OfficerFunc, tmpl *template.Template, getSession SessionFunc, getCSRF CSRFFunc, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:        svc,
		officer:    officer,
		templates:  tmpl,
		getSession: getSession,
		getCSRF:    getCSRF,
		logger:     logger,
	}
}

// Routes registers the dashboard routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/dashboard", h.HandleInbox)
	r.Get("/dashboard/leads/{leadID}", h.HandleLead)
	r.Post("/dashboard/leads/{leadID}/action", h.HandleAction)
}

func (h *Handler) officerFor(r *http.Request) Officer {
	return h.officer(h.getSession(r.Context()).Token)
}

// HandleInbox renders the lead inbox.
func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	inbox, err := h.svc.Inbox(r.Context(), h.officerFor(r), q)
	if errors.Is(err, leadsapi.ErrUnauthorized) {
		http.Redirect(w, r, "/login?expired=1", http.StatusFound)
		return
	}
	data := map[string]any{"Query": q}
	if err != nil {
		h.logger.Warn("load inbox", zap.Error(err))
		data["Notice"] = Notice{Message: "Could not load leads. Try again shortly."}
		inbox = &Inbox{Query: q}
	}
	data["Inbox"] = inbox
	h.render(w, r, "dashboard.html", data)
}

// HandleLead renders one lead dossier.
func (h *Handler) HandleLead(w http.ResponseWriter, r *http.Request) {
	h.renderLead(w, r, nil)
}

// HandleAction performs a forward or reward action and re-renders the
// dossier with a notice.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	notice, err := h.svc.Act(r.Context(), h.officerFor(r), id,
		Action(r.PostFormValue("action")), r.PostFormValue("target_unit_id"))
	if errors.Is(err, leadsapi.ErrUnauthorized) {
		http.Redirect(w, r, "/login?expired=1", http.StatusFound)
		return
	}
	h.renderLead(w, r, &notice)
}

func (h *Handler) renderLead(w http.ResponseWriter, r *http.Request, notice *Notice) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Detail(r.Context(), h.officerFor(r), id)
	switch {
	case errors.Is(err, leadsapi.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		h.render(w, r, "lead_missing.html", nil)
		return
	case errors.Is(err, leadsapi.ErrUnauthorized):
		http.Redirect(w, r, "/login?expired=1", http.StatusFound)
		return
	case err != nil:
		h.logger.Error("load lead", zap.Int64("lead_id", id), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{"Detail": detail}
	if notice != nil {
		data["Notice"] = *notice
	}
	h.render(w, r, "dashboard_lead.html", data)
}

func leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "leadID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Lead not found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	data["Session"] = h.getSession(r.Context())
	data["CSRFToken"] = h.getCSRF(r.Context())

	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
