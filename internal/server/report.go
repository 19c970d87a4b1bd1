package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/track"
	"github.com/citizenintel/portal/internal/wizard"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	quickReportTitle    = "Quick Report from Home"
	quickReportCategory = "1"
	uploadMemory        = 32 << 20
	evidenceField       = "evidence"
)

// prefillKeys are the query parameters that start a fresh, prefilled draft.
var prefillKeys = []string{"mode", "title", "ref", "new"}

// HandleReport renders the wizard at its current step, or the receipt once
// the report was submitted. A link carrying prefill parameters starts a new
// draft unless a submission is still in flight.
func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	v := visitorFromContext(r.Context())
	q := r.URL.Query()
	wz := v.Wizard()
	for _, k := range prefillKeys {
		if q.Has(k) {
			var fresh bool
			if wz, fresh = v.resetWizard(s.newWizard); fresh {
				wz.Prefill(q)
			}
			break
		}
	}
	s.renderReport(w, r, wz, http.StatusOK, "")
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, wz *wizard.Wizard, status int, errMsg string) {
	view := wz.View()
	if view.Step == wizard.StepSubmitted {
		w.WriteHeader(status)
		s.render(w, r, "report_done.html", map[string]any{"Result": view.Result})
		return
	}

	var warnings []wizard.Warning
	for _, warn := range wz.Validate() {
		if warn.Step == view.Step {
			warnings = append(warnings, warn)
		}
	}
	h, fallbackUnits := s.units.Hierarchy(r.Context())

	w.WriteHeader(status)
	s.render(w, r, "report.html", map[string]any{
		"View":          view,
		"Warnings":      warnings,
		"Error":         errMsg,
		"Units":         h.Flatten(),
		"FallbackUnits": fallbackUnits,
		"Categories":    feed.Categories,
		"Steps":         []wizard.Step{wizard.StepIdentity, wizard.StepLocation, wizard.StepDetails, wizard.StepEvidence},
		"MaxFileSize":   wizard.MaxFileSize,
	})
}

// HandleReportStep saves the fields posted for the current step and moves
// forward or back according to the nav field.
func (s *Server) HandleReportStep(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	wz := visitorFromContext(r.Context()).Wizard()

	err := wz.Edit(func(d *wizard.Details) { applyDetails(d, r.PostForm) })
	if errors.Is(err, wizard.ErrSubmitInFlight) {
		s.renderReport(w, r, wz, http.StatusConflict, "Your report is being submitted.")
		return
	}

	switch r.PostFormValue("nav") {
	case "next":
		wz.Next()
	case "back":
		wz.Back()
	}
	http.Redirect(w, r, "/report", http.StatusSeeOther)
}

// applyDetails copies the draft fields present in form onto d.
func applyDetails(d *wizard.Details, form map[string][]string) {
	set := func(key string, dst *string) {
		if v, ok := form[key]; ok && len(v) > 0 {
			*dst = strings.TrimSpace(v[0])
		}
	}
	if v, ok := form["identity_mode"]; ok && len(v) > 0 {
		switch model.IdentityMode(v[0]) {
		case model.IdentityNamed, model.IdentityAnonymous:
			d.IdentityMode = model.IdentityMode(v[0])
		}
		// The identity form always carries identity_mode; an unchecked
		// box sends nothing.
		d.IsPublic = len(form["is_public"]) > 0
	}
	set("name", &d.Name)
	set("contact", &d.Contact)
	set("unit_id", &d.UnitID)
	set("incident_type", &d.IncidentType)
	set("incident_time", &d.IncidentTime)
	set("category_id", &d.CategoryID)
	set("title", &d.Title)
	if v, ok := form["description"]; ok && len(v) > 0 {
		d.Description = v[0]
	}
}

// HandleReportFiles adds uploaded evidence to the draft.
func (s *Server) HandleReportFiles(w http.ResponseWriter, r *http.Request) {
	wz := visitorFromContext(r.Context()).Wizard()
	atts, err := readUploads(r)
	if err == nil {
		err = wz.AddFiles(atts...)
	}
	switch {
	case err == nil:
		http.Redirect(w, r, "/report", http.StatusSeeOther)
	case errors.Is(err, wizard.ErrFileTooLarge), errors.Is(err, wizard.ErrDraftTooLarge):
		s.renderReport(w, r, wz, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, wizard.ErrTypeNotAllowed):
		s.renderReport(w, r, wz, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, wizard.ErrAlreadySubmitted):
		http.Redirect(w, r, "/report", http.StatusSeeOther)
	default:
		s.logger.Warn("evidence upload", zap.Error(err))
		s.renderReport(w, r, wz, http.StatusBadRequest, "The files could not be read. Try again.")
	}
}

func readUploads(r *http.Request) ([]wizard.Attachment, error) {
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	var atts []wizard.Attachment
	for _, fh := range r.MultipartForm.File[evidenceField] {
		a, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, nil
}

func readUpload(fh *multipart.FileHeader) (wizard.Attachment, error) {
	if fh.Size > wizard.MaxFileSize {
		return wizard.Attachment{}, wizard.ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return wizard.Attachment{}, err
	}
	defer f.Close()
	return wizard.ReadAttachment(fh.Filename, f)
}

// HandleReportFileDelete removes one attachment from the draft.
func (s *Server) HandleReportFileDelete(w http.ResponseWriter, r *http.Request) {
	wz := visitorFromContext(r.Context()).Wizard()
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		i = -1
	}
	if err := wz.RemoveFile(i); errors.Is(err, wizard.ErrNoSuchFile) {
		s.renderReport(w, r, wz, http.StatusNotFound, "That file is no longer attached.")
		return
	}
	http.Redirect(w, r, "/report", http.StatusSeeOther)
}

// HandleReportSubmit submits the draft. The outcome, genuine token or
// fallback token, is shown by GET /report.
func (s *Server) HandleReportSubmit(w http.ResponseWriter, r *http.Request) {
	wz := visitorFromContext(r.Context()).Wizard()
	_, err := wz.Submit(r.Context())
	switch {
	case errors.Is(err, wizard.ErrSubmitInFlight):
		s.renderReport(w, r, wz, http.StatusConflict, "Your report is being submitted.")
	case errors.Is(err, wizard.ErrNotOnFinalStep):
		s.renderReport(w, r, wz, http.StatusConflict, "Complete every step before submitting.")
	default:
		http.Redirect(w, r, "/report", http.StatusSeeOther)
	}
}

// HandleQuickReport submits an anonymous report straight from the home
// page: a description, evidence files, or both.
func (s *Server) HandleQuickReport(w http.ResponseWriter, r *http.Request) {
	atts, err := readUploads(r)
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, wizard.ErrFileTooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, wizard.ErrTypeNotAllowed):
			status = http.StatusUnsupportedMediaType
		}
		http.Error(w, err.Error(), status)
		return
	}
	desc := strings.TrimSpace(r.FormValue("description"))
	if desc == "" && len(atts) == 0 {
		http.Error(w, "Describe what you saw or attach evidence.", http.StatusBadRequest)
		return
	}

	wz := s.newWizard()
	if err := wz.Edit(func(d *wizard.Details) {
		d.IdentityMode = model.IdentityAnonymous
		d.Title = quickReportTitle
		d.Description = desc
		d.CategoryID = quickReportCategory
		d.UnitID = wizard.DefaultJurisdiction
		d.IncidentTime = time.Now().UTC().Format(time.RFC3339)
	}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := wz.AddFiles(atts...); err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	for wz.Step() != wizard.StepEvidence {
		wz.Next()
	}
	res, err := wz.Submit(r.Context())
	if err != nil {
		s.logger.Error("quick report", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "report_done.html", map[string]any{"Result": &res, "Quick": true})
}

// HandleTrack looks up a tracking token.
func (s *Server) HandleTrack(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	data := map[string]any{"Token": token}
	if token == "" {
		s.render(w, r, "track.html", data)
		return
	}

	st, err := s.tracker.Lookup(r.Context(), token)
	switch {
	case err == nil:
		data["Status"] = st
		data["Local"] = wizard.IsFallbackToken(token)
	case errors.Is(err, track.ErrTokenNotFound):
		w.WriteHeader(http.StatusNotFound)
		data["Error"] = "No report was found for that token."
	default:
		s.logger.Warn("track lookup", zap.String("token", token), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		data["Error"] = "Tracking is unavailable right now. Try again later."
	}
	s.render(w, r, "track.html", data)
}
