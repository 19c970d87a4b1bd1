// Package wizard drives the four-step report flow: identity, location,
// details and evidence, ending in exactly one submission that always yields
// a tracking token.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"go.uber.org/zap"
)

// Step is a wizard state.
type Step int

const (
	StepIdentity Step = iota + 1
	StepLocation
	StepDetails
	StepEvidence
	StepSubmitted
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "Identity"
	case StepLocation:
		return "Location"
	case StepDetails:
		return "Details"
	case StepEvidence:
		return "Evidence"
	case StepSubmitted:
		return "Submitted"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

const (
	// DefaultTitle is sent when the reporter leaves the title empty.
	DefaultTitle = "Portal Report"
	// DefaultJurisdiction is sent when no unit was picked.
	DefaultJurisdiction = "u1"
	// refPrefix starts the description of a report that follows up a case.
	refPrefix = "Referencing Case ID: "
)

var (
	ErrSubmitInFlight   = errors.New("a submission is already in progress")
	ErrNotOnFinalStep   = errors.New("report can only be submitted from the evidence step")
	ErrAlreadySubmitted = errors.New("report has already been submitted")
)

// Submitter sends a finished report to the API.
type Submitter interface {
	SubmitLead(ctx context.Context, sub leadsapi.Submission, uploads []leadsapi.Upload) (*leadsapi.SubmitResult, error)
}

// Details holds the free-form fields of a draft.
type Details struct {
	IdentityMode model.IdentityMode
	IsPublic     bool
	Name         string
	Contact      string
	UnitID       string
	IncidentType string
	IncidentTime string
	CategoryID   string
	Title        string
	Description  string
}

// Result is the terminal outcome of a submission.
type Result struct {
	Token    string
	Fallback Fallback
	// Details are the fields that were submitted.
	Details Details
}

// Options configures a Wizard.
type Options struct {
	Logger *zap.Logger
	// OnSubmitted runs after every submission, genuine or fallback.
	OnSubmitted func(ctx context.Context, res Result)
}

// Wizard is the report flow of one visitor.
type Wizard struct {
	api         Submitter
	logger      *zap.Logger
	onSubmitted func(context.Context, Result)

	mu          sync.Mutex
	step        Step
	details     Details
	attachments []Attachment
	submitting  bool
	result      *Result
}

// New returns a wizard on the identity step with an anonymous, private draft.
func New(api Submitter, opts Options) *Wizard {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Wizard{
		api:         api,
		logger:      opts.Logger,
		onSubmitted: opts.OnSubmitted,
		step:        StepIdentity,
		details:     Details{IdentityMode: model.IdentityAnonymous},
	}
}

// Prefill seeds the draft from link parameters. It never moves the step.
//
//	mode=named    reporter is named
//	mode=public   report is public, which implies named
//	title=...     report title
//	ref=...       description starts by referencing that case
func (w *Wizard) Prefill(params url.Values) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == StepSubmitted {
		return
	}
	switch params.Get("mode") {
	case "named":
		w.details.IdentityMode = model.IdentityNamed
	case "public":
		w.details.IsPublic = true
		w.details.IdentityMode = model.IdentityNamed
	case "anonymous":
		w.details.IdentityMode = model.IdentityAnonymous
	}
	if title := params.Get("title"); title != "" {
		w.details.Title = title
	}
	if ref := params.Get("ref"); ref != "" {
		w.details.Description = refPrefix + ref + "\n\n"
	}
}

// Next advances one step, stopping at the evidence step.
func (w *Wizard) Next() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step < StepEvidence {
		w.step++
	}
	return w.step
}

// Back goes one step back, stopping at the identity step.
func (w *Wizard) Back() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepIdentity && w.step < StepSubmitted {
		w.step--
	}
	return w.step
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Edit applies fn to the draft details.
func (w *Wizard) Edit(fn func(d *Details)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	fn(&w.details)
	if w.details.IsPublic {
		w.details.IdentityMode = model.IdentityNamed
	}
	return nil
}

func (w *Wizard) mutableLocked() error {
	switch {
	case w.step == StepSubmitted:
		return ErrAlreadySubmitted
	case w.submitting:
		return ErrSubmitInFlight
	}
	return nil
}

// AddFiles appends attachments. Files with the same name are kept as
// distinct entries. Nothing is added if the draft would grow past
// MaxDraftSize.
func (w *Wizard) AddFiles(files ...Attachment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}

	var total int64
	for _, a := range w.attachments {
		total += a.Size
	}
	for _, a := range files {
		total += a.Size
	}
	if total > MaxDraftSize {
		return ErrDraftTooLarge
	}
	w.attachments = append(w.attachments, files...)
	return nil
}

// RemoveFile removes the attachment at index i; later attachments shift
// down by one.
func (w *Wizard) RemoveFile(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.mutableLocked(); err != nil {
		return err
	}
	if i < 0 || i >= len(w.attachments) {
		return fmt.Errorf("%w: %d", ErrNoSuchFile, i)
	}
	w.attachments = append(w.attachments[:i:i], w.attachments[i+1:]...)
	return nil
}

// Warning is an advisory validation message. Warnings never block a step.
type Warning struct {
	Step    Step
	Field   string
	Message string
}

// Validate lists fields the reporter probably meant to fill in.
func (w *Wizard) Validate() []Warning {
	w.mu.Lock()
	d := w.details
	w.mu.Unlock()

	var warns []Warning
	if d.IdentityMode == model.IdentityNamed {
		if strings.TrimSpace(d.Name) == "" {
			warns = append(warns, Warning{StepIdentity, "name", "No name given for a named report."})
		}
		if strings.TrimSpace(d.Contact) == "" {
			warns = append(warns, Warning{StepIdentity, "contact", "No contact given; officers cannot reach you."})
		}
	}
	if d.UnitID == "" {
		warns = append(warns, Warning{StepLocation, "unit", "No jurisdiction picked; the report goes to the default unit."})
	}
	if strings.TrimSpace(d.Title) == "" {
		warns = append(warns, Warning{StepDetails, "title", fmt.Sprintf("No title; it will be filed as %q.", DefaultTitle)})
	}
	if strings.TrimSpace(strings.TrimPrefix(d.Description, refPrefix)) == "" {
		warns = append(warns, Warning{StepDetails, "description", "The description is empty."})
	}
	return warns
}

// View is a copy of the wizard state for rendering.
type View struct {
	Step        Step
	Details     Details
	Attachments []Attachment
	Submitting  bool
	Result      *Result
}

// View returns a copy of the current state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		Step:        w.step,
		Details:     w.details,
		Attachments: append([]Attachment(nil), w.attachments...),
		Submitting:  w.submitting,
	}
	if w.result != nil {
		r := *w.result
		v.Result = &r
	}
	return v
}

// Submit sends the draft. Once it starts it always ends in StepSubmitted
// with a non-empty token: the API's token when it returns one, otherwise a
// locally minted fallback token. The draft is discarded afterwards.
func (w *Wizard) Submit(ctx context.Context) (Result, error) {
	w.mu.Lock()
	switch {
	case w.step == StepSubmitted:
		w.mu.Unlock()
		return Result{}, ErrAlreadySubmitted
	case w.submitting:
		w.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	case w.step != StepEvidence:
		w.mu.Unlock()
		return Result{}, ErrNotOnFinalStep
	}
	w.submitting = true
	details := w.details
	attachments := append([]Attachment(nil), w.attachments...)
	w.mu.Unlock()

	res := Result{Details: details}
	apiRes, err := w.api.SubmitLead(ctx, submission(details), uploads(attachments))
	switch {
	case err != nil:
		res.Token = fallbackToken(OfflinePrefix)
		res.Fallback = FallbackOffline
		w.logger.Warn("report submission failed, issuing offline token",
			zap.String("token", res.Token),
			zap.Error(err),
		)
	case apiRes.Token == "":
		res.Token = fallbackToken(DemoPrefix)
		res.Fallback = FallbackDemo
		w.logger.Warn("report accepted without a token, issuing demo token",
			zap.String("token", res.Token),
			zap.Int("status", apiRes.StatusCode),
		)
	default:
		res.Token = apiRes.Token
		w.logger.Info("report submitted",
			zap.String("token", res.Token),
			zap.Int("attachments", len(attachments)),
		)
	}

	w.mu.Lock()
	w.step = StepSubmitted
	w.submitting = false
	w.details = Details{}
	w.attachments = nil
	stored := res
	w.result = &stored
	w.mu.Unlock()

	if w.onSubmitted != nil {
		w.onSubmitted(ctx, res)
	}
	return res, nil
}

func submission(d Details) leadsapi.Submission {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = DefaultTitle
	}
	unit := d.UnitID
	if unit == "" {
		unit = DefaultJurisdiction
	}
	mode := d.IdentityMode
	if mode == "" {
		mode = model.IdentityAnonymous
	}
	details := map[string]any{}
	if d.IncidentType != "" {
		details["incident_type"] = d.IncidentType
	}
	return leadsapi.Submission{
		IncidentDetails: leadsapi.IncidentDetails{
			Title:       title,
			Description: d.Description,
			Name:        d.Name,
			Contact:     d.Contact,
		},
		IdentityMode:   mode,
		IsPublic:       d.IsPublic,
		JurisdictionID: unit,
		IncidentTime:   d.IncidentTime,
		CategoryID:     d.CategoryID,
		Details:        details,
	}
}

func uploads(files []Attachment) []leadsapi.Upload {
	out := make([]leadsapi.Upload, len(files))
	for i, a := range files {
		out[i] = leadsapi.Upload{
			Filename:    a.Name,
			ContentType: a.ContentType,
			Body:        a.Reader(),
		}
	}
	return out
}
