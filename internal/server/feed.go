package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// feedResponse is the JSON view of a visitor's feed.
type feedResponse struct {
	Items         []model.Lead `json:"items"`
	Tab           string       `json:"tab"`
	Search        string       `json:"search"`
	Category      string       `json:"category,omitempty"`
	Jurisdiction  string       `json:"jurisdiction,omitempty"`
	Page          int          `json:"page"`
	Loading       bool         `json:"loading"`
	HasMore       bool         `json:"has_more"`
	Exhausted     bool         `json:"exhausted"`
	Generation    uint64       `json:"generation"`
	SearchPending bool         `json:"search_pending"`
	Voted         []int64      `json:"voted"`
	Outcome       string       `json:"outcome,omitempty"`
	Error         string       `json:"error,omitempty"`
}

func newFeedResponse(c *feed.Controller, outcome *feed.Outcome) feedResponse {
	snap := c.Snapshot()
	resp := feedResponse{
		Items:         snap.Items,
		Tab:           snap.Filters.Tab,
		Search:        snap.Filters.Search,
		Category:      snap.Filters.Category,
		Jurisdiction:  snap.Filters.Jurisdiction,
		Page:          snap.Page,
		Loading:       snap.Loading,
		HasMore:       snap.HasMore,
		Exhausted:     snap.Exhausted(),
		Generation:    snap.Generation,
		SearchPending: c.SearchPending(),
		Voted:         []int64{},
	}
	for id := range snap.Voted {
		resp.Voted = append(resp.Voted, id)
	}
	if outcome != nil {
		resp.Outcome = outcome.String()
	}
	if snap.Err != nil {
		resp.Error = "The feed could not be loaded. Try again later."
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write json response", zap.Error(err))
	}
}

// ensureFirstPage loads the first page of a fresh generation.
func (s *Server) ensureFirstPage(r *http.Request, c *feed.Controller) {
	snap := c.Snapshot()
	if snap.Page == 0 && snap.HasMore && !snap.Loading && !c.SearchPending() {
		_, _ = c.FetchPage(r.Context())
	}
}

// filterOptions collects the filter fields present in form.
func filterOptions(form map[string][]string) []feed.FilterOption {
	var opts []feed.FilterOption
	get := func(key string) (string, bool) {
		v, ok := form[key]
		if !ok || len(v) == 0 {
			return "", ok
		}
		return v[0], true
	}
	if v, ok := get("tab"); ok {
		opts = append(opts, feed.WithTab(v))
	}
	if v, ok := get("category"); ok {
		opts = append(opts, feed.WithCategory(v))
	}
	if v, ok := get("jurisdiction"); ok {
		opts = append(opts, feed.WithJurisdiction(v))
	}
	if v, ok := get("q"); ok {
		opts = append(opts, feed.WithSearch(v))
	}
	return opts
}

// HandleIndex renders the home page with the visitor's feed. Query
// parameters tab, category, jurisdiction and q change the filters.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	c := visitorFromContext(r.Context()).feed
	if opts := filterOptions(r.URL.Query()); len(opts) > 0 {
		if _, err := c.SetFilter(opts...); errors.Is(err, feed.ErrUnknownTab) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}
	s.ensureFirstPage(r, c)

	s.render(w, r, "index.html", map[string]any{
		"Feed":       c.Snapshot(),
		"Tabs":       c.Tabs().Names(),
		"Categories": feed.Categories,
		"Units":      s.units.Units(r.Context()),
	})
}

// HandleFeed returns the visitor's feed as JSON.
func (s *Server) HandleFeed(w http.ResponseWriter, r *http.Request) {
	c := visitorFromContext(r.Context()).feed
	s.ensureFirstPage(r, c)
	s.writeJSON(w, http.StatusOK, newFeedResponse(c, nil))
}

// HandleFeedFilter changes the tab, category or jurisdiction. A change
// resets the feed and loads the first page of the new generation.
func (s *Server) HandleFeedFilter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad form"})
		return
	}
	c := visitorFromContext(r.Context()).feed
	changed, err := c.SetFilter(filterOptions(r.PostForm)...)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var outcome *feed.Outcome
	if changed {
		o, _ := c.FetchPage(r.Context())
		outcome = &o
	}
	s.writeJSON(w, http.StatusOK, newFeedResponse(c, outcome))
}

// HandleFeedSearch records search input. The search applies after the
// debounce delay; clients poll GET /api/feed for the result.
func (s *Server) HandleFeedSearch(w http.ResponseWriter, r *http.Request) {
	c := visitorFromContext(r.Context()).feed
	c.SearchInput(r.PostFormValue("q"))
	s.writeJSON(w, http.StatusAccepted, newFeedResponse(c, nil))
}

// HandleFeedMore loads the next page.
func (s *Server) HandleFeedMore(w http.ResponseWriter, r *http.Request) {
	c := visitorFromContext(r.Context()).feed
	o, _ := c.FetchPage(r.Context())
	s.writeJSON(w, http.StatusOK, newFeedResponse(c, &o))
}

// HandleVote upvotes a lead once per visitor.
func (s *Server) HandleVote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "leadID"), 10, 64)
	if err != nil || id <= 0 {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
		return
	}
	n, counted := visitorFromContext(r.Context()).feed.Vote(r.Context(), id)
	s.writeJSON(w, http.StatusOK, map[string]any{"votes": n, "counted": counted})
}

// HandleLead renders a public lead.
func (s *Server) HandleLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "leadID"), 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusNotFound)
		s.render(w, r, "lead_missing.html", nil)
		return
	}

	lead, err := s.api.GetPublicLead(r.Context(), id)
	switch {
	case errors.Is(err, leadsapi.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		s.render(w, r, "lead_missing.html", nil)
		return
	case err != nil:
		s.logger.Warn("load public lead", zap.Int64("lead_id", id), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		s.render(w, r, "lead_missing.html", map[string]any{"Unavailable": true})
		return
	}

	s.render(w, r, "lead.html", map[string]any{"Lead": lead})
}
