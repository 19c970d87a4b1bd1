// Package feed implements the paginated public lead feed: filter state,
// debounced search, page fetching with merge-on-arrival deduplication and
// post-merge enrichment.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"go.uber.org/zap"
)

const (
	// PageSize is the number of leads requested per page. A shorter page
	// ends pagination for the current filter generation.
	PageSize = 10
	// DefaultDebounce is how long search input must be idle before it is
	// applied.
	DefaultDebounce = 400 * time.Millisecond
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("feed: controller closed")

// API is the subset of the leads API the feed needs.
type API interface {
	ListPublicLeads(ctx context.Context, q leadsapi.ListQuery) ([]model.Lead, error)
	Vote(ctx context.Context, id int64) (int, error)
}

// Filters is the active filter set.
type Filters struct {
	Tab          string
	Search       string
	Category     string
	Jurisdiction string
}

// FilterOption changes one field of a Filters.
type FilterOption func(*Filters)

func WithTab(tab string) FilterOption { return func(f *Filters) { f.Tab = tab } }

func WithSearch(q string) FilterOption { return func(f *Filters) { f.Search = q } }

func WithCategory(id string) FilterOption { return func(f *Filters) { f.Category = id } }

func WithJurisdiction(id string) FilterOption { return func(f *Filters) { f.Jurisdiction = id } }

// Outcome reports what a FetchPage call did.
type Outcome int

const (
	// Skipped means no request was made: one is already in flight or the
	// generation has no more pages.
	Skipped Outcome = iota
	// Merged means a page arrived and was merged.
	Merged
	// Stale means a page arrived after the filters changed and was dropped.
	Stale
	// Failed means the request failed; pagination is over for the generation.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Merged:
		return "merged"
	case Stale:
		return "stale"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Options configures a Controller.
type Options struct {
	Tabs      Tabs
	Enrichers []Enricher
	Debounce  time.Duration
	Logger    *zap.Logger
	// OnSettle runs on the timer goroutine after a debounced search changed
	// the filters. It is expected to issue the fetch for the new generation.
	OnSettle func()
}

// Controller owns the feed state of one visitor. It is safe for concurrent
// use; network calls are made without holding the lock.
type Controller struct {
	api       API
	tabs      Tabs
	enrichers []Enricher
	debounce  time.Duration
	logger    *zap.Logger
	onSettle  func()

	mu         sync.Mutex
	filters    Filters
	items      []model.Lead
	seen       map[int64]struct{}
	page       int
	loading    bool
	hasMore    bool
	generation uint64
	merged     bool // a page has been merged in this generation
	lastErr    error
	voted      map[int64]bool
	timer      *time.Timer
	searchSeq  uint64
	closed     bool
}

// NewController returns a controller on the default tab with nothing loaded.
func NewController(api API, opts Options) *Controller {
	if opts.Tabs == nil {
		opts.Tabs = DefaultTabs()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		api:       api,
		tabs:      opts.Tabs,
		enrichers: opts.Enrichers,
		debounce:  opts.Debounce,
		logger:    opts.Logger,
		onSettle:  opts.OnSettle,
		filters:   Filters{Tab: DefaultTab},
		seen:      make(map[int64]struct{}),
		hasMore:   true,
		voted:     make(map[int64]bool),
	}
}

// Tabs returns the tab table the controller validates against.
func (c *Controller) Tabs() Tabs {
	return c.tabs
}

// SetFilter applies opts to the current filters. When the result differs
// from the current filters the feed is reset synchronously: items are
// cleared, the page cursor returns to zero and a new generation starts.
// It reports whether a reset happened.
func (c *Controller) SetFilter(opts ...FilterOption) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	next := c.filters
	for _, opt := range opts {
		opt(&next)
	}
	if next.Tab == "" {
		next.Tab = DefaultTab
	}
	if _, ok := c.tabs.Lookup(next.Tab); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTab, next.Tab)
	}
	if next == c.filters {
		return false, nil
	}

	c.filters = next
	c.resetLocked()
	c.logger.Debug("feed filters changed",
		zap.String("tab", next.Tab),
		zap.String("search", next.Search),
		zap.String("category", next.Category),
		zap.String("jurisdiction", next.Jurisdiction),
		zap.Uint64("generation", c.generation),
	)
	return true, nil
}

func (c *Controller) resetLocked() {
	c.items = nil
	c.seen = make(map[int64]struct{})
	c.page = 0
	c.hasMore = true
	c.loading = false
	c.merged = false
	c.lastErr = nil
	c.generation++
}

// SearchInput records a keystroke's worth of search text. The text is applied
// once no further input arrives within the debounce delay.
func (c *Controller) SearchInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.searchSeq++
	seq := c.searchSeq
	c.timer = time.AfterFunc(c.debounce, func() { c.applySearch(seq, text) })
}

func (c *Controller) applySearch(seq uint64, text string) {
	c.mu.Lock()
	if c.closed || seq != c.searchSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	changed, err := c.SetFilter(WithSearch(text))
	if err != nil || !changed {
		return
	}
	if c.onSettle != nil {
		c.onSettle()
	}
}

// SearchPending reports whether debounced search input is waiting to apply.
func (c *Controller) SearchPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// FetchPage requests the next page for the current filters and merges it.
// A non-nil error is only returned together with Failed, or ErrClosed.
func (c *Controller) FetchPage(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Skipped, ErrClosed
	}
	if c.loading || !c.hasMore {
		c.mu.Unlock()
		return Skipped, nil
	}
	c.loading = true
	gen := c.generation
	page := c.page
	first := !c.merged
	tab, _ := c.tabs.Lookup(c.filters.Tab)
	q := tab.Query(c.filters, page)
	c.mu.Unlock()

	leads, err := c.api.ListPublicLeads(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debug("dropping stale feed page",
			zap.Uint64("generation", gen),
			zap.Uint64("current", c.generation),
			zap.Int("page", page),
		)
		return Stale, nil
	}
	c.loading = false

	if err != nil {
		c.hasMore = false
		c.lastErr = err
		c.logger.Warn("feed page fetch failed",
			zap.String("tab", c.filters.Tab),
			zap.Int("page", page),
			zap.Error(err),
		)
		return Failed, err
	}

	fresh := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if _, dup := c.seen[l.ID]; dup {
			continue
		}
		c.seen[l.ID] = struct{}{}
		l.IsPinned = false
		fresh = append(fresh, l)
	}
	b := Batch{Page: page, First: first}
	for _, e := range c.enrichers {
		e.Enrich(b, fresh)
	}

	c.items = append(c.items, fresh...)
	c.merged = true
	c.page++
	if len(leads) < PageSize {
		c.hasMore = false
	}
	return Merged, nil
}

// Vote upvotes a lead once per controller. The server's count replaces the
// local one; if the request fails the local count is incremented anyway. A
// repeated vote returns the current count and false.
func (c *Controller) Vote(ctx context.Context, id int64) (int, bool) {
	c.mu.Lock()
	if c.voted[id] {
		n := c.votesLocked(id)
		c.mu.Unlock()
		return n, false
	}
	c.voted[id] = true
	c.mu.Unlock()

	n, err := c.api.Vote(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("vote failed, counting locally", zap.Int64("lead_id", id), zap.Error(err))
		n = c.votesLocked(id) + 1
	}
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Votes = n
			break
		}
	}
	return n, true
}

func (c *Controller) votesLocked(id int64) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return c.items[i].Votes
		}
	}
	return 0
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	Items      []model.Lead
	Filters    Filters
	Page       int
	Loading    bool
	HasMore    bool
	Generation uint64
	Err        error
	Voted      map[int64]bool
}

// Exhausted reports whether the feed has reached the end of its results.
func (s Snapshot) Exhausted() bool {
	return !s.HasMore && !s.Loading
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]model.Lead, len(c.items))
	copy(items, c.items)
	voted := make(map[int64]bool, len(c.voted))
	for id, v := range c.voted {
		voted[id] = v
	}
	return Snapshot{
		Items:      items,
		Filters:    c.filters,
		Page:       c.page,
		Loading:    c.loading,
		HasMore:    c.hasMore,
		Generation: c.generation,
		Err:        c.lastErr,
		Voted:      voted,
	}
}

// Close stops any pending search timer. Later calls are no-ops or ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.closed = true
}
