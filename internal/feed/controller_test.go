package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeAPI serves pages from respond and records every query it receives.
type fakeAPI struct {
	mu      sync.Mutex
	queries []leadsapi.ListQuery
	respond func(q leadsapi.ListQuery) ([]model.Lead, error)

	votes   int
	voteErr error
}

func (f *fakeAPI) ListPublicLeads(_ context.Context, q leadsapi.ListQuery) ([]model.Lead, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	respond := f.respond
	f.mu.Unlock()
	return respond(q)
}

func (f *fakeAPI) Vote(context.Context, int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.votes, f.voteErr
}

func (f *fakeAPI) Queries() []leadsapi.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]leadsapi.ListQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

func leadRange(from, to int64) []model.Lead {
	var out []model.Lead
	for id := from; id <= to; id++ {
		out = append(out, model.Lead{ID: id, Title: fmt.Sprintf("lead %d", id)})
	}
	return out
}

func ids(leads []model.Lead) []int64 {
	out := make([]int64, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

func TestFetchPageDeduplicatesOverlappingPages(t *testing.T) {
	api := &fakeAPI{respond: func(q leadsapi.ListQuery) ([]model.Lead, error) {
		switch q.Offset {
		case 0:
			return leadRange(1, 10), nil
		case 10:
			page := leadRange(8, 17)
			page[0].Title = "second copy of 8"
			return page, nil
		}
		return nil, nil
	}}
	c := NewController(api, Options{})

	out, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	require.Equal(t, Merged, out)
	out, err = c.FetchPage(t.Context())
	require.NoError(t, err)
	require.Equal(t, Merged, out)

	snap := c.Snapshot()
	want := ids(leadRange(1, 17))
	if diff := cmp.Diff(want, ids(snap.Items)); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "lead 8", snap.Items[7].Title, "first-seen copy must win")
	assert.True(t, snap.HasMore)
	assert.Equal(t, 2, snap.Page)
}

func TestFetchPageQuery(t *testing.T) {
	tests := []struct {
		name string
		opts []FilterOption
		want leadsapi.ListQuery
	}{
		{
			name: "default tab",
			want: leadsapi.ListQuery{Limit: 10, Sort: "newest"},
		},
		{
			name: "critical keeps user search",
			opts: []FilterOption{WithTab("critical"), WithSearch("fire")},
			want: leadsapi.ListQuery{Limit: 10, Priority: "CRITICAL", Search: "fire", Sort: "newest"},
		},
		{
			name: "myfeed replaces search with appeal prefix",
			opts: []FilterOption{WithTab("myfeed"), WithSearch("fire")},
			want: leadsapi.ListQuery{Limit: 10, Search: "Appeal:", Sort: "newest"},
		},
		{
			name: "traffic prefix",
			opts: []FilterOption{WithTab("traffic")},
			want: leadsapi.ListQuery{Limit: 10, Search: "Traffic:", Sort: "newest"},
		},
		{
			name: "trending with category and jurisdiction",
			opts: []FilterOption{WithTab("trending"), WithCategory("4"), WithJurisdiction("d2")},
			want: leadsapi.ListQuery{Limit: 10, Sort: "trending", Category: "4", Jurisdiction: "d2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) { return nil, nil }}
			c := NewController(api, Options{})
			_, err := c.SetFilter(tt.opts...)
			require.NoError(t, err)

			_, err = c.FetchPage(t.Context())
			require.NoError(t, err)
			qs := api.Queries()
			require.Len(t, qs, 1)
			if diff := cmp.Diff(tt.want, qs[0]); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetFilterUnknownTab(t *testing.T) {
	c := NewController(&fakeAPI{}, Options{})
	changed, err := c.SetFilter(WithTab("gossip"))
	assert.ErrorIs(t, err, ErrUnknownTab)
	assert.False(t, changed)
	assert.Equal(t, DefaultTab, c.Snapshot().Filters.Tab)
}

func TestSetFilterResetsOnlyOnChange(t *testing.T) {
	api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) { return leadRange(1, 10), nil }}
	c := NewController(api, Options{})
	_, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	gen := c.Snapshot().Generation

	changed, err := c.SetFilter(WithTab(DefaultTab))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, c.Snapshot().Items, 10)

	changed, err = c.SetFilter(WithCategory("2"))
	require.NoError(t, err)
	assert.True(t, changed)

	snap := c.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, 0, snap.Page)
	assert.True(t, snap.HasMore)
	assert.Equal(t, gen+1, snap.Generation)
}

func TestPaginationTerminatesOnShortPage(t *testing.T) {
	api := &fakeAPI{respond: func(q leadsapi.ListQuery) ([]model.Lead, error) {
		if q.Priority == "CRITICAL" {
			return leadRange(1, 4), nil
		}
		return leadRange(100, 109), nil
	}}
	c := NewController(api, Options{})
	_, err := c.SetFilter(WithTab("critical"))
	require.NoError(t, err)

	out, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Merged, out)
	assert.False(t, c.Snapshot().HasMore)

	for range 3 {
		out, err = c.FetchPage(t.Context())
		require.NoError(t, err)
		assert.Equal(t, Skipped, out)
	}
	assert.Len(t, api.Queries(), 1)

	_, err = c.SetFilter(WithTab("all"))
	require.NoError(t, err)
	out, err = c.FetchPage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Merged, out)
	assert.Len(t, api.Queries(), 2)
	assert.Equal(t, ids(leadRange(100, 109)), ids(c.Snapshot().Items))
}

func TestFetchPageFailureEndsPagination(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "network", err: errors.New("dial tcp: connection refused")},
		{name: "non-array body", err: fmt.Errorf("%w: expected array", leadsapi.ErrMalformed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) {
				calls++
				if calls == 1 {
					return leadRange(1, 10), nil
				}
				return nil, tt.err
			}}
			c := NewController(api, Options{})
			_, err := c.FetchPage(t.Context())
			require.NoError(t, err)

			out, err := c.FetchPage(t.Context())
			assert.Equal(t, Failed, out)
			assert.ErrorIs(t, err, tt.err)

			snap := c.Snapshot()
			assert.Len(t, snap.Items, 10, "items are left untouched")
			assert.False(t, snap.HasMore)
			assert.True(t, snap.Exhausted())
			assert.ErrorIs(t, snap.Err, tt.err)

			out, _ = c.FetchPage(t.Context())
			assert.Equal(t, Skipped, out)
		})
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{respond: func(q leadsapi.ListQuery) ([]model.Lead, error) {
		if q.Priority == "" && q.Search == "" {
			close(started)
			<-release
			return leadRange(1, 10), nil
		}
		return leadRange(50, 52), nil
	}}
	c := NewController(api, Options{})

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.FetchPage(context.Background())
		done <- result{out, err}
	}()
	<-started

	_, err := c.SetFilter(WithTab("critical"))
	require.NoError(t, err)
	out, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	require.Equal(t, Merged, out, "new generation is not blocked by the old request")

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, Stale, res.out)

	snap := c.Snapshot()
	assert.Equal(t, []int64{50, 51, 52}, ids(snap.Items))
	assert.False(t, snap.Loading)
}

func TestConcurrentFetchIsSkipped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) {
		close(started)
		<-release
		return leadRange(1, 10), nil
	}}
	c := NewController(api, Options{})

	done := make(chan Outcome, 1)
	go func() {
		out, _ := c.FetchPage(context.Background())
		done <- out
	}()
	<-started

	out, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)
	assert.True(t, c.Snapshot().Loading)

	close(release)
	assert.Equal(t, Merged, <-done)
	assert.Len(t, api.Queries(), 1)
}

func TestPinFirstOnlyOnFirstPage(t *testing.T) {
	api := &fakeAPI{respond: func(q leadsapi.ListQuery) ([]model.Lead, error) {
		page := leadRange(int64(q.Offset)+1, int64(q.Offset)+10)
		for i := range page {
			page[i].Priority = model.PriorityCritical
		}
		return page, nil
	}}
	c := NewController(api, Options{Enrichers: []Enricher{PinFirst}})

	for range 3 {
		_, err := c.FetchPage(t.Context())
		require.NoError(t, err)
	}

	var pinned []int64
	for _, l := range c.Snapshot().Items {
		if l.IsPinned {
			pinned = append(pinned, l.ID)
		}
	}
	assert.Equal(t, []int64{1}, pinned)
}

func TestPinFirstRule(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		head  model.Lead
		want  bool
	}{
		{"critical head", Batch{Page: 0, First: true}, model.Lead{Priority: model.PriorityCritical}, true},
		{"appeal head", Batch{Page: 0, First: true}, model.Lead{Title: "Appeal: witness sought"}, true},
		{"appeal word elsewhere", Batch{Page: 0, First: true}, model.Lead{Title: "An Appeal: maybe"}, false},
		{"ordinary head", Batch{Page: 0, First: true}, model.Lead{Priority: model.PriorityHigh}, false},
		{"later page", Batch{Page: 1, First: false}, model.Lead{Priority: model.PriorityCritical}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leads := []model.Lead{tt.head, {Priority: model.PriorityCritical}}
			PinFirst.Enrich(tt.batch, leads)
			assert.Equal(t, tt.want, leads[0].IsPinned)
			assert.False(t, leads[1].IsPinned)
		})
	}
}

func TestPinIgnoresServerFlag(t *testing.T) {
	api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) {
		page := leadRange(1, 3)
		page[2].IsPinned = true
		return page, nil
	}}
	c := NewController(api, Options{})
	_, err := c.FetchPage(t.Context())
	require.NoError(t, err)
	for _, l := range c.Snapshot().Items {
		assert.False(t, l.IsPinned)
	}
}

func TestDemoCounts(t *testing.T) {
	leads := []model.Lead{{ID: 1}, {ID: 2, ResponseCount: 3}}
	DemoCounts{Min: 10, Spread: 50}.Enrich(Batch{}, leads)
	assert.GreaterOrEqual(t, leads[0].ResponseCount, 10)
	assert.Less(t, leads[0].ResponseCount, 60)
	assert.Equal(t, 3, leads[1].ResponseCount)
}

func TestSearchInputDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &fakeAPI{respond: func(leadsapi.ListQuery) ([]model.Lead, error) { return leadRange(1, 2), nil }}
	settled := make(chan struct{}, 4)
	var c *Controller
	c = NewController(api, Options{
		Debounce: 50 * time.Millisecond,
		OnSettle: func() {
			_, _ = c.FetchPage(context.Background())
			settled <- struct{}{}
		},
	})
	defer c.Close()

	start := time.Now()
	c.SearchInput("f")
	time.Sleep(10 * time.Millisecond)
	c.SearchInput("fi")
	time.Sleep(10 * time.Millisecond)
	c.SearchInput("fir")
	time.Sleep(10 * time.Millisecond)
	c.SearchInput("fire")
	assert.True(t, c.SearchPending())

	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search never settled")
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// Give any wrongly surviving timer a chance to fire.
	time.Sleep(100 * time.Millisecond)
	qs := api.Queries()
	require.Len(t, qs, 1)
	assert.Equal(t, "fire", qs[0].Search)
	assert.Equal(t, "fire", c.Snapshot().Filters.Search)
	assert.False(t, c.SearchPending())
}

func TestSearchInputSameTextDoesNotSettle(t *testing.T) {
	defer goleak.VerifyNone(t)

	settled := make(chan struct{}, 1)
	c := NewController(&fakeAPI{}, Options{
		Debounce: 10 * time.Millisecond,
		OnSettle: func() { settled <- struct{}{} },
	})
	defer c.Close()

	c.SearchInput("")
	select {
	case <-settled:
		t.Fatal("unchanged search must not trigger a fetch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseCancelsPendingSearch(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewController(&fakeAPI{}, Options{Debounce: 20 * time.Millisecond})
	c.SearchInput("fire")
	c.Close()
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, c.Snapshot().Filters.Search)
	_, err := c.FetchPage(t.Context())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestVote(t *testing.T) {
	api := &fakeAPI{
		respond: func(leadsapi.ListQuery) ([]model.Lead, error) { return leadRange(1, 3), nil },
		votes:   41,
	}
	c := NewController(api, Options{})
	_, err := c.FetchPage(t.Context())
	require.NoError(t, err)

	n, counted := c.Vote(t.Context(), 2)
	assert.True(t, counted)
	assert.Equal(t, 41, n)

	api.votes = 99
	n, counted = c.Vote(t.Context(), 2)
	assert.False(t, counted)
	assert.Equal(t, 41, n)
	assert.True(t, c.Snapshot().Voted[2])
}

func TestVoteOptimisticOnFailure(t *testing.T) {
	api := &fakeAPI{
		respond: func(leadsapi.ListQuery) ([]model.Lead, error) {
			page := leadRange(1, 1)
			page[0].Votes = 5
			return page, nil
		},
		voteErr: errors.New("offline"),
	}
	c := NewController(api, Options{})
	_, err := c.FetchPage(t.Context())
	require.NoError(t, err)

	n, counted := c.Vote(t.Context(), 1)
	assert.True(t, counted)
	assert.Equal(t, 6, n)
	assert.Equal(t, 6, c.Snapshot().Items[0].Votes)
}
