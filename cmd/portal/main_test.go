package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintFeed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := feed.Snapshot{
		Items: []model.Lead{
			{ID: 7, Token: "TRK-7", Title: "Gate left open", Priority: model.PriorityCritical, Votes: 3, IsPinned: true},
			{ID: 4, Token: "TRK-4", Title: "Broken signal"},
		},
		Page:    1,
		HasMore: false,
	}

	var buf bytes.Buffer
	require.NoError(t, printFeed(&buf, snap, now))
	out := buf.String()
	assert.Contains(t, out, "CRITICAL (pinned)")
	assert.Contains(t, out, "Broken signal")
	assert.Contains(t, out, "2 leads, 1 pages, end of feed")
}

func TestPrintStatusFallbackToken(t *testing.T) {
	var buf bytes.Buffer
	st := track.Pending(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, printStatus(&buf, "OFFLINE-0A1B2C3D", st))

	out := buf.String()
	assert.Contains(t, out, "Status: SUBMITTED")
	assert.Contains(t, out, "issued locally")
	assert.Contains(t, out, "[x] Submitted")
	assert.Contains(t, out, "[ ] Reviewed")
}

func TestRootRegistersCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "feed", "track"})
}
