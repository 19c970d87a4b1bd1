// Package track resolves a tracking token to the status of its report.
package track

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/wizard"
	"go.uber.org/zap"
)

var (
	ErrTokenEmpty    = errors.New("tracking token must not be empty")
	ErrTokenNotFound = errors.New("tracking token not found")
)

// Source looks a token up in the API.
type Source interface {
	Track(ctx context.Context, token string) (*model.TrackStatus, error)
}

// Tracker answers status lookups.
type Tracker struct {
	src    Source
	logger *zap.Logger
	now    func() time.Time
}

// New returns a Tracker backed by src.
func New(src Source, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{src: src, logger: logger, now: time.Now}
}

// Lookup returns the status of token. Tokens minted locally by the report
// wizard are not known to the API when it was unreachable, so a failed
// lookup for one of them yields a synthesized "just submitted" status.
// Otherwise a 404 from the API is ErrTokenNotFound and any other failure is
// returned wrapped.
func (t *Tracker) Lookup(ctx context.Context, token string) (*model.TrackStatus, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenEmpty
	}

	st, err := t.src.Track(ctx, token)
	if err == nil {
		return st, nil
	}
	if wizard.IsFallbackToken(token) {
		t.logger.Debug("synthesizing status for fallback token", zap.String("token", token), zap.Error(err))
		return Pending(t.now()), nil
	}
	if errors.Is(err, leadsapi.ErrNotFound) {
		t.logger.Info("token not found", zap.String("token", token))
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	t.logger.Warn("token lookup failed", zap.String("token", token), zap.Error(err))
	return nil, fmt.Errorf("track %s: %w", token, err)
}

// Pending is the status of a report submitted at submitted and not yet
// reviewed.
func Pending(submitted time.Time) *model.TrackStatus {
	return &model.TrackStatus{
		Status:       model.StatusSubmitted,
		RewardStatus: "PENDING",
		Timeline: []model.Stage{
			{Name: "Submitted", Date: submitted.UTC().Format(time.RFC3339), Completed: true},
			{Name: "Reviewed", Date: "-"},
			{Name: "Actioned", Date: "-"},
		},
	}
}
