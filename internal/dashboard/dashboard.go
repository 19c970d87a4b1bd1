// Package dashboard is the officer side of the portal: the lead inbox, lead
// dossiers and the forward / reward actions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Officer is the authenticated API surface of one officer session.
type Officer interface {
	ListLeads(ctx context.Context) ([]model.Lead, error)
	GetLead(ctx context.Context, id int64) (*model.Lead, error)
	UpdateStatus(ctx context.Context, id int64, upd leadsapi.StatusUpdate) error
	Forward(ctx context.Context, id int64, fwd leadsapi.ForwardRequest) error
}

// UnitLister lists the units a lead can be forwarded to.
type UnitLister interface {
	Units(ctx context.Context) []model.Unit
}

// Action is an officer decision on a lead.
type Action string

const (
	ActionForward   Action = "FORWARD"
	ActionApprove   Action = "APPROVE"
	ActionRecommend Action = "RECOMMEND"
)

// forwardReason is recorded with every forward made from the dashboard.
const forwardReason = "Manual Forward"

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoTargetUnit  = errors.New("pick a unit to forward to")
)

// Stats are the counters shown above the inbox.
type Stats struct {
	Total          int
	Pending        int
	Critical       int
	RewardEligible int
	Closed         int
}

// ComputeStats counts leads by state.
func ComputeStats(leads []model.Lead) Stats {
	s := Stats{Total: len(leads)}
	for _, l := range leads {
		switch l.Status {
		case model.StatusSubmitted:
			s.Pending++
		case model.StatusClosed:
			s.Closed++
		}
		if l.Priority == model.PriorityCritical {
			s.Critical++
		}
		if l.Reward != "" && l.RewardStatus != "APPROVED" {
			s.RewardEligible++
		}
	}
	return s
}

// Filter keeps the leads whose token or title contains term, ignoring case.
// An empty term keeps everything.
func Filter(leads []model.Lead, term string) []model.Lead {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return leads
	}
	var out []model.Lead
	for _, l := range leads {
		if strings.Contains(strings.ToLower(l.Token), term) ||
			strings.Contains(strings.ToLower(l.Title), term) {
			out = append(out, l)
		}
	}
	return out
}

// Service loads dashboard views and performs actions.
type Service struct {
	units  UnitLister
	logger *zap.Logger
}

// NewService returns a Service.
func NewService(units UnitLister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{units: units, logger: logger}
}

// Inbox is the inbox view.
type Inbox struct {
	Leads []model.Lead
	Stats Stats
	Query string
}

// Inbox lists the officer's leads matching query. Stats cover every lead,
// not just the matching ones.
func (s *Service) Inbox(ctx context.Context, o Officer, query string) (*Inbox, error) {
	leads, err := o.ListLeads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return &Inbox{
		Leads: Filter(leads, query),
		Stats: ComputeStats(leads),
		Query: query,
	}, nil
}

// Detail is a lead dossier with the forward targets.
type Detail struct {
	Lead  *model.Lead
	Units []model.Unit
}

// Detail loads a lead and the unit list concurrently.
func (s *Service) Detail(ctx context.Context, o Officer, id int64) (*Detail, error) {
	var d Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lead, err := o.GetLead(gctx, id)
		if err != nil {
			return fmt.Errorf("get lead %d: %w", id, err)
		}
		d.Lead = lead
		return nil
	})
	g.Go(func() error {
		d.Units = s.units.Units(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Notice is a non-blocking message shown after an action.
type Notice struct {
	OK      bool
	Message string
}

// Act performs action on lead id. Failures come back both as an error and
// as a Notice for display.
func (s *Service) Act(ctx context.Context, o Officer, id int64, action Action, targetUnit string) (Notice, error) {
	var err error
	switch action {
	case ActionForward:
		if targetUnit == "" {
			return Notice{Message: ErrNoTargetUnit.Error()}, ErrNoTargetUnit
		}
		err = o.Forward(ctx, id, leadsapi.ForwardRequest{TargetUnitID: targetUnit, Reason: forwardReason})
	case ActionApprove:
		err = o.UpdateStatus(ctx, id, leadsapi.StatusUpdate{RewardAction: string(ActionApprove), Status: model.StatusClosed})
	case ActionRecommend:
		err = o.UpdateStatus(ctx, id, leadsapi.StatusUpdate{RewardAction: string(ActionRecommend)})
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, action)
		return Notice{Message: "Unknown action."}, err
	}

	if err != nil {
		s.logger.Warn("dashboard action failed",
			zap.Int64("lead_id", id),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return Notice{Message: failureMessage(action, err)}, err
	}
	s.logger.Info("dashboard action completed",
		zap.Int64("lead_id", id),
		zap.String("action", string(action)),
		zap.String("target_unit", targetUnit),
	)
	return Notice{OK: true, Message: actionLabel(action) + " completed."}, nil
}

// failureMessage is the officer-facing text for a failed action. API error
// detail stays in the log.
func failureMessage(a Action, err error) string {
	switch {
	case errors.Is(err, leadsapi.ErrUnauthorized):
		return actionLabel(a) + " was refused. Sign in again and retry."
	case errors.Is(err, leadsapi.ErrNotFound):
		return actionLabel(a) + " failed: the lead no longer exists."
	}
	return actionLabel(a) + " failed. Try again shortly."
}

func actionLabel(a Action) string {
	switch a {
	case ActionForward:
		return "Forward"
	case ActionApprove:
		return "Reward approval"
	case ActionRecommend:
		return "Reward recommendation"
	}
	return string(a)
}
