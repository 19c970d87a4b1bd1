package leadsapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/citizenintel/portal/internal/model"
	"golang.org/x/oauth2"
)

// OfficerClient calls the authenticated endpoints on behalf of one officer.
type OfficerClient struct {
	*Client
	authed *http.Client
}

// WithToken returns an OfficerClient that sends token as a bearer credential.
func (c *Client) WithToken(token string) *OfficerClient {
	base := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	authed := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	authed.Timeout = c.httpClient.Timeout
	return &OfficerClient{Client: c, authed: authed}
}

// ListLeads returns every lead visible to the officer.
func (o *OfficerClient) ListLeads(ctx context.Context) ([]model.Lead, error) {
	var leads []model.Lead
	err := o.do(ctx, o.authed, request{
		method: http.MethodGet,
		path:   "/leads",
	}, &leads)
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// GetLead returns the full dossier of one lead.
func (o *OfficerClient) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	var lead model.Lead
	err := o.do(ctx, o.authed, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/leads/%d", id),
	}, &lead)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// StatusUpdate is the body of a status/reward change.
type StatusUpdate struct {
	RewardAction string `json:"reward_action,omitempty"`
	Status       string `json:"status,omitempty"`
}

// UpdateStatus patches the status or reward state of a lead.
func (o *OfficerClient) UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error {
	body, err := jsonBody(upd)
	if err != nil {
		return err
	}
	return o.do(ctx, o.authed, request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("/leads/%d/status", id),
		body:        body,
		contentType: "application/json",
	}, nil)
}

// ForwardRequest is the body of a forward-to-unit action.
type ForwardRequest struct {
	TargetUnitID string `json:"target_unit_id"`
	Reason       string `json:"reason"`
}

// Forward hands a lead over to another unit.
func (o *OfficerClient) Forward(ctx context.Context, id int64, fwd ForwardRequest) error {
	body, err := jsonBody(fwd)
	if err != nil {
		return err
	}
	return o.do(ctx, o.authed, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/leads/%d/forward", id),
		body:        body,
		contentType: "application/json",
	}, nil)
}
