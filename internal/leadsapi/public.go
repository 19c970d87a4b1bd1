package leadsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/citizenintel/portal/internal/model"
)

// ListQuery is the query of the public feed endpoint.
type ListQuery struct {
	Limit        int
	Offset       int
	Priority     string
	Search       string
	Sort         string
	Category     string
	Jurisdiction string
}

// Values encodes the query. priority, search and sort are always sent (the
// API treats empty as "any"); category and jurisdiction only when set.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	v.Set("priority", q.Priority)
	v.Set("search", q.Search)
	v.Set("sort", q.Sort)
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Jurisdiction != "" {
		v.Set("jurisdiction", q.Jurisdiction)
	}
	return v
}

// ListPublicLeads fetches one page of the public feed. A body that is not a
// JSON array is reported as ErrMalformed.
func (c *Client) ListPublicLeads(ctx context.Context, q ListQuery) ([]model.Lead, error) {
	var raw json.RawMessage
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/leads/public-leads",
		query:  q.Values(),
	}, &raw)
	if err != nil {
		return nil, err
	}

	var leads []model.Lead
	if err := decodeArray(raw, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// GetPublicLead fetches the public dossier of one lead, including media.
func (c *Client) GetPublicLead(ctx context.Context, id int64) (*model.Lead, error) {
	var lead model.Lead
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/leads/public-leads/%d", id),
	}, &lead)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// Vote upvotes a lead and returns the new server-side count.
func (c *Client) Vote(ctx context.Context, id int64) (int, error) {
	var resp struct {
		Upvotes *int `json:"upvotes"`
	}
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/leads/public-leads/%d/vote", id),
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Upvotes == nil {
		return 0, fmt.Errorf("%w: vote response has no upvotes", ErrMalformed)
	}
	return *resp.Upvotes, nil
}

// IncidentDetails is the free-text part of a submission.
type IncidentDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Contact     string `json:"contact"`
}

// Submission is the JSON payload part of a new lead.
type Submission struct {
	IncidentDetails IncidentDetails    `json:"incident_details"`
	IdentityMode    model.IdentityMode `json:"identity_mode"`
	IsPublic        bool               `json:"is_public"`
	JurisdictionID  string             `json:"jurisdiction_id"`
	IncidentTime    string             `json:"incident_time"`
	CategoryID      string             `json:"category_id"`
	Details         map[string]any     `json:"details"`
}

// Upload is one evidence file sent with a submission.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// SubmitResult is the decoded answer to a submission. Token is empty when
// the API accepted the request but did not return one.
type SubmitResult struct {
	StatusCode int
	Token      string
}

// SubmitLead posts a new lead as multipart form data: one "payload" field
// holding the JSON submission and one "evidence" part per upload.
//
// Only transport failures and undecodable bodies are errors. Any decodable
// answer, including an error status, yields a SubmitResult so the caller can
// tell "no token" apart from "no answer".
func (c *Client) SubmitLead(ctx context.Context, sub Submission, uploads []Upload) (*SubmitResult, error) {
	if sub.Details == nil {
		sub.Details = map[string]any{}
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload", string(payload)); err != nil {
		return nil, fmt.Errorf("write payload field: %w", err)
	}
	for _, up := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="evidence"; filename="%s"`, quoteEscaper.Replace(up.Filename)))
		ct := up.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create evidence part: %w", err)
		}
		if _, err := io.Copy(part, up.Body); err != nil {
			return nil, fmt.Errorf("write evidence %s: %w", up.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var resp struct {
		Lead *struct {
			Token string `json:"token"`
		} `json:"lead"`
	}
	status, err := c.doRaw(ctx, request{
		method:      http.MethodPost,
		path:        "/leads",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{StatusCode: status}
	if resp.Lead != nil {
		result.Token = strings.TrimSpace(resp.Lead.Token)
	}
	return result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// doRaw is like do but decodes the body regardless of status and returns the
// status code alongside.
func (c *Client) doRaw(ctx context.Context, req request, out any) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, req.body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %v", ErrMalformed, req.method, req.path, err)
	}
	return resp.StatusCode, nil
}

// Track looks up the public status of a tracking token.
func (c *Client) Track(ctx context.Context, token string) (*model.TrackStatus, error) {
	var st model.TrackStatus
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/leads/track/" + url.PathEscape(token),
	}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UnitHierarchy fetches districts, sub-divisions and police stations.
func (c *Client) UnitHierarchy(ctx context.Context) (*model.UnitHierarchy, error) {
	var h model.UnitHierarchy
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/units/hierarchy",
	}, &h)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// LoginResult is the answer of a successful officer login.
type LoginResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login exchanges officer credentials for a bearer token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var res LoginResult
	err = c.do(ctx, c.httpClient, request{
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        body,
		contentType: "application/json",
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, fmt.Errorf("%w: login response has no token", ErrMalformed)
	}
	return &res, nil
}
