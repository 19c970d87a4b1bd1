package leadsapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/citizenintel/portal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "/api", "ftp://example.com"} {
		_, err := New(raw, nil)
		assert.Error(t, err, "url %q", raw)
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	c, err := New("http://localhost:5000/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", c.BaseURL())
}

func TestWithTimeout(t *testing.T) {
	c, err := New("http://api.test", nil, WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)

	c, err = New("http://api.test", nil, WithTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestListQueryValues(t *testing.T) {
	v := ListQuery{Limit: 10, Offset: 20, Priority: "CRITICAL", Sort: "newest"}.Values()
	assert.Equal(t, "10", v.Get("limit"))
	assert.Equal(t, "20", v.Get("offset"))
	assert.Equal(t, "CRITICAL", v.Get("priority"))
	assert.True(t, v.Has("search"), "search is always sent")
	assert.False(t, v.Has("category"))
	assert.False(t, v.Has("jurisdiction"))

	v = ListQuery{Category: "3", Jurisdiction: "d1"}.Values()
	assert.Equal(t, "3", v.Get("category"))
	assert.Equal(t, "d1", v.Get("jurisdiction"))
}

func TestListPublicLeads(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/leads/public-leads", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":1,"title":"a","status":"SUBMITTED","created_at":"2026-01-02 10:00:00"},{"id":2,"title":"b","status":"CLOSED","created_at":null}]`)
	}))

	leads, err := c.ListPublicLeads(t.Context(), ListQuery{Limit: 10, Sort: "newest"})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, int64(1), leads[0].ID)
	assert.Equal(t, 2026, leads[0].CreatedAt.Year())
	assert.True(t, leads[1].CreatedAt.IsZero())
	assert.Contains(t, gotQuery, "limit=10")
	assert.Contains(t, gotQuery, "sort=newest")
}

func TestListPublicLeadsToleratesOddDates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":1,"title":"a","created_at":"2024-05-01 10:00:00.123+05:30"},{"id":2,"title":"b","created_at":1714557600000},{"id":3,"title":"c","created_at":"whenever"}]`)
	}))

	leads, err := c.ListPublicLeads(t.Context(), ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, 2024, leads[0].CreatedAt.Year())
	assert.Equal(t, int64(1714557600000), leads[1].CreatedAt.UnixMilli())
	assert.True(t, leads[2].CreatedAt.IsZero())
}

func TestListPublicLeadsNonArray(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"db down"}`)
	}))

	_, err := c.ListPublicLeads(t.Context(), ListQuery{Limit: 10})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStatusErrorMatching(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"no such token"}`)
	}))

	_, err := c.Track(t.Context(), "ABC")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "no such token", se.Message)
}

func TestVote(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/leads/public-leads/7/vote", r.URL.Path)
		io.WriteString(w, `{"upvotes":12}`)
	}))

	n, err := c.Vote(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestSubmitLeadMultipart(t *testing.T) {
	var payload Submission
	var files []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("payload")), &payload))
		for _, fh := range r.MultipartForm.File["evidence"] {
			files = append(files, fh.Filename)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"lead":{"token":"TKN-123"}}`)
	}))

	res, err := c.SubmitLead(t.Context(), Submission{
		IncidentDetails: IncidentDetails{Title: "Theft", Description: "bike"},
		IdentityMode:    model.IdentityAnonymous,
		JurisdictionID:  "u1",
	}, []Upload{
		{Filename: "a.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpeg")},
		{Filename: `b "quoted".pdf`, Body: strings.NewReader("pdf")},
	})
	require.NoError(t, err)
	assert.Equal(t, "TKN-123", res.Token)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "Theft", payload.IncidentDetails.Title)
	assert.Equal(t, model.IdentityAnonymous, payload.IdentityMode)
	assert.NotNil(t, payload.Details)
	assert.Equal(t, []string{"a.jpg", `b "quoted".pdf`}, files)
}

func TestSubmitLeadWithoutToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))

	res, err := c.SubmitLead(t.Context(), Submission{}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Token)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestSubmitLeadUndecodable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>gateway</html>`)
	}))

	_, err := c.SubmitLead(t.Context(), Submission{}, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Invalid credentials"}`)
			return
		}
		io.WriteString(w, `{"token":"jwt","user":{"name":"Insp. Rao","role":"SHO"}}`)
	}))

	res, err := c.Login(t.Context(), "rao@police.gov", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, "SHO", res.User.Role)

	_, err = c.Login(t.Context(), "rao@police.gov", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestOfficerClientSendsBearer(t *testing.T) {
	var auth []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/leads":
			io.WriteString(w, `[{"id":4,"title":"x","status":"SUBMITTED"}]`)
		case r.Method == http.MethodPatch && r.URL.Path == "/api/leads/4/status":
			var upd StatusUpdate
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			assert.Equal(t, StatusUpdate{RewardAction: "APPROVE", Status: "CLOSED"}, upd)
			io.WriteString(w, `{}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/leads/4/forward":
			var fwd ForwardRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&fwd))
			assert.Equal(t, "ps1", fwd.TargetUnitID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	oc := c.WithToken("officer-token")
	leads, err := oc.ListLeads(t.Context())
	require.NoError(t, err)
	require.Len(t, leads, 1)

	require.NoError(t, oc.UpdateStatus(t.Context(), 4, StatusUpdate{RewardAction: "APPROVE", Status: "CLOSED"}))
	require.NoError(t, oc.Forward(t.Context(), 4, ForwardRequest{TargetUnitID: "ps1", Reason: "Manual Forward"}))

	for _, h := range auth {
		assert.Equal(t, "Bearer officer-token", h)
	}
}

func TestUnitHierarchy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"districts":[{"id":"d1","name":"New Delhi"}],"subDivisions":[],"policeStations":[{"id":"ps1","name":"Chanakyapuri"}]}`)
	}))

	h, err := c.UnitHierarchy(t.Context())
	require.NoError(t, err)
	flat := h.Flatten()
	require.Len(t, flat, 2)
	assert.Equal(t, model.LevelDistrict, flat[0].Level)
	assert.Equal(t, model.LevelPoliceStation, flat[1].Level)
}
