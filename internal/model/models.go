package model

import (
	"strings"
	"time"
)

// Priority is the urgency the external API assigns to a lead.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// IdentityMode controls whether a reporter discloses who they are.
type IdentityMode string

const (
	IdentityAnonymous IdentityMode = "ANONYMOUS"
	IdentityNamed     IdentityMode = "NAMED"
)

// MediaType classifies a file attached to a lead.
type MediaType string

const (
	MediaImage    MediaType = "IMAGE"
	MediaVideo    MediaType = "VIDEO"
	MediaAudio    MediaType = "AUDIO"
	MediaDocument MediaType = "DOCUMENT"
)

// Lead statuses the portal reacts to. The API may return others.
const (
	StatusSubmitted = "SUBMITTED"
	StatusClosed    = "CLOSED"
	StatusRejected  = "REJECTED"
)

// AppealPrefix marks leads published by the police asking the public for help.
const AppealPrefix = "Appeal:"

// Lead is one citizen report as the public feed and the dashboard see it.
type Lead struct {
	ID            int64     `json:"id"`
	Token         string    `json:"token,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Location      string    `json:"location,omitempty"`
	Type          string    `json:"type,omitempty"`
	Priority      Priority  `json:"priority,omitempty"`
	Status        string    `json:"status"`
	Reward        string    `json:"reward,omitempty"`
	RewardStatus  string    `json:"reward_status,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	ResponseCount int       `json:"response_count"`
	Votes         int       `json:"votes"`
	CreatedAt     Timestamp `json:"created_at"`
	Media         []Media   `json:"media,omitempty"`
	Timeline      []Stage   `json:"timeline,omitempty"`

	// IsPinned is derived on the client when a page is merged into the feed.
	IsPinned bool `json:"is_pinned"`
}

// IsAppeal reports whether the lead title starts with the appeal prefix.
func (l *Lead) IsAppeal() bool {
	return strings.HasPrefix(l.Title, AppealPrefix)
}

// Media is a file attached to a lead detail.
type Media struct {
	FilePath string    `json:"file_path"`
	FileType MediaType `json:"file_type"`
}

// Stage is one step of a lead's processing timeline.
type Stage struct {
	Name      string `json:"stage"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

// TrackStatus is what a reporter sees when looking up a tracking token.
type TrackStatus struct {
	Status       string    `json:"status"`
	RewardStatus string    `json:"reward_status,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
	Timeline     []Stage   `json:"timeline,omitempty"`
}

// Unit is a node of the police administrative hierarchy.
type Unit struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Level UnitLevel `json:"-"`
}

// UnitLevel names the layer of the hierarchy a unit belongs to.
type UnitLevel string

const (
	LevelDistrict      UnitLevel = "district"
	LevelSubDivision   UnitLevel = "sub_division"
	LevelPoliceStation UnitLevel = "police_station"
)

// UnitHierarchy is the response of the units endpoint.
type UnitHierarchy struct {
	Districts      []Unit `json:"districts"`
	SubDivisions   []Unit `json:"subDivisions"`
	PoliceStations []Unit `json:"policeStations"`
}

// Flatten returns every unit in one selectable list, districts first.
func (h UnitHierarchy) Flatten() []Unit {
	out := make([]Unit, 0, len(h.Districts)+len(h.SubDivisions)+len(h.PoliceStations))
	for _, group := range []struct {
		level UnitLevel
		units []Unit
	}{
		{LevelDistrict, h.Districts},
		{LevelSubDivision, h.SubDivisions},
		{LevelPoliceStation, h.PoliceStations},
	} {
		for _, u := range group.units {
			u.Level = group.level
			out = append(out, u)
		}
	}
	return out
}

// User is the officer profile returned at login.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// Session is an authenticated officer session.
type Session struct {
	ID        string
	Token     string
	User      User
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
