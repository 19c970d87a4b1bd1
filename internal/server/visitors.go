package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/citizenintel/portal/internal/cache"
	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/wizard"
	"github.com/google/uuid"
)

const visitorCookieName = "visitor_id"

// visitor is the UI state of one browser: its feed and its report draft.
type visitor struct {
	id   string
	feed *feed.Controller

	mu     sync.Mutex
	wizard *wizard.Wizard
}

// Wizard returns the visitor's current report draft.
func (v *visitor) Wizard() *wizard.Wizard {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wizard
}

// resetWizard replaces the draft with a fresh one. A draft whose submission
// is in flight is kept so its token is not lost; the bool reports whether a
// fresh draft was started.
func (v *visitor) resetWizard(newWizard func() *wizard.Wizard) (*wizard.Wizard, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.wizard != nil && v.wizard.View().Submitting {
		return v.wizard, false
	}
	v.wizard = newWizard()
	return v.wizard, true
}

// visitorRegistry keeps visitors in memory for a sliding TTL.
type visitorRegistry struct {
	visitors  *cache.TTL[string, *visitor]
	newFeed   func() *feed.Controller
	newWizard func() *wizard.Wizard
	ttl       time.Duration
	secure    bool
}

func newVisitorRegistry(ttl time.Duration, secure bool, newFeed func() *feed.Controller, newWizard func() *wizard.Wizard) *visitorRegistry {
	return &visitorRegistry{
		visitors:  cache.New[string, *visitor](ttl),
		newFeed:   newFeed,
		newWizard: newWizard,
		ttl:       ttl,
		secure:    secure,
	}
}

// Middleware attaches the visitor to the request context, creating one
// when the cookie is missing or its visitor was swept.
func (vr *visitorRegistry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v *visitor
		if c, err := r.Cookie(visitorCookieName); err == nil {
			v, _ = vr.visitors.Get(c.Value)
		}
		if v == nil {
			v = &visitor{
				id:     uuid.NewString(),
				feed:   vr.newFeed(),
				wizard: vr.newWizard(),
			}
		}
		vr.visitors.Set(v.id, v)
		http.SetCookie(w, &http.Cookie{
			Name:     visitorCookieName,
			Value:    v.id,
			Path:     "/",
			MaxAge:   int(vr.ttl.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   vr.secure,
		})
		next.ServeHTTP(w, r.WithContext(withVisitor(r.Context(), v)))
	})
}

// Sweep drops visitors idle past the TTL and stops their search timers.
func (vr *visitorRegistry) Sweep(_ context.Context, now time.Time) (int, error) {
	gone := vr.visitors.Purge(now)
	for _, v := range gone {
		v.feed.Close()
	}
	return len(gone), nil
}

// Len returns the number of live visitors.
func (vr *visitorRegistry) Len() int {
	return vr.visitors.Len()
}
