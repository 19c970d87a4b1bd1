// Package server is the portal's HTTP surface: the public feed, the report
// wizard, token tracking, officer login and the dashboard.
package server

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/citizenintel/portal/internal/config"
	"github.com/citizenintel/portal/internal/dashboard"
	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/citizenintel/portal/internal/notify"
	"github.com/citizenintel/portal/internal/session"
	"github.com/citizenintel/portal/internal/textfmt"
	"github.com/citizenintel/portal/internal/track"
	"github.com/citizenintel/portal/internal/units"
	"github.com/citizenintel/portal/internal/wizard"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// maxRequestBody bounds every request body; a full draft plus form fields.
const maxRequestBody = wizard.MaxDraftSize + 1<<20

// Deps are the collaborators a Server is built from.
type Deps struct {
	API      *leadsapi.Client
	Sessions *session.Manager
	Notifier *notify.Notifier
	Tabs     feed.Tabs
	Logger   *zap.Logger
}

// Server is the main HTTP server for the portal.
type Server struct {
	config    *config.Config
	api       *leadsapi.Client
	sessions  *session.Manager
	notifier  *notify.Notifier
	tracker   *track.Tracker
	units     *units.Directory
	dashboard *dashboard.Handler
	visitors  *visitorRegistry
	tabs      feed.Tabs
	enrichers []feed.Enricher
	templates *template.Template
	staticFS  fs.FS
	rl        *RateLimiter
	router    chi.Router
	logger    *zap.Logger

	background sync.WaitGroup
}

// NewServer creates a Server from the given config, collaborators and
// filesystem assets.
func NewServer(cfg *config.Config, deps Deps, templatesFS fs.FS, staticFS fs.FS) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tabs := deps.Tabs
	if tabs == nil {
		tabs = feed.DefaultTabs()
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, err
	}

	rlCfg := DefaultRateLimiterConfig()
	rlCfg.GeneralRequestsPerMin = cfg.RateLimit

	s := &Server{
		config:    cfg,
		api:       deps.API,
		sessions:  deps.Sessions,
		notifier:  deps.Notifier,
		tracker:   track.New(deps.API, logger.Named("track")),
		units:     units.NewDirectory(deps.API, cfg.UnitsTTL, logger.Named("units")),
		tabs:      tabs,
		templates: tmpl,
		staticFS:  staticFS,
		rl:        NewRateLimiter(rlCfg),
		logger:    logger,
	}

	s.enrichers = []feed.Enricher{feed.PinFirst}
	if cfg.DemoEnrich {
		s.enrichers = append(s.enrichers, feed.DemoCounts{Min: 5, Spread: 50})
	}
	s.visitors = newVisitorRegistry(cfg.VisitorTTL, cfg.Secure(), s.newFeed, s.newWizard)
	s.dashboard = dashboard.NewHandler(
		dashboard.NewService(s.units, logger.Named("dashboard")),
		func(token string) dashboard.Officer { return s.api.WithToken(token) },
		tmpl,
		SessionFromContext,
		CSRFTokenFromContext,
		logger.Named("dashboard"),
	)

	s.router = s.routes()
	return s, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"hashtags": textfmt.Tokenize,
		"timeAgo": func(ts model.Timestamp) string {
			if ts.IsZero() {
				return ""
			}
			return textfmt.TimeAgo(ts.Time, time.Now())
		},
		"isFallback": wizard.IsFallbackToken,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger.Named("http")))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware)
	r.Use(chimw.RequestSize(maxRequestBody))
	r.Use(IPRateLimitMiddleware(s.rl))

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS))))
	r.Get("/healthz", s.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(CSRFMiddleware([]byte(s.config.SessionSecret), s.config.Secure()))
		r.Use(s.SessionMiddleware)

		r.Get("/login", s.HandleLoginPage)
		r.Post("/login", s.HandleLogin)
		r.Post("/logout", s.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession)
			s.dashboard.Routes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.visitors.Middleware)

			r.Get("/", s.HandleIndex)
			r.Get("/leads/{leadID}", s.HandleLead)
			r.Get("/track", s.HandleTrack)

			r.Route("/api/feed", func(r chi.Router) {
				if len(s.config.CORSOrigins) > 0 {
					r.Use(cors.Handler(cors.Options{
						AllowedOrigins:   s.config.CORSOrigins,
						AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
						AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName, "X-Request-ID"},
						ExposedHeaders:   []string{"X-Request-ID"},
						AllowCredentials: true,
						MaxAge:           300,
					}))
				}
				r.Get("/", s.HandleFeed)
				r.Post("/filter", s.HandleFeedFilter)
				r.Post("/search", s.HandleFeedSearch)
				r.Post("/more", s.HandleFeedMore)
				r.With(ReportRateLimitMiddleware(s.rl)).Post("/leads/{leadID}/vote", s.HandleVote)
			})

			r.Get("/report", s.HandleReport)
			r.Post("/report/step", s.HandleReportStep)
			r.Post("/report/files", s.HandleReportFiles)
			r.Post("/report/files/{index}/delete", s.HandleReportFileDelete)
			r.With(ReportRateLimitMiddleware(s.rl)).Post("/report/submit", s.HandleReportSubmit)
			r.With(ReportRateLimitMiddleware(s.rl)).Post("/quick-report", s.HandleQuickReport)
		})
	})

	return r
}

func (s *Server) newFeed() *feed.Controller {
	var c *feed.Controller
	c = feed.NewController(s.api, feed.Options{
		Tabs:      s.tabs,
		Enrichers: s.enrichers,
		Logger:    s.logger.Named("feed"),
		OnSettle: func() {
			ctx, cancel := context.WithTimeout(context.Background(), leadsapi.DefaultTimeout)
			defer cancel()
			_, _ = c.FetchPage(ctx)
		},
	})
	return c
}

func (s *Server) newWizard() *wizard.Wizard {
	return wizard.New(s.api, wizard.Options{
		Logger:      s.logger.Named("wizard"),
		OnSubmitted: s.sendReceipt,
	})
}

// sendReceipt emails named reporters their genuine tracking token in the
// background.
func (s *Server) sendReceipt(ctx context.Context, res wizard.Result) {
	if res.Fallback != wizard.FallbackNone || res.Details.IdentityMode != model.IdentityNamed || !s.notifier.Enabled() {
		return
	}
	receipt := notify.Receipt{
		Name:    res.Details.Name,
		Contact: res.Details.Contact,
		Title:   res.Details.Title,
		Token:   res.Token,
	}
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_, _ = s.notifier.Send(ctx, receipt)
	}()
}

// SweepTasks registers the server's periodic cleanup with sw.
func (s *Server) SweepTasks(sw *session.Sweeper) {
	sw.Add("visitors", s.visitors.Sweep)
	sw.Add("ratelimit", s.rl.Sweep)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop waits for background receipt emails to finish.
func (s *Server) Stop() {
	s.background.Wait()
}

// HandleHealth answers load balancer probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// render executes a template with common data.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	data["Session"] = SessionFromContext(r.Context())
	data["CSRFToken"] = CSRFTokenFromContext(r.Context())

	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
