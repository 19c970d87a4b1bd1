package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/citizenintel/portal/internal/session"
	"go.uber.org/zap"
)

const sessionCookieName = "session_id"

// SessionMiddleware reads the session cookie, resolves the officer session,
// and injects it into the request context.
func (s *Server) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.sessions.Get(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
				s.logger.Error("load session", zap.Error(err))
			}
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// RequireSession redirects requests without an officer session to the
// login page.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleLoginPage renders the officer login form.
func (s *Server) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if SessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	data := map[string]any{}
	if r.URL.Query().Get("expired") != "" {
		data["Error"] = "Your session has expired. Please sign in again."
	}
	s.render(w, r, "login.html", data)
}

// HandleLogin handles POST /login.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	sess, err := s.sessions.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		msg := "Login failed. Try again shortly."
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			msg, status = "Invalid email or password.", http.StatusUnauthorized
		case errors.Is(err, session.ErrTokenExpired):
			msg, status = "The server issued an expired token. Try again.", http.StatusUnauthorized
		default:
			s.logger.Error("officer login", zap.Error(err))
		}
		w.WriteHeader(status)
		s.render(w, r, "login.html", map[string]any{"Error": msg, "Email": email})
		return
	}

	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   s.config.Secure(),
	})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// HandleLogout handles POST /logout.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		if err := s.sessions.Logout(r.Context(), c.Value); err != nil {
			s.logger.Warn("logout", zap.Error(err))
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
