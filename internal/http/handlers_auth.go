package http

import (
	"errors"
	"net/http"

	"neovest/internal/auth"
	applog "neovest/internal/log"
)

type authFormView struct {
	Title       string
	Email       string
	DisplayName string
	Error       string
	MinPassword int
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	view := authFormView{Title: "Sign in", MinPassword: auth.MinPasswordLen}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.render(w, r, "signin", view)
		return
	case http.MethodPost:
	default:
		MethodNotAllowedError("GET, POST").Write(w)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	view.Email = sanitizeInput(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	sess, err := s.auth.SignIn(r.Context(), view.Email, password)
	if err != nil {
		status := http.StatusUnauthorized
		view.Error = "Incorrect email or password."
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
			view.Error = "Sign in is unavailable right now. Please try again."
			s.structured.LogError(r.Context(), "Sign in failed", err,
				applog.ComponentAuth, applog.OpSignIn,
				applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		}
		s.renderStatus(w, r, status, "signin", view)
		return
	}

	s.metrics.signIns.Add(1)
	auth.SetSessionCookie(w, sess, s.secure)
	s.redirectHome(w, r)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	view := authFormView{Title: "Create account", MinPassword: auth.MinPasswordLen}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.render(w, r, "signup", view)
		return
	case http.MethodPost:
	default:
		MethodNotAllowedError("GET, POST").Write(w)
		return
	}

	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	view.Email = sanitizeInput(r.PostForm.Get("email"))
	view.DisplayName = sanitizeInput(r.PostForm.Get("display_name"))
	password := r.PostForm.Get("password")

	if _, err := s.auth.SignUp(r.Context(), view.Email, password, view.DisplayName); err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			view.Error = "Please enter a valid email address."
		case errors.Is(err, auth.ErrWeakPassword):
			view.Error = "Password must be at least 8 characters."
		case errors.Is(err, auth.ErrEmailTaken):
			status = http.StatusConflict
			view.Error = "An account with this email already exists."
		default:
			status = http.StatusInternalServerError
			view.Error = "Could not create your account. Please try again."
			s.structured.LogError(r.Context(), "Sign up failed", err,
				applog.ComponentAuth, applog.OpSignUp,
				applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		}
		s.renderStatus(w, r, status, "signup", view)
		return
	}

	sess, err := s.auth.SignIn(r.Context(), view.Email, password)
	if err != nil {
		s.structured.LogError(r.Context(), "Sign in after sign up failed", err,
			applog.ComponentAuth, applog.OpSignIn, nil)
		http.Redirect(w, r, signInPath, http.StatusSeeOther)
		return
	}
	s.metrics.signIns.Add(1)
	auth.SetSessionCookie(w, sess, s.secure)
	s.redirectHome(w, r)
}

// handleSignOut revokes the session (if any) and always clears the cookie.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if token := auth.TokenFromRequest(r); token != "" {
		if err := s.auth.SignOut(r.Context(), token); err != nil && !errors.Is(err, auth.ErrInvalidToken) {
			s.structured.LogError(r.Context(), "Sign out failed", err,
				applog.ComponentAuth, applog.OpSignOut, nil)
		}
	}
	auth.ClearSessionCookie(w, s.secure)

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", signInPath)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, signInPath, http.StatusSeeOther)
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
