package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/middleware"
)

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := a.cfg.Auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrEmailTaken):
			httputil.WriteJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("Sign up failed: %v", err)
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httputil.WriteJSON(w, session, http.StatusCreated)
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := a.cfg.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
			return
		}

		log.Printf("Sign in failed: %v", err)
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, session, http.StatusOK)
}

func (a *API) signOut(w http.ResponseWriter, r *http.Request) {
	if err := a.cfg.Auth.SignOut(r.Context(), middleware.BearerToken(r)); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) session(w http.ResponseWriter, r *http.Request) {
	session, err := a.cfg.Auth.Session(r.Context(), middleware.BearerToken(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	httputil.WriteJSON(w, session, http.StatusOK)
}
