package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/friends"
	"github.com/nadmax/bordo/internal/httputil"
)

type AddFriendRequest struct {
	Email string `json:"email"`
}

func (a *API) listFriends(w http.ResponseWriter, r *http.Request) {
	list, err := a.cfg.Friends.List(r.Context())
	if err != nil {
		writeFriendError(w, err)
		return
	}

	httputil.WriteJSON(w, list, http.StatusOK)
}

func (a *API) addFriend(w http.ResponseWriter, r *http.Request) {
	var req AddFriendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Email) == "" {
		httputil.WriteJSONError(w, "Email is required", http.StatusBadRequest)
		return
	}

	friend, err := a.cfg.Friends.Add(r.Context(), req.Email)
	if err != nil {
		writeFriendError(w, err)
		return
	}

	httputil.WriteJSON(w, friend, http.StatusCreated)
}

func writeFriendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, friends.ErrUserNotFound):
		httputil.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, friends.ErrSelf):
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, friends.ErrAlreadyFriends):
		httputil.WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, auth.ErrUnauthenticated):
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
	default:
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
