package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/httputil"
)

// breakDownTask is the synchronous decomposition endpoint. Client errors are 400 and
// everything else is 500 with the failure's message.
func (a *API) breakDownTask(w http.ResponseWriter, r *http.Request) {
	var req decompose.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	subtasks, err := a.cfg.Decomposer.BreakDown(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, decompose.ErrInvalidRequest):
			httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, decompose.ErrTaskNotFound):
			httputil.WriteJSONError(w, err.Error(), http.StatusNotFound)
		default:
			log.Printf("Error in break-down-task: %v", err)
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httputil.WriteJSON(w, decompose.NewResponse(subtasks), http.StatusOK)
}
