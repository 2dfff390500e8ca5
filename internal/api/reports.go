package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/report"
)

// timesheet serves the user's closed time entries as CSV, or JSON with format=json.
func (a *API) timesheet(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		httputil.WriteJSONError(w, fmt.Sprintf("unsupported format: %s (available: csv, json)", format), http.StatusBadRequest)
		return
	}

	rng, err := report.ParseRange(query.Get("from"), query.Get("to"), time.Now())
	if err != nil {
		if errors.Is(err, report.ErrInvalidRange) {
			httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sheet, err := a.cfg.Reports.Timesheet(r.Context(), user.ID, rng)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		err = sheet.WriteJSON(w)
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sheet.Filename(format)))
		err = sheet.WriteCSV(w)
	}

	if err != nil {
		log.Printf("Failed to write timesheet for %s: %v", user.ID, err)
	}
}
