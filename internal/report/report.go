// Package report builds downloadable timesheets from a user's closed time entries.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/nadmax/bordo/internal/repository/models"
)

const DefaultRange = 7 * 24 * time.Hour

const dateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid time range")

type Store interface {
	ListTimesheet(ctx context.Context, userID string, from, to time.Time) ([]models.TimesheetRow, error)
}

type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange accepts RFC 3339 timestamps or plain dates. A missing end defaults to now
// and a missing start to DefaultRange before the end. A plain end date covers that
// whole day.
func ParseRange(from, to string, now time.Time) (Range, error) {
	var r Range
	var err error

	if to != "" {
		r.To, err = parseBound(to)
		if err != nil {
			return Range{}, fmt.Errorf("%w: invalid to: %v", ErrInvalidRange, err)
		}
		if len(to) == len(dateLayout) {
			r.To = r.To.Add(24 * time.Hour)
		}
	} else {
		r.To = now
	}

	if from != "" {
		r.From, err = parseBound(from)
		if err != nil {
			return Range{}, fmt.Errorf("%w: invalid from: %v", ErrInvalidRange, err)
		}
	} else {
		r.From = r.To.Add(-DefaultRange)
	}

	if !r.From.Before(r.To) {
		return Range{}, fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}

	return r, nil
}

func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Parse(dateLayout, s)
}

type TaskTotal struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title"`
	Sessions  int    `json:"sessions"`
	Minutes   int    `json:"minutes"`
}

type Timesheet struct {
	From         time.Time             `json:"from"`
	To           time.Time             `json:"to"`
	Entries      []models.TimesheetRow `json:"entries"`
	Totals       []TaskTotal           `json:"totals"`
	TotalMinutes int                   `json:"total_minutes"`
}

type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

func (g *Generator) Timesheet(ctx context.Context, userID string, r Range) (*Timesheet, error) {
	rows, err := g.store.ListTimesheet(ctx, userID, r.From, r.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}

	sheet := &Timesheet{
		From:    r.From,
		To:      r.To,
		Entries: rows,
		Totals:  totals(rows),
	}
	if sheet.Entries == nil {
		sheet.Entries = []models.TimesheetRow{}
	}
	for _, row := range rows {
		sheet.TotalMinutes += row.DurationMinutes
	}

	return sheet, nil
}

// totals groups rows by task, largest total first.
func totals(rows []models.TimesheetRow) []TaskTotal {
	byTask := make(map[string]*TaskTotal)
	order := []string{}

	for _, row := range rows {
		t, ok := byTask[row.TaskID]
		if !ok {
			t = &TaskTotal{TaskID: row.TaskID, TaskTitle: row.TaskTitle}
			byTask[row.TaskID] = t
			order = append(order, row.TaskID)
		}
		t.Sessions++
		t.Minutes += row.DurationMinutes
	}

	result := make([]TaskTotal, 0, len(order))
	for _, id := range order {
		result = append(result, *byTask[id])
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Minutes > result[j].Minutes })
	return result
}

// WriteCSV writes the entries table, a blank line, then the per-task totals table.
func (s *Timesheet) WriteCSV(w io.Writer) error {
	data := [][]string{
		{"Entry ID", "Task ID", "Task", "Started At", "Ended At", "Duration (min)"},
	}
	for _, row := range s.Entries {
		data = append(data, []string{
			row.EntryID,
			row.TaskID,
			row.TaskTitle,
			row.StartedAt.Format(time.RFC3339),
			row.EndedAt.Format(time.RFC3339),
			strconv.Itoa(row.DurationMinutes),
		})
	}

	data = append(data, []string{})
	data = append(data, []string{"Task ID", "Task", "Sessions", "Total (min)"})
	for _, t := range s.Totals {
		data = append(data, []string{t.TaskID, t.TaskTitle, strconv.Itoa(t.Sessions), strconv.Itoa(t.Minutes)})
	}
	data = append(data, []string{"", "Total", "", strconv.Itoa(s.TotalMinutes)})

	return csv.NewWriter(w).WriteAll(data)
}

func (s *Timesheet) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(map[string]any{
		"generated_at": time.Now().Format(time.RFC3339),
		"timesheet":    s,
	})
}

// Filename is the download name for the sheet in the given format.
func (s *Timesheet) Filename(format string) string {
	return fmt.Sprintf("bordo_timesheet_%s_%s.%s", s.From.Format("20060102"), s.To.Format("20060102"), format)
}
