// internal/api/handler/api/results.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/arena/internal/api/response"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/storage/result"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 200
)

// ResultHandler serves finished competition results.
type ResultHandler struct {
	store result.Store
}

// NewResultHandler creates a new result handler.
func NewResultHandler(store result.Store) *ResultHandler {
	return &ResultHandler{store: store}
}

// List returns stored results, most recent first.
// Query params: mode, winner, from, to (RFC 3339), limit, offset.
func (h *ResultHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseResultFilter(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	results, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	if results == nil {
		results = []competition.Result{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
		"total":   total,
	})
}

// Get returns one stored result by competition id.
func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func parseResultFilter(r *http.Request) (result.ListFilter, error) {
	q := r.URL.Query()
	filter := result.ListFilter{
		Mode:     competition.Mode(q.Get("mode")),
		WinnerID: q.Get("winner"),
		Limit:    defaultResultLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("limit %q: want a positive integer", v)
		}
		filter.Limit = min(n, maxResultLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("offset %q: want a non-negative integer", v)
		}
		filter.Offset = n
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	return filter, nil
}
