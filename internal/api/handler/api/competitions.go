// internal/api/handler/api/competitions.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/arena/internal/api/response"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/config"
	"github.com/newthinker/arena/internal/core"
)

// stopTimeout bounds waiting for a competition's loops after Stop.
const stopTimeout = 10 * time.Second

// CompetitionApp defines the interface needed from app.Arena.
type CompetitionApp interface {
	CreateCompetition(spec config.CompetitionSpec) (*competition.Engine, error)
	Competitions() []competition.StatusReport
	RegisterCompetitor(id string, spec config.CompetitorSpec) error
	UnregisterCompetitor(id, competitorID string) error
	Start(ctx context.Context, id string) error
	Pause(id string) error
	Resume(id string) error
	Stop(ctx context.Context, id string) (*competition.Result, error)
	Leaderboard(id string) ([]competition.LeaderboardEntry, error)
	Status(id string) (competition.StatusReport, error)
	Competitor(id, competitorID string) (competition.CompetitorDetail, error)
	Result(id string) (*competition.Result, error)
}

// CompetitionHandler handles competition API requests.
type CompetitionHandler struct {
	app CompetitionApp
}

// NewCompetitionHandler creates a new competition handler.
func NewCompetitionHandler(app CompetitionApp) *CompetitionHandler {
	return &CompetitionHandler{app: app}
}

// CreateRequest is the request body for creating a competition.
type CreateRequest struct {
	Name                 string                  `json:"name"`
	Mode                 string                  `json:"mode,omitempty"`
	Duration             string                  `json:"duration,omitempty"` // e.g. "15m"
	EliminationThreshold float64                 `json:"elimination_threshold,omitempty"`
	Markets              []string                `json:"markets"`
	StartingBalance      float64                 `json:"starting_balance,omitempty"`
	Competitors          []config.CompetitorSpec `json:"competitors,omitempty"`
}

func (req CreateRequest) spec() (config.CompetitionSpec, error) {
	spec := config.CompetitionSpec{
		Name:                 req.Name,
		Mode:                 req.Mode,
		EliminationThreshold: req.EliminationThreshold,
		Markets:              req.Markets,
		StartingBalance:      req.StartingBalance,
		Competitors:          req.Competitors,
	}
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			return spec, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duration: %w", err))
		}
		spec.Duration = d
	}
	return spec, nil
}

// Create creates an idle competition.
func (h *CompetitionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	spec, err := req.spec()
	if err != nil {
		response.Fail(w, err)
		return
	}

	e, err := h.app.CreateCompetition(spec)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, e.Status())
}

// List returns every competition's status.
func (h *CompetitionHandler) List(w http.ResponseWriter, r *http.Request) {
	reports := h.app.Competitions()
	response.JSON(w, http.StatusOK, map[string]any{
		"competitions": reports,
		"count":        len(reports),
	})
}

// Register adds a competitor to an idle competition.
func (h *CompetitionHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var spec config.CompetitorSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	if err := h.app.RegisterCompetitor(id, spec); err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{
		"competition_id": id,
		"competitor_id":  spec.ID,
		"registered":     true,
	})
}

// Unregister removes a competitor from an idle competition.
func (h *CompetitionHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id, cid := r.PathValue("id"), r.PathValue("cid")

	if err := h.app.UnregisterCompetitor(id, cid); err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"competition_id": id,
		"competitor_id":  cid,
		"removed":        true,
	})
}

// Start starts a competition.
func (h *CompetitionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id string) error {
		return h.app.Start(r.Context(), id)
	})
}

// Pause pauses a running competition.
func (h *CompetitionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.Pause)
}

// Resume resumes a paused competition.
func (h *CompetitionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.app.Resume)
}

func (h *CompetitionHandler) transition(w http.ResponseWriter, r *http.Request, fn func(id string) error) {
	id := r.PathValue("id")
	if err := fn(id); err != nil {
		response.Fail(w, err)
		return
	}

	status, err := h.app.Status(id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, status)
}

// Stop finishes a competition and returns its result.
func (h *CompetitionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	res, err := h.app.Stop(ctx, r.PathValue("id"))
	if err != nil && res == nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Leaderboard returns the current ranking.
func (h *CompetitionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Leaderboard(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	if entries == nil {
		entries = []competition.LeaderboardEntry{}
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
		"count":       len(entries),
	})
}

// Status returns the lifecycle state and timing.
func (h *CompetitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.app.Status(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, status)
}

// Competitor returns one competitor's detail.
func (h *CompetitionHandler) Competitor(w http.ResponseWriter, r *http.Request) {
	detail, err := h.app.Competitor(r.PathValue("id"), r.PathValue("cid"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}

// Result returns the final result of a finished competition.
func (h *CompetitionHandler) Result(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Result(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}
