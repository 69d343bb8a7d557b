// internal/api/handler/api/evolution.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/arena/internal/api/job"
	"github.com/newthinker/arena/internal/api/response"
	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/evolution"
	"go.uber.org/zap"
)

const (
	evolutionJobType = "evolution"
	evolutionTimeout = 30 * time.Minute
)

// Evolver defines the interface needed to run evolution jobs.
type Evolver interface {
	Evolve(ctx context.Context, req app.EvolutionRequest, report func(evolution.Report)) (*app.EvolutionResult, error)
}

// EvolutionRequest is the request body for starting an evolution job.
type EvolutionRequest struct {
	BaseStrategy       string            `json:"base_strategy"`
	Markets            []string          `json:"markets,omitempty"`
	Generations        int               `json:"generations,omitempty"`
	EvaluationDuration string            `json:"evaluation_duration,omitempty"` // e.g. "30s"
	Config             *evolution.Config `json:"config,omitempty"`
}

func (req EvolutionRequest) toApp() (app.EvolutionRequest, error) {
	out := app.EvolutionRequest{
		BaseStrategy: req.BaseStrategy,
		Markets:      req.Markets,
		Generations:  req.Generations,
		Config:       req.Config,
	}
	if req.EvaluationDuration != "" {
		d, err := time.ParseDuration(req.EvaluationDuration)
		if err != nil {
			return out, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("evaluation_duration: %w", err))
		}
		out.EvaluationDuration = d
	}
	return out, nil
}

// EvolutionHandler runs evolution searches as async jobs.
type EvolutionHandler struct {
	jobStore           *job.Store
	evolver            Evolver
	defaultGenerations int
	logger             *zap.Logger
}

// NewEvolutionHandler creates a new evolution handler. defaultGenerations
// is used for progress when a request leaves generations unset.
func NewEvolutionHandler(jobStore *job.Store, evolver Evolver, defaultGenerations int, logger *zap.Logger) *EvolutionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvolutionHandler{
		jobStore:           jobStore,
		evolver:            evolver,
		defaultGenerations: defaultGenerations,
		logger:             logger,
	}
}

// Create starts a new evolution job.
func (h *EvolutionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body EvolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	req, err := body.toApp()
	if err != nil {
		response.Fail(w, err)
		return
	}
	if req.Generations < 0 {
		response.Fail(w, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("generations must be positive, got %d", req.Generations)))
		return
	}

	j := h.jobStore.Create(evolutionJobType)

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	go h.run(jobID, req)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// run executes the search and keeps the job current.
func (h *EvolutionHandler) run(jobID string, req app.EvolutionRequest) {
	logger := h.logger.With(zap.String("job", jobID))

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	total := req.Generations
	if total == 0 {
		total = h.defaultGenerations
	}

	ctx, cancel := context.WithTimeout(context.Background(), evolutionTimeout)
	defer cancel()

	done := 0
	res, err := h.evolver.Evolve(ctx, req, func(evolution.Report) {
		done++
		progress := 0
		if total > 0 {
			progress = min(done*100/total, 99)
		}
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Progress = progress
		})
	})
	if err != nil {
		logger.Warn("evolution job failed", zap.Error(err))
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	logger.Info("evolution job complete", zap.String("best", res.Best.Name))
	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = res
	})
}

// asCoreError keeps a core error's code, wrapping anything else.
func asCoreError(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.WrapError(core.ErrStrategyFailed, err)
}

// Get returns the status of an evolution job.
func (h *EvolutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(r.PathValue("jobID"))
	if err != nil || j.Type != evolutionJobType {
		if err == nil {
			err = core.WrapError(core.ErrJobNotFound, fmt.Errorf("%q", r.PathValue("jobID")))
		}
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}
	switch j.Status {
	case job.StatusComplete:
		resp["result"] = j.Result
	case job.StatusFailed:
		resp["error"] = response.Detail(j.Error)
	}

	response.JSON(w, http.StatusOK, resp)
}
