// internal/api/handler/api/strategies.go
package api

import (
	"net/http"

	"github.com/newthinker/arena/internal/api/response"
	"github.com/newthinker/arena/internal/app"
)

// StrategyLister lists the strategies competitors may use.
type StrategyLister interface {
	StrategyInfos() []app.StrategyInfo
}

// StrategyHandler serves the strategy catalogue.
type StrategyHandler struct {
	lister StrategyLister
}

// NewStrategyHandler creates a new strategy handler.
func NewStrategyHandler(lister StrategyLister) *StrategyHandler {
	return &StrategyHandler{lister: lister}
}

// List returns every registered strategy with its tunable ranges.
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.lister.StrategyInfos()
	response.JSON(w, http.StatusOK, map[string]any{
		"strategies": infos,
		"count":      len(infos),
	})
}
