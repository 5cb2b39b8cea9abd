package cloudsync

import (
	"net/http"

	"github.com/klokku/ritual/internal/rest"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Status godoc
// @Summary Cloud sync state
// @Tags Sync
// @Produce json
// @Success 200 {object} Status
// @Router /api/sync [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, h.engine.Status())
}

// Flush godoc
// @Summary Push pending writes and retry queued rows now
// @Tags Sync
// @Produce json
// @Success 200 {object} Status
// @Router /api/sync/flush [post]
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	h.engine.FlushPending()
	h.engine.FlushQueue(r.Context())
	rest.WriteJSON(w, http.StatusOK, h.engine.Status())
}
