package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/klokku/ritual/internal/rest"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Get godoc
// @Summary Current settings merged over defaults
// @Tags Settings
// @Produce json
// @Success 200 {object} AppSettings
// @Router /api/settings [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, h.service.Get(r.Context()))
}

// Update godoc
// @Summary Change some settings
// @Description A null value restores the default of that key.
// @Tags Settings
// @Accept json
// @Produce json
// @Success 200 {object} AppSettings
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/settings [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if !rest.DecodeBody(w, r, &patch) {
		return
	}
	updated, err := h.service.Update(r.Context(), patch)
	if err != nil {
		if errors.Is(err, ErrUnknownSetting) {
			rest.WriteError(w, http.StatusBadRequest, "Unknown setting", err.Error())
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rest.WriteJSON(w, http.StatusOK, updated)
}
