package backup

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/klokku/ritual/internal/rest"
	"github.com/klokku/ritual/internal/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Export godoc
// @Summary Download a backup of routines, execution states and settings
// @Tags Backup
// @Produce json
// @Success 200 {object} BackupData
// @Router /api/backup [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Export(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("ritual-backup-%s.json", data.ExportedAt.Format(utils.DateLayout))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	rest.WriteJSON(w, http.StatusOK, data)
}

// Import godoc
// @Summary Restore a backup
// @Tags Backup
// @Accept json
// @Produce json
// @Param backup body BackupData true "Backup document"
// @Success 200 {object} ImportResult
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/backup [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := Decode(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.service.Import(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidBackup) {
		rest.WriteError(w, http.StatusBadRequest, "Invalid backup", err.Error())
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
