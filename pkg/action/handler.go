package action

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/rest"
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
	"github.com/klokku/ritual/pkg/routine"
)

type DailyActionsDTO struct {
	Date     string            `json:"date"`
	Actions  []DailyAction     `json:"actions"`
	State    interaction.State `json:"state"`
	Progress progress.Progress `json:"progress"`
}

type Handler struct {
	service Service
	today   func(ctx context.Context) string
}

func NewHandler(service Service, today func(ctx context.Context) string) *Handler {
	return &Handler{service: service, today: today}
}

func (h *Handler) params(r *http.Request) (date, actionId string) {
	vars := mux.Vars(r)
	date = vars["date"]
	if date == "today" {
		date = h.today(r.Context())
	}
	return date, vars["actionId"]
}

// Get godoc
// @Summary Actions picked for a date
// @Tags Actions
// @Produce json
// @Param date path string true "Date as YYYY-MM-DD or today"
// @Success 200 {object} DailyActionsDTO
// @Router /api/actions/{date} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	date, _ := h.params(r)
	h.respond(w)(h.service.Get(r.Context(), date))
}

type addRequest struct {
	RoutineId string   `json:"routineId"`
	ItemId    string   `json:"itemId"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
}

// Add godoc
// @Summary Add an action, copied from a routine item or written ad hoc
// @Tags Actions
// @Accept json
// @Produce json
// @Param action body addRequest true "Routine item reference or custom title"
// @Success 201 {object} DailyAction
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/actions/{date} [post]
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	date, _ := h.params(r)
	var body addRequest
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	var (
		created DailyAction
		err     error
	)
	if body.RoutineId != "" || body.ItemId != "" {
		created, err = h.service.AddFromRoutine(r.Context(), date, body.RoutineId, body.ItemId)
	} else {
		created, err = h.service.AddCustom(r.Context(), date, body.Title, body.Tags)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, created)
}

// Remove godoc
// @Summary Remove an action with its annotations
// @Tags Actions
// @Success 204
// @Router /api/actions/{date}/{actionId} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	date, actionId := h.params(r)
	if err := h.service.Remove(r.Context(), date, actionId); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRequest struct {
	Title  *string   `json:"title"`
	Tags   *[]string `json:"tags"`
	Weight *float64  `json:"weight"`
}

// Update godoc
// @Summary Rename, retag or reweight an action
// @Tags Actions
// @Accept json
// @Produce json
// @Param action body updateRequest true "Fields to change"
// @Success 200 {object} DailyAction
// @Router /api/actions/{date}/{actionId} [patch]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	date, actionId := h.params(r)
	var body updateRequest
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	var (
		updated DailyAction
		err     error
	)
	if body.Title != nil {
		if updated, err = h.service.Rename(r.Context(), date, actionId, *body.Title); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Tags != nil {
		if updated, err = h.service.SetTags(r.Context(), date, actionId, *body.Tags); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Weight != nil {
		if updated, err = h.service.SetWeight(r.Context(), date, actionId, *body.Weight); err != nil {
			writeError(w, err)
			return
		}
	}
	if updated.Id == "" {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request", "nothing to update")
		return
	}
	rest.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	date, actionId := h.params(r)
	h.respond(w)(h.service.Toggle(r.Context(), date, actionId))
}

func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	date, actionId := h.params(r)
	h.respond(w)(h.service.StartTimer(r.Context(), date, actionId))
}

func (h *Handler) StopTimer(w http.ResponseWriter, r *http.Request) {
	date, _ := h.params(r)
	complete := r.URL.Query().Get("complete") == "true"
	h.respond(w)(h.service.StopTimer(r.Context(), date, complete))
}

func (h *Handler) SetMood(w http.ResponseWriter, r *http.Request) {
	date, actionId := h.params(r)
	var body struct {
		Mood interaction.Mood `json:"mood"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w)(h.service.SetMood(r.Context(), date, actionId, body.Mood))
}

func (h *Handler) respond(w http.ResponseWriter) func(Snapshot, error) {
	return func(snapshot Snapshot, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		rest.WriteJSON(w, http.StatusOK, ToDTO(snapshot))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrActionNotFound), errors.Is(err, routine.ErrRoutineNotFound), errors.Is(err, routine.ErrItemNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidDate):
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "Date must be in YYYY-MM-DD format")
	case errors.Is(err, ErrEmptyTitle), errors.Is(err, interaction.ErrInvalidMood), errors.Is(err, interaction.ErrEmptyItemId):
		rest.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ToDTO(s Snapshot) DailyActionsDTO {
	return DailyActionsDTO{
		Date:     s.Date,
		Actions:  s.Actions.Actions,
		State:    s.Actions.State,
		Progress: s.Progress,
	}
}
