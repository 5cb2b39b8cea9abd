package execution

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

type ExecutionStateDTO struct {
	RoutineId string            `json:"routineId"`
	Date      string            `json:"date"`
	State     interaction.State `json:"state"`
	Progress  progress.Progress `json:"progress"`
}

type Handler struct {
	service Service
	// today resolves the "today" date alias.
	today func(ctx context.Context) string
}

func NewHandler(service Service, today func(ctx context.Context) string) *Handler {
	return &Handler{service: service, today: today}
}

func (h *Handler) params(r *http.Request) (routineId, date, itemId string) {
	vars := mux.Vars(r)
	date = vars["date"]
	if date == "today" {
		date = h.today(r.Context())
	}
	return vars["routineId"], date, vars["itemId"]
}

// Get godoc
// @Summary Execution state of a routine on a date
// @Tags Execution
// @Produce json
// @Param routineId path string true "Routine ID"
// @Param date path string true "Date as YYYY-MM-DD or today"
// @Success 200 {object} ExecutionStateDTO
// @Router /api/executions/{routineId}/{date} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	routineId, date, _ := h.params(r)
	h.respond(w)(h.service.Get(r.Context(), routineId, date))
}

// Toggle godoc
// @Summary Check or uncheck an item
// @Tags Execution
// @Produce json
// @Success 200 {object} ExecutionStateDTO
// @Router /api/executions/{routineId}/{date}/items/{itemId}/toggle [post]
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	h.respond(w)(h.service.Toggle(r.Context(), routineId, date, itemId))
}

// SetWeight godoc
// @Summary Override the weight of items sharing this item's title
// @Tags Execution
// @Accept json
// @Produce json
// @Param weight body object{weight=number} true "Weight"
// @Success 200 {object} ExecutionStateDTO
// @Router /api/executions/{routineId}/{date}/items/{itemId}/weight [put]
func (h *Handler) SetWeight(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	var body struct {
		Weight float64 `json:"weight"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w)(h.service.SetWeight(r.Context(), routineId, date, itemId, body.Weight))
}

func (h *Handler) ClearWeight(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	h.respond(w)(h.service.ClearWeight(r.Context(), routineId, date, itemId))
}

func (h *Handler) StartTimer(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	h.respond(w)(h.service.StartTimer(r.Context(), routineId, date, itemId))
}

// StopTimer godoc
// @Summary Stop the running timer
// @Tags Execution
// @Param complete query bool false "Also check the timed item"
// @Success 200 {object} ExecutionStateDTO
// @Router /api/executions/{routineId}/{date}/timer [delete]
func (h *Handler) StopTimer(w http.ResponseWriter, r *http.Request) {
	routineId, date, _ := h.params(r)
	complete := r.URL.Query().Get("complete") == "true"
	h.respond(w)(h.service.StopTimer(r.Context(), routineId, date, complete))
}

func (h *Handler) SetMood(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	var body struct {
		Mood interaction.Mood `json:"mood"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w)(h.service.SetMood(r.Context(), routineId, date, itemId, body.Mood))
}

func (h *Handler) SetReflection(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	var body struct {
		Text string `json:"text"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w)(h.service.SetReflection(r.Context(), routineId, date, itemId, body.Text))
}

func (h *Handler) SetDeclined(w http.ResponseWriter, r *http.Request) {
	routineId, date, itemId := h.params(r)
	var body struct {
		Note string `json:"note"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w)(h.service.SetDeclined(r.Context(), routineId, date, itemId, body.Note))
}

func (h *Handler) DismissSuggestion(w http.ResponseWriter, r *http.Request) {
	routineId, date, _ := h.params(r)
	h.respond(w)(h.service.DismissSuggestion(r.Context(), routineId, date, mux.Vars(r)["suggestionId"]))
}

func (h *Handler) respond(w http.ResponseWriter) func(ExecutionState, error) {
	return func(state ExecutionState, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		rest.WriteJSON(w, http.StatusOK, ToDTO(state))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routine.ErrRoutineNotFound), errors.Is(err, routine.ErrItemNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidDate):
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "Date must be in YYYY-MM-DD format")
	case errors.Is(err, interaction.ErrInvalidMood), errors.Is(err, ErrNotMental), errors.Is(err, interaction.ErrEmptyItemId):
		rest.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ToDTO(s ExecutionState) ExecutionStateDTO {
	return ExecutionStateDTO{
		RoutineId: s.RoutineId,
		Date:      s.Date,
		State:     s.State,
		Progress:  s.Progress,
	}
}
