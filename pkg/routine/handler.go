package routine

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/rest"
)

type RoutineDTO struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Text      string         `json:"text"`
	Phases    []RoutinePhase `json:"phases"`
	Color     string         `json:"color,omitempty"`
	Memo      string         `json:"memo,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// List godoc
// @Summary List routines
// @Tags Routine
// @Produce json
// @Success 200 {array} RoutineDTO
// @Router /api/routines [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	routines, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	dtos := make([]RoutineDTO, 0, len(routines))
	for _, routine := range routines {
		dtos = append(dtos, ToDTO(routine))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// Get godoc
// @Summary Get a routine
// @Tags Routine
// @Produce json
// @Param id path string true "Routine ID"
// @Success 200 {object} RoutineDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/routines/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	routine, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(routine))
}

// Create godoc
// @Summary Create a routine from its text
// @Tags Routine
// @Accept json
// @Produce json
// @Param routine body object{name=string,text=string,color=string,memo=string} true "Routine"
// @Success 201 {object} RoutineDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/routines [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Text  string `json:"text"`
		Color string `json:"color"`
		Memo  string `json:"memo"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	routine, err := h.service.Create(r.Context(), body.Name, body.Text, body.Color, body.Memo)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ToDTO(routine))
}

// Update godoc
// @Summary Update a routine
// @Description Fields left out of the body keep their value. Changing the text regenerates the phases.
// @Tags Routine
// @Accept json
// @Produce json
// @Param id path string true "Routine ID"
// @Param routine body object{name=string,text=string,color=string,memo=string} true "Changes"
// @Success 200 {object} RoutineDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/routines/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  *string `json:"name"`
		Text  *string `json:"text"`
		Color *string `json:"color"`
		Memo  *string `json:"memo"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	routine, err := h.service.Update(r.Context(), mux.Vars(r)["id"], Update{
		Name:  body.Name,
		Text:  body.Text,
		Color: body.Color,
		Memo:  body.Memo,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(routine))
}

// Delete godoc
// @Summary Delete a routine
// @Tags Routine
// @Param id path string true "Routine ID"
// @Success 204
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/routines/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview godoc
// @Summary Parse routine text without storing it
// @Tags Routine
// @Accept json
// @Produce json
// @Param text body object{text=string} true "Routine text"
// @Success 200 {array} RoutinePhase
// @Router /api/routines/parse [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	rest.WriteJSON(w, http.StatusOK, Parse(body.Text))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoutineNotFound), errors.Is(err, ErrItemNotFound):
		rest.WriteError(w, http.StatusNotFound, "Routine not found", err.Error())
	case errors.Is(err, ErrInvalidName):
		rest.WriteError(w, http.StatusBadRequest, "Invalid routine", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func ToDTO(r Routine) RoutineDTO {
	return RoutineDTO{
		Id:        r.Id,
		Name:      r.Name,
		Text:      r.Text(),
		Phases:    r.Phases(),
		Color:     r.Color,
		Memo:      r.Memo,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
