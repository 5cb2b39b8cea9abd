package reminder

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/rest"
)

type Handler struct {
	service Service
	today   func(ctx context.Context) string
}

func NewHandler(service Service, today func(ctx context.Context) string) *Handler {
	return &Handler{service: service, today: today}
}

// List godoc
// @Summary List reminders
// @Tags Reminders
// @Produce json
// @Success 200 {array} Reminder
// @Router /api/reminders [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, h.service.List(r.Context()))
}

// Create godoc
// @Summary Create a reminder
// @Tags Reminders
// @Accept json
// @Produce json
// @Param reminder body Reminder true "Reminder"
// @Success 201 {object} Reminder
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/reminders [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body Reminder
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	created, err := h.service.Create(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var body Reminder
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	body.Id = mux.Vars(r)["reminderId"]
	updated, err := h.service.Update(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["reminderId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Instances godoc
// @Summary Fired and dismissed reminders of a date
// @Tags Reminders
// @Produce json
// @Param date path string true "Date as YYYY-MM-DD or today"
// @Success 200 {object} map[string]Instance
// @Router /api/reminders/state/{date} [get]
func (h *Handler) Instances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.Instances(r.Context(), h.date(r))
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, instances)
}

func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Dismiss(r.Context(), h.date(r), mux.Vars(r)["reminderId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) date(r *http.Request) string {
	date := mux.Vars(r)["date"]
	if date == "today" {
		date = h.today(r.Context())
	}
	return date
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrReminderNotFound):
		rest.WriteError(w, http.StatusNotFound, "Reminder not found", err.Error())
	case errors.Is(err, ErrInvalidDate):
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "Date must be in YYYY-MM-DD format")
	case errors.Is(err, ErrInvalidTime), errors.Is(err, ErrInvalidWeekday), errors.Is(err, ErrEmptyTitle):
		rest.WriteError(w, http.StatusBadRequest, "Invalid reminder", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
