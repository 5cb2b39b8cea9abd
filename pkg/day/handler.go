package day

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/rest"
	"github.com/klokku/ritual/pkg/interaction"
	log "github.com/sirupsen/logrus"
)

type DayStateDTO struct {
	Date string `json:"date"`
	DayState
	Closed bool `json:"closed"`
}

type Handler struct {
	service  Service
	exporter *Exporter
	today    func(ctx context.Context) string
}

func NewHandler(service Service, exporter *Exporter, today func(ctx context.Context) string) *Handler {
	return &Handler{service: service, exporter: exporter, today: today}
}

func (h *Handler) date(r *http.Request) string {
	date := mux.Vars(r)["date"]
	if date == "today" {
		date = h.today(r.Context())
	}
	return date
}

// Get godoc
// @Summary Journal of a date
// @Tags Day
// @Produce json
// @Param date path string true "Date as YYYY-MM-DD or today"
// @Success 200 {object} DayStateDTO
// @Router /api/days/{date} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	h.respond(w, date)(h.service.Get(r.Context(), date))
}

// LogVital godoc
// @Summary Log a stamina, mental or aux value
// @Tags Day
// @Accept json
// @Produce json
// @Param vital body object{kind=string,value=int} true "Vital"
// @Success 200 {object} DayStateDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/days/{date}/vitals [post]
func (h *Handler) LogVital(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	var body struct {
		Kind  VitalKind `json:"kind"`
		Value int       `json:"value"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w, date)(h.service.LogVital(r.Context(), date, body.Kind, body.Value))
}

func (h *Handler) LogMood(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	var body struct {
		Mood interaction.Mood `json:"mood"`
		Note string           `json:"note"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w, date)(h.service.LogMood(r.Context(), date, body.Mood, body.Note))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	var body CheckIn
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w, date)(h.service.CheckIn(r.Context(), date, body))
}

func (h *Handler) SetNotes(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	var body struct {
		Notes string `json:"notes"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	h.respond(w, date)(h.service.SetNotes(r.Context(), date, body.Notes))
}

func (h *Handler) AddSuggestion(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	var body struct {
		Title string `json:"title"`
	}
	if !rest.DecodeBody(w, r, &body) {
		return
	}
	suggestion, err := h.service.AddSuggestion(r.Context(), date, body.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, suggestion)
}

func (h *Handler) RemoveSuggestion(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	h.respond(w, date)(h.service.RemoveSuggestion(r.Context(), date, mux.Vars(r)["suggestionId"]))
}

func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	h.respond(w, date)(h.service.CloseDay(r.Context(), date))
}

func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	date := h.date(r)
	h.respond(w, date)(h.service.Reopen(r.Context(), date))
}

// Note godoc
// @Summary Markdown note of a date
// @Tags Day
// @Produce text/markdown
// @Param date path string true "Date as YYYY-MM-DD or today"
// @Success 200 {string} string
// @Router /api/days/{date}/note [get]
func (h *Handler) Note(w http.ResponseWriter, r *http.Request) {
	note, err := h.exporter.Export(r.Context(), h.date(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(note)); err != nil {
		log.Errorf("failed to write note: %v", err)
	}
}

func (h *Handler) respond(w http.ResponseWriter, date string) func(DayState, error) {
	return func(state DayState, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		rest.WriteJSON(w, http.StatusOK, DayStateDTO{Date: date, DayState: state, Closed: state.Closed()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDate):
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "Date must be in YYYY-MM-DD format")
	case errors.Is(err, ErrInvalidVital), errors.Is(err, interaction.ErrInvalidMood), errors.Is(err, ErrEmptySuggestion):
		rest.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, ErrDayClosed):
		rest.WriteError(w, http.StatusConflict, "Day is closed", "Reopen the day to change it")
	case errors.Is(err, ErrSuggestionNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
