package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"quiz-duel-service/internal/app"
	"quiz-duel-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const usernameKey contextKey = "username"

// Handler exposes the duel use cases over REST. Identity comes from the
// X-Username header, the seam where external auth middleware plugs in.
type Handler struct {
	service *app.DuelService
	logger  *zap.Logger
}

func NewHandler(service *app.DuelService, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/duels", func(r chi.Router) {
		r.Use(identityMiddleware)
		r.Get("/", h.listDuels)
		r.Post("/new", h.createDuel)
		r.Get("/{id}", h.getDuel)
		r.Post("/{id}/{round}", h.playRound)
	})
	return r
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.Header.Get("X-Username")
		if username == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), usernameKey, username)))
	})
}

func requester(r *http.Request) string {
	username, _ := r.Context().Value(usernameKey).(string)
	return username
}

type createDuelRequest struct {
	Opponent string `json:"opponent"`
}

func (h *Handler) createDuel(w http.ResponseWriter, r *http.Request) {
	var req createDuelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.service.Create(r.Context(), requester(r), req.Opponent)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) getDuel(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Fetch(r.Context(), requester(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listDuels(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.FetchAll(r.Context(), requester(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type playRoundRequest struct {
	Answers []int `json:"answers"`
}

func (h *Handler) playRound(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil || round < 1 {
		writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}
	var req playRoundRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.Play(r.Context(), requester(r), chi.URLParam(r, "id"), round, req.Answers)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDuelNotFound) || errors.Is(err, domain.ErrOpponentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotEnoughData):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"code": "NED", "message": err.Error()})
	case errors.Is(err, domain.ErrMissingOpponent) ||
		errors.Is(err, domain.ErrSelfDuel) ||
		errors.Is(err, domain.ErrDuelFinished) ||
		errors.Is(err, domain.ErrWrongRound) ||
		errors.Is(err, domain.ErrAlreadyPlayed) ||
		errors.Is(err, domain.ErrAnswerCount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
