package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/go-chi/chi"
)

type sessionRequest struct {
	Role       models.Role `json:"role"`
	GameID     string      `json:"gameId"`
	PlayerName string      `json:"playerName"`
	TTLSeconds int         `json:"ttlSeconds"` // 0 uses the default
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid session request", err)
		return
	}
	sess, err := h.sessionService.Create(r.Context(), req.Role, req.GameID, req.PlayerName,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.CreateError(w, "unable to create session", err)
		return
	}
	h.CreateResponse(w, Response{Message: "session created", Code: http.StatusCreated, Data: sess})
}

// GetSession lets a consumer check its own token. Expired tokens are 404.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionService.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.CreateError(w, "unable to get session", err)
		return
	}
	h.CreateResponse(w, Response{Message: "session", Code: http.StatusOK, Data: sess})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.Logout(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.CreateError(w, "unable to log out", err)
		return
	}
	h.CreateResponse(w, Response{Message: "logged out", Code: http.StatusOK})
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gameID := chi.URLParam(r, "id")

	round := 0
	if v := r.URL.Query().Get("round"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.CreateError(w, "invalid round", fmt.Errorf("%w: %s", errBadRequest, err))
			return
		}
		round = n
	}
	if round == 0 {
		g, err := h.gameService.GetGame(ctx, gameID)
		if err != nil {
			h.CreateError(w, "unable to list assignments", err)
			return
		}
		round = g.RoundNumber
	}

	list, err := h.assignmentService.ListByRound(ctx, gameID, round)
	if err != nil {
		h.CreateError(w, "unable to list assignments", err)
		return
	}
	h.CreateResponse(w, Response{Message: "assignments", Code: http.StatusOK, Data: list})
}

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req service.AssignmentRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid assignment", err)
		return
	}
	req.GameID = chi.URLParam(r, "id")

	a, err := h.assignmentService.Create(r.Context(), req)
	if err != nil {
		h.CreateError(w, "unable to assign card", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card assigned", Code: http.StatusCreated, Data: a})
}

func (h *Handler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req service.AssignmentRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid assignment", err)
		return
	}
	a, err := h.assignmentService.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.CreateError(w, "unable to update assignment", err)
		return
	}
	h.CreateResponse(w, Response{Message: "assignment updated", Code: http.StatusOK, Data: a})
}

func (h *Handler) SetPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paid *bool `json:"paid"`
	}
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid payment flag", err)
		return
	}
	if req.Paid == nil {
		h.CreateError(w, "invalid payment flag", fmt.Errorf("%w: paid is required", errBadRequest))
		return
	}
	a, err := h.assignmentService.SetPaid(r.Context(), chi.URLParam(r, "id"), *req.Paid)
	if err != nil {
		h.CreateError(w, "unable to update payment", err)
		return
	}
	h.CreateResponse(w, Response{Message: "payment updated", Code: http.StatusOK, Data: a})
}

func (h *Handler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	if err := h.assignmentService.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.CreateError(w, "unable to remove assignment", err)
		return
	}
	h.CreateResponse(w, Response{Message: "assignment removed", Code: http.StatusOK})
}
