package handlers

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/go-chi/chi"
)

type drawRequest struct {
	Number int `json:"number"` // 0 draws a random undrawn number
}

type finishRequest struct {
	Winners []models.Winner `json:"winners"`
}

type statusRequest struct {
	Status models.GameStatus `json:"status"`
}

type confirmRequest struct {
	AssignmentID string `json:"assignmentId"`
	Pattern      string `json:"pattern"`
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.gameService.ListGames(r.Context())
	if err != nil {
		h.CreateError(w, "unable to list games", err)
		return
	}
	h.CreateResponse(w, Response{Message: "games", Code: http.StatusOK, Data: games})
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameService.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "unable to get game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "game", Code: http.StatusOK, Data: g})
}

func (h *Handler) ActiveGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameService.ActiveGame(r.Context())
	if err != nil {
		h.CreateError(w, "no active game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "active game", Code: http.StatusOK, Data: g})
}

func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGameRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid game request", err)
		return
	}
	g, err := h.gameService.CreateGame(r.Context(), req)
	if err != nil {
		h.CreateError(w, "unable to create game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "game created", Code: http.StatusCreated, Data: g})
}

func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameService.StartGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "unable to start game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "game started", Code: http.StatusOK, Data: g})
}

func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid draw request", err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		g   *models.Game
		err error
	)
	if req.Number == 0 {
		g, err = h.gameService.DrawRandom(r.Context(), id, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	} else {
		g, err = h.gameService.Draw(r.Context(), id, req.Number)
	}
	if err != nil {
		h.CreateError(w, "unable to draw", err)
		return
	}
	h.CreateResponse(w, Response{Message: "number drawn", Code: http.StatusOK, Data: g})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameService.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "unable to reset", err)
		return
	}
	h.CreateResponse(w, Response{Message: "raffle reset", Code: http.StatusOK, Data: g})
}

func (h *Handler) NextRound(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameService.NextRound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "unable to open next round", err)
		return
	}
	h.CreateResponse(w, Response{Message: "next round", Code: http.StatusOK, Data: g})
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	var req finishRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid finish request", err)
		return
	}
	g, err := h.gameService.Finish(r.Context(), chi.URLParam(r, "id"), req.Winners)
	if err != nil {
		h.CreateError(w, "unable to finish game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "game finished", Code: http.StatusOK, Data: g})
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid status request", err)
		return
	}
	g, err := h.gameService.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.CreateError(w, "unable to set status", err)
		return
	}
	h.CreateResponse(w, Response{Message: "status updated", Code: http.StatusOK, Data: g})
}

func (h *Handler) RemoveGame(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.RemoveGame(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.CreateError(w, "unable to remove game", err)
		return
	}
	h.CreateResponse(w, Response{Message: "game removed", Code: http.StatusOK})
}

func (h *Handler) SetRoundSettings(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		h.CreateError(w, "invalid round", fmt.Errorf("%w: %s", errBadRequest, err))
		return
	}
	var req models.RoundSettings
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid round settings", err)
		return
	}
	g, err := h.gameService.SetRoundSettings(r.Context(), chi.URLParam(r, "id"), round, req)
	if err != nil {
		h.CreateError(w, "unable to set round settings", err)
		return
	}
	h.CreateResponse(w, Response{Message: "round settings saved", Code: http.StatusOK, Data: g})
}

func (h *Handler) Detections(w http.ResponseWriter, r *http.Request) {
	found, err := h.gameService.DetectWinners(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "unable to check winners", err)
		return
	}

	type detection struct {
		Assignment models.Assignment `json:"assignment"`
		Pattern    string            `json:"pattern"`
	}
	data := make([]detection, 0, len(found))
	for _, d := range found {
		data = append(data, detection{Assignment: d.Assignment, Pattern: d.Pattern.ID()})
	}
	h.CreateResponse(w, Response{Message: "detected winners", Code: http.StatusOK, Data: data})
}

func (h *Handler) ConfirmWinner(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decode(r, &req); err != nil {
		h.CreateError(w, "invalid confirmation", err)
		return
	}
	if req.AssignmentID == "" {
		h.CreateError(w, "invalid confirmation", fmt.Errorf("%w: assignmentId is required", errBadRequest))
		return
	}
	winner, err := h.gameService.ConfirmWinner(r.Context(), chi.URLParam(r, "id"), req.AssignmentID, req.Pattern)
	if err != nil {
		h.CreateError(w, "unable to confirm winner", err)
		return
	}
	h.CreateResponse(w, Response{Message: "winner confirmed", Code: http.StatusOK, Data: winner})
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.CreateError(w, "invalid card id", fmt.Errorf("%w: %s", errBadRequest, err))
		return
	}
	card, err := h.cardService.GetCard(r.Context(), id)
	if err != nil {
		h.CreateError(w, "unable to get card", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card", Code: http.StatusOK, Data: card})
}
