package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	tokenAuth *jwtauth.JWTAuth

	gameService       *service.GameService
	assignmentService *service.AssignmentService
	sessionService    *service.SessionService
	cardService       *service.CardService
}

func NewHandler(tokenAuth *jwtauth.JWTAuth, gameService *service.GameService, assignmentService *service.AssignmentService,
	sessionService *service.SessionService, cardService *service.CardService) *Handler {
	return &Handler{
		tokenAuth:         tokenAuth,
		gameService:       gameService,
		assignmentService: assignmentService,
		sessionService:    sessionService,
		cardService:       cardService,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Error [Handler.CreateResponse] %s", err)
	}
}

// CreateError answers with the status matching err.
func (h *Handler) CreateError(w http.ResponseWriter, message string, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Errorf("Error [Handler] %s: %s", message, err)
	}
	h.CreateResponse(w, Response{
		Message: message,
		Code:    code,
		Error:   err.Error(),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrCardNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrCardTaken),
		errors.Is(err, service.ErrAlreadyDrawn),
		errors.Is(err, service.ErrDomainExhausted):
		return http.StatusConflict
	case errors.Is(err, service.ErrOutOfRange),
		errors.Is(err, service.ErrInvalidPattern),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "game service is running at port " + os.Getenv("GAME_SERVICE_PORT"),
		Code:    http.StatusOK,
		Data:    map[string]string{"winnerPolicy": string(h.gameService.Policy())},
	})
}
