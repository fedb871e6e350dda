package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	router http.Handler
	token  string
	games  *service.GameService
}

func newAPI(t *testing.T) *api {
	t.Helper()
	s := store.New(store.NewMemoryBackend())
	gs := store.NewGameStore(s)
	as := store.NewAssignmentStore(s)
	cs := store.NewCardStore(s)

	games := service.NewGameService(gs, as, cs, nil)
	cards := service.NewCardService(cs)
	_, err := cards.EnsureCatalog(context.Background(), 5, 7)
	require.NoError(t, err)

	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	_, token, err := tokenAuth.Encode(map[string]interface{}{"service_id": "test"})
	require.NoError(t, err)

	h := NewHandler(tokenAuth, games, service.NewAssignmentService(as, gs, cs),
		service.NewSessionService(store.NewSessionStore(s), gs), cards)
	r := chi.NewRouter()
	h.SetRoutes(r)

	return &api{router: r, token: token, games: games}
}

// call runs one request; data, when given, receives the response's data field.
func (a *api) call(t *testing.T, method, path, body string, auth bool, data interface{}) Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	if rec.Code == http.StatusUnauthorized {
		return Response{Code: rec.Code}
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	assert.Equal(t, rec.Code, raw.Code)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Response
}

func TestAdminRoutesNeedToken(t *testing.T) {
	a := newAPI(t)

	rsp := a.call(t, http.MethodPost, "/v1/games", `{"name":"friday"}`, false, nil)
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/health", "", false, nil)
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/health", "", true, nil)
	assert.Equal(t, http.StatusOK, rsp.Code)
}

func TestGameLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)

	var game models.Game
	rsp := a.call(t, http.MethodPost, "/v1/games", `{"name":"friday","enabledPatterns":["row-0"]}`, true, &game)
	require.Equal(t, http.StatusCreated, rsp.Code)
	assert.Equal(t, models.StatusWaiting, game.Status)

	base := "/v1/games/" + game.ID
	rsp = a.call(t, http.MethodPost, base+"/draw", `{"number":5}`, true, nil)
	assert.Equal(t, http.StatusConflict, rsp.Code, "waiting games do not draw")

	rsp = a.call(t, http.MethodPost, base+"/start", "", true, &game)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, models.StatusActive, game.Status)

	rsp = a.call(t, http.MethodPost, base+"/draw", `{"number":5}`, true, &game)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, []int{5}, game.CalledNumbers)

	rsp = a.call(t, http.MethodPost, base+"/draw", `{"number":5}`, true, nil)
	assert.Equal(t, http.StatusConflict, rsp.Code, "already drawn")

	rsp = a.call(t, http.MethodPost, base+"/draw", `{"number":76}`, true, nil)
	assert.Equal(t, http.StatusBadRequest, rsp.Code, "out of range")

	rsp = a.call(t, http.MethodPost, base+"/draw", "", true, &game)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Len(t, game.CalledNumbers, 2, "empty body draws at random")

	// late joiners read the same state publicly
	var public models.Game
	rsp = a.call(t, http.MethodGet, base, "", false, &public)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, game.CalledNumbers, public.CalledNumbers)

	rsp = a.call(t, http.MethodPost, base+"/reset", "", true, &game)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Empty(t, game.CalledNumbers)

	rsp = a.call(t, http.MethodPost, base+"/finish", `{"winners":[{"playerName":"ana","cardId":1,"pattern":"row-0"}]}`, true, &game)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, models.StatusFinished, game.Status)
	require.Len(t, game.Winners, 1)
	assert.Equal(t, 1, game.Winners[0].RoundNumber)
}

func TestNotFoundAndBadInput(t *testing.T) {
	a := newAPI(t)

	rsp := a.call(t, http.MethodGet, "/v1/games/missing", "", false, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/games/active", "", false, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/cards/999", "", false, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/cards/abc", "", false, nil)
	assert.Equal(t, http.StatusBadRequest, rsp.Code)

	rsp = a.call(t, http.MethodPost, "/v1/games", `{"name":`, true, nil)
	assert.Equal(t, http.StatusBadRequest, rsp.Code)

	rsp = a.call(t, http.MethodPost, "/v1/games", `{"name":"x","enabledPatterns":["zigzag"]}`, true, nil)
	assert.Equal(t, http.StatusBadRequest, rsp.Code)
}

func TestCardLookup(t *testing.T) {
	a := newAPI(t)

	var card models.Card
	rsp := a.call(t, http.MethodGet, "/v1/cards/1", "", false, &card)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, 1, card.ID)
}

func TestSessionsAndAssignments(t *testing.T) {
	a := newAPI(t)

	var game models.Game
	a.call(t, http.MethodPost, "/v1/games", `{"name":"friday"}`, true, &game)

	var sess models.Session
	rsp := a.call(t, http.MethodPost, "/v1/sessions", `{"role":"gestor","gameId":"`+game.ID+`"}`, true, &sess)
	require.Equal(t, http.StatusCreated, rsp.Code)
	assert.Equal(t, models.RoleGestor, sess.Role)

	rsp = a.call(t, http.MethodPost, "/v1/sessions", `{"role":"root"}`, true, nil)
	assert.Equal(t, http.StatusForbidden, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/sessions/"+sess.Token, "", false, nil)
	assert.Equal(t, http.StatusOK, rsp.Code)

	rsp = a.call(t, http.MethodDelete, "/v1/sessions/"+sess.Token, "", false, nil)
	assert.Equal(t, http.StatusUnauthorized, rsp.Code, "logout is an admin route")

	rsp = a.call(t, http.MethodDelete, "/v1/sessions/"+sess.Token, "", true, nil)
	assert.Equal(t, http.StatusOK, rsp.Code)

	rsp = a.call(t, http.MethodGet, "/v1/sessions/"+sess.Token, "", false, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	base := "/v1/games/" + game.ID + "/assignments"
	var assignment models.Assignment
	rsp = a.call(t, http.MethodPost, base, `{"cardId":2,"playerName":"ana"}`, true, &assignment)
	require.Equal(t, http.StatusCreated, rsp.Code)
	assert.Equal(t, game.ID, assignment.GameID)
	assert.Equal(t, 1, assignment.RoundNumber)

	rsp = a.call(t, http.MethodPost, base, `{"cardId":2,"playerName":"bea"}`, true, nil)
	assert.Equal(t, http.StatusConflict, rsp.Code, "card taken this round")

	var list []models.Assignment
	rsp = a.call(t, http.MethodGet, base, "", false, &list)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Len(t, list, 1)

	paidURL := "/v1/assignments/" + assignment.ID + "/paid"
	rsp = a.call(t, http.MethodPut, paidURL, `{"paid":true}`, false, nil)
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)

	rsp = a.call(t, http.MethodPut, paidURL, `{}`, true, nil)
	assert.Equal(t, http.StatusBadRequest, rsp.Code)

	rsp = a.call(t, http.MethodPut, paidURL, `{"paid":true}`, true, &assignment)
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.True(t, assignment.Paid)

	rsp = a.call(t, http.MethodPut, "/v1/assignments/missing/paid", `{"paid":true}`, true, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)

	rsp = a.call(t, http.MethodDelete, "/v1/assignments/"+assignment.ID, "", true, nil)
	assert.Equal(t, http.StatusOK, rsp.Code)

	rsp = a.call(t, http.MethodDelete, "/v1/assignments/"+assignment.ID, "", true, nil)
	assert.Equal(t, http.StatusNotFound, rsp.Code)
}
