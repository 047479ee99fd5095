package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/lifecycle"
	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/store/memstore"
	"github.com/Liunai/pallavolo/internal/users"
)

const superEmail = "capo@example.com"

type fakeVerifier map[string]auth.Identity

func (f fakeVerifier) Verify(_ context.Context, idToken string) (auth.Identity, error) {
	id, ok := f[idToken]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidIDToken
	}
	return id, nil
}

func newTestServer(t *testing.T) (*APIServer, http.Handler) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := memstore.New()
	hub := notify.NewHub(logger)
	m := metrics.Noop()
	sessions, err := auth.NewSessions(time.Hour)
	require.NoError(t, err)

	s := &APIServer{
		Roster:    roster.NewEngine(st, hub, roster.DefaultPolicy(), m, logger),
		Lifecycle: lifecycle.NewManager(st, hub, m, logger),
		Stats:     stats.NewAggregator(st, logger),
		Users:     users.NewService(st, superEmail, logger),
		Sessions:  sessions,
		Verifier: fakeVerifier{
			"tok-capo": {UID: "capo", DisplayName: "Capo", Email: superEmail},
			"tok-anna": {UID: "anna", DisplayName: "Anna", Email: "anna@example.com"},
			"tok-luca": {UID: "luca", DisplayName: "Luca", Email: "luca@example.com"},
		},
		Hub:     hub,
		Metrics: m,
		Logger:  logger,
	}
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, idToken string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/auth/login", "", loginRequest{IDToken: idToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createMatch(t *testing.T, h http.Handler, adminToken string, date time.Time) *models.Match {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/matches", adminToken, map[string]time.Time{"date": date})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.Match](t, rec)
}

func TestLoginSetsCookieAndMe(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/auth/login", "", loginRequest{IDToken: "tok-anna"})
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	h.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	u := decode[models.UserProfile](t, me)
	assert.Equal(t, "anna", u.UID)
	assert.Equal(t, models.RoleUser, u.Role)
}

func TestLoginRejectsBadIDToken(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/auth/login", "", loginRequest{IDToken: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_id_token", decode[apiError](t, rec).Code)
}

func TestSuperAdminEmailGetsRole(t *testing.T) {
	_, h := newTestServer(t)
	tok := login(t, h, "tok-capo")
	rec := do(t, h, http.MethodGet, "/me", tok, nil)
	assert.Equal(t, models.RoleSuperAdmin, decode[models.UserProfile](t, rec).Role)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/matches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMatchRequiresAdmin(t *testing.T) {
	_, h := newTestServer(t)
	user := login(t, h, "tok-anna")
	admin := login(t, h, "tok-capo")
	date := time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)

	rec := do(t, h, http.MethodPost, "/matches", user, map[string]time.Time{"date": date})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	createMatch(t, h, admin, date)

	rec = do(t, h, http.MethodPost, "/matches", admin, map[string]time.Time{"date": date})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_schedule", decode[apiError](t, rec).Code)
}

func TestSignupFlow(t *testing.T) {
	_, h := newTestServer(t)
	admin := login(t, h, "tok-capo")
	anna := login(t, h, "tok-anna")
	m := createMatch(t, h, admin, time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC))

	rec := do(t, h, http.MethodPost, "/matches/"+m.ID+"/signup", anna, signupRequest{Guests: []string{"Marta"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[roster.SignupResult](t, rec)
	assert.Equal(t, roster.PlacedParticipant, res.Placement)
	require.Len(t, res.GuestIDs, 1)
	require.Len(t, res.Match.Participants, 1)
	assert.Equal(t, "Anna", res.Match.Participants[0].DisplayName)
	require.Len(t, res.Match.Reserves, 1)
	assert.True(t, res.Match.Reserves[0].IsGuest())

	rec = do(t, h, http.MethodPost, "/matches/"+m.ID+"/signup", anna, signupRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_registered", decode[apiError](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/matches/"+m.ID+"/signup", anna, signupRequest{Guests: []string{"a", "b", "c"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "guest_limit", decode[apiError](t, rec).Code)

	luca := login(t, h, "tok-luca")
	rec = do(t, h, http.MethodDelete, "/matches/"+m.ID+"/guests/"+res.GuestIDs[0], luca, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/matches/"+m.ID+"/guests/"+res.GuestIDs[0], anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Match](t, rec).Reserves)

	rec = do(t, h, http.MethodPost, "/matches/"+m.ID+"/unsubscribe", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Match](t, rec).Participants)

	rec = do(t, h, http.MethodPost, "/matches/missing/signup", anna, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "match_not_found", decode[apiError](t, rec).Code)
}

func TestCloseAndReopen(t *testing.T) {
	_, h := newTestServer(t)
	admin := login(t, h, "tok-capo")
	anna := login(t, h, "tok-anna")
	m := createMatch(t, h, admin, time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/matches/"+m.ID+"/signup", anna, nil).Code)

	rec := do(t, h, http.MethodPost, "/matches/"+m.ID+"/close", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[lifecycle.Closed](t, rec)
	require.NotNil(t, closed.Session)
	assert.Zero(t, closed.StatFailures)

	rec = do(t, h, http.MethodGet, "/me/history", anna, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[stats.History](t, rec)
	assert.Equal(t, 1, hist.Stats.TotalSessions)
	assert.Len(t, hist.Sessions, 1)

	rec = do(t, h, http.MethodPost, "/sessions/"+closed.Session.ID+"/reopen", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/me/history", anna, nil)
	assert.Zero(t, decode[stats.History](t, rec).Stats.TotalSessions)

	rec = do(t, h, http.MethodGet, "/sessions/"+closed.Session.ID, anna, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetRoleOnlySuperAdmin(t *testing.T) {
	_, h := newTestServer(t)
	super := login(t, h, "tok-capo")
	login(t, h, "tok-anna")

	rec := do(t, h, http.MethodPut, "/users/anna/role", super, map[string]models.Role{"role": models.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleAdmin, decode[models.UserProfile](t, rec).Role)

	anna := login(t, h, "tok-anna")
	rec = do(t, h, http.MethodGet, "/users", anna, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/users/capo/role", anna, map[string]models.Role{"role": models.RoleUser})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	_, h := newTestServer(t)
	tok := login(t, h, "tok-anna")
	req := httptest.NewRequest(http.MethodPut, "/me/display-name", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[apiError](t, rec).Code)
}

func TestLookupError(t *testing.T) {
	status, code := lookupError(roster.ErrCapacityExceeded)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "capacity_exceeded", code)

	status, code = lookupError(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}

func TestMatchWebsocketFeed(t *testing.T) {
	s, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	admin := login(t, h, "tok-capo")
	m := createMatch(t, h, admin, time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/matches/" + m.ID + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPHeader:   http.Header{"Cookie": {middleware.CookieName + "=" + admin}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var ev notify.MatchEvent
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, notify.EventMatchSnapshot, ev.Type)
	assert.Equal(t, m.ID, ev.MatchID)

	_, err = s.Roster.Signup(ctx, m.ID, roster.SignupRequest{
		Member: roster.Member{UserID: "capo", DisplayName: "Capo"},
	})
	require.NoError(t, err)

	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, notify.EventMatchUpdated, ev.Type)
	require.Len(t, ev.Match.Participants, 1)

	_, err = s.Lifecycle.CloseMatch(ctx, m.ID, "capo")
	require.NoError(t, err)

	require.NoError(t, wsjson.Read(ctx, c, &ev))
	assert.Equal(t, notify.EventMatchClosed, ev.Type)

	err = wsjson.Read(ctx, c, &ev)
	assert.Equal(t, websocket.StatusCode(MatchEndedCode), websocket.CloseStatus(err))
}

func TestMatchWebsocketRejectsBadToken(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/matches/anything/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{wsSubprotocol}})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusCode(InvalidAuthTokenError), websocket.CloseStatus(err))
}
