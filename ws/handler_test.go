package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/pkg/ratelimit"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeValidator struct{}

func (fakeValidator) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if strings.HasPrefix(token, "ok-") {
		return &models.TokenClaims{UserID: strings.TrimPrefix(token, "ok-")}, nil
	}
	return nil, errors.New("bad token")
}

// fakeUsers: "ghost" silinmiş hesap, "broken" sorgu hatası, diğerleri mevcut.
type fakeUsers struct{}

func (fakeUsers) Get(_ context.Context, userID string) (*models.User, error) {
	switch userID {
	case "ghost":
		return nil, fmt.Errorf("%w: user not found", pkg.ErrNotFound)
	case "broken":
		return nil, errors.New("database is locked")
	}
	return &models.User{ID: userID, Username: userID}, nil
}

type staticOnline []string

func (s staticOnline) OnlineUserIDs() []string { return s }

func newTestServer(t *testing.T, limiter *ratelimit.KeyedLimiter) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	h := NewHandler(hub, fakeValidator{}, fakeUsers{}, staticOnline{"bob"}, limiter, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestHandler_RejectsMissingOrInvalidToken(t *testing.T) {
	_, srv := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "forged"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_SendsReadyAndAnswersHeartbeat(t *testing.T) {
	hub, srv := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ok-alice"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ready struct {
		Op string    `json:"op"`
		D  ReadyData `json:"d"`
	}
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, OpReady, ready.Op)
	assert.Equal(t, "alice", ready.D.UserID)
	assert.Equal(t, []string{"alice", "bob"}, ready.D.OnlineUserIDs, "own id is listed even before presence commits")

	require.NoError(t, conn.WriteJSON(map[string]string{"op": OpHeartbeat}))
	var ack Event
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, OpHeartbeatAck, ack.Op)

	hub.BroadcastToUser("alice", Event{Op: OpPresence, Data: PresenceData{UserID: "bob", IsOnline: true}})
	var presence Event
	require.NoError(t, conn.ReadJSON(&presence))
	assert.Equal(t, OpPresence, presence.Op)
}

func TestHandler_ConnectRateLimitedByIP(t *testing.T) {
	limiter := ratelimit.NewKeyedLimiter(clock.NewMock(), rate.Every(time.Minute), 1, time.Hour)
	_, srv := newTestServer(t, limiter)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ok-alice"), nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "ok-alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestHandler_RejectsTokenForUnknownUser(t *testing.T) {
	_, srv := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "ok-ghost"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "ok-broken"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandler_ReadyDoesNotDuplicateOnlineUser(t *testing.T) {
	_, srv := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "ok-bob"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ready struct {
		Op string    `json:"op"`
		D  ReadyData `json:"d"`
	}
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, []string{"bob"}, ready.D.OnlineUserIDs)
}
