package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLookup struct{}

func (brokenLookup) GetByPair(ctx context.Context, userA, userB string) (*models.Chat, error) {
	return nil, errors.New("database is locked")
}

func relayCode(t *testing.T, err error) models.CallErrorCode {
	t.Helper()
	var relayErr *models.CallRelayError
	require.ErrorAs(t, err, &relayErr)
	return relayErr.Code
}

func TestCallRelay_ForwardsPayloadVerbatim(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()
	_, err := env.chats.ResolveChat(ctx, "alice", "bob")
	require.NoError(t, err)
	env.hub.reset()

	relay := NewCallRelayService(env.chatRepo, env.hub)
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, relay.Relay(ctx, "alice", "bob", payload))

	signals := env.hub.byOp(ws.OpCallSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, []string{ws.UserRoom("bob")}, signals[0].Rooms)
	data := signals[0].Event.Data.(ws.CallSignalData)
	assert.Equal(t, "alice", data.From)
	assert.Equal(t, "bob", data.To)
	assert.JSONEq(t, string(payload), string(data.Payload))
}

func TestCallRelay_RequiresExistingChat(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	relay := NewCallRelayService(env.chatRepo, env.hub)

	err := relay.Relay(context.Background(), "alice", "bob", json.RawMessage(`{}`))
	assert.Equal(t, models.CallErrChatNotFound, relayCode(t, err))

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count))
	assert.Zero(t, count, "relay never creates chats")
}

func TestCallRelay_BlockCodes(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()
	relay := NewCallRelayService(env.chatRepo, env.hub)

	_, err := env.chats.Block(ctx, "bob", "alice")
	require.NoError(t, err)

	err = relay.Relay(ctx, "alice", "bob", json.RawMessage(`{}`))
	assert.Equal(t, models.CallErrBlockedByTarget, relayCode(t, err))

	err = relay.Relay(ctx, "bob", "alice", json.RawMessage(`{}`))
	assert.Equal(t, models.CallErrYouBlockedTarget, relayCode(t, err))

	// İki taraf da engellediyse arayan engellendiğini görür.
	_, err = env.chats.Block(ctx, "alice", "bob")
	require.NoError(t, err)
	err = relay.Relay(ctx, "alice", "bob", json.RawMessage(`{}`))
	assert.Equal(t, models.CallErrBlockedByTarget, relayCode(t, err))

	assert.Empty(t, env.hub.byOp(ws.OpCallSignal))
}

func TestCallRelay_LookupFailureIsSetupFailed(t *testing.T) {
	relay := NewCallRelayService(brokenLookup{}, &recordingPublisher{})

	err := relay.Relay(context.Background(), "alice", "bob", json.RawMessage(`{}`))
	assert.Equal(t, models.CallErrCallSetupFailed, relayCode(t, err))
	assert.ErrorContains(t, err, "database is locked")
}
