package services

import (
	"context"
	"errors"
	"testing"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCircle(t *testing.T, env *testEnv, ownerID string, req models.CreateCircleRequest) *models.Circle {
	t.Helper()
	circle, err := env.circles.Create(context.Background(), ownerID, &req)
	require.NoError(t, err)
	return circle
}

func TestCircleService_CreateValidatesAndHashesKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner")
	ctx := context.Background()

	_, err := env.circles.Create(ctx, "owner", &models.CreateCircleRequest{Name: "  "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.circles.Create(ctx, "owner", &models.CreateCircleRequest{Name: "x", Visibility: models.CircleVisibilityPrivate, JoinKey: "abc"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{
		Name:       "Book club",
		Visibility: models.CircleVisibilityPrivate,
		JoinKey:    "k3y!",
	})
	assert.Equal(t, models.CircleThemeBlue, circle.Theme)
	assert.Equal(t, "owner", circle.OwnerID)
	assert.Equal(t, 1, circle.MemberCount)
	assert.NotEmpty(t, circle.JoinKeyHash)
	assert.NotEqual(t, "k3y!", circle.JoinKeyHash)
}

func TestCircleService_PrivateJoinRequiresKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{
		Name:       "Secret",
		Visibility: models.CircleVisibilityPrivate,
		JoinKey:    "1234",
	})

	_, err := env.circles.Get(ctx, "alice", circle.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = env.circles.Join(ctx, "alice", circle.ID, "12")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.circles.Join(ctx, "alice", circle.ID, "4321")
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	details, err := env.circles.Get(ctx, "owner", circle.ID)
	require.NoError(t, err)
	assert.Len(t, details.Members, 1, "failed joins change nothing")

	res, err := env.circles.Join(ctx, "alice", circle.ID, "1234")
	require.NoError(t, err)
	assert.False(t, res.AlreadyMember)

	res, err = env.circles.Join(ctx, "alice", circle.ID, "")
	require.NoError(t, err)
	assert.True(t, res.AlreadyMember)

	updates := env.hub.byOp(ws.OpCircleMemberUpdate)
	require.Len(t, updates, 1)
	data := updates[0].Event.Data.(ws.CircleMemberUpdateData)
	assert.Equal(t, "joined", data.Action)
	assert.Equal(t, 2, data.MemberCount)
	assert.Equal(t, []string{ws.CircleRoom(circle.ID)}, updates[0].Rooms)

	details, err = env.circles.Get(ctx, "alice", circle.ID)
	require.NoError(t, err)
	require.NotNil(t, details.MyRole)
	assert.Equal(t, models.CircleRoleMember, *details.MyRole)
}

func TestCircleService_PublicJoinIgnoresKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice")

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "Open"})
	res, err := env.circles.Join(context.Background(), "alice", circle.ID, "whatever")
	require.NoError(t, err)
	assert.False(t, res.AlreadyMember)

	_, err = env.circles.Join(context.Background(), "alice", "missing", "")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestCircleService_ListShowsPublicAndOwnPrivate(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice", "bob")
	ctx := context.Background()

	public := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "Public"})
	env.tick()
	private := createCircle(t, env, "owner", models.CreateCircleRequest{
		Name: "Private", Visibility: models.CircleVisibilityPrivate, JoinKey: "abcd",
	})
	_, err := env.circles.Join(ctx, "alice", private.ID, "abcd")
	require.NoError(t, err)

	bobList, err := env.circles.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, public.ID, bobList[0].ID)
	assert.False(t, bobList[0].IsMember)
	assert.Len(t, bobList[0].MembersPreview, 1)

	aliceList, err := env.circles.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceList, 2)
	assert.Equal(t, private.ID, aliceList[0].ID, "newer activity first")

	pinned, err := env.circles.TogglePin(ctx, "alice", public.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden, "only members can pin")
	assert.False(t, pinned)

	_, err = env.circles.Join(ctx, "alice", public.ID, "")
	require.NoError(t, err)
	pinned, err = env.circles.TogglePin(ctx, "alice", public.ID)
	require.NoError(t, err)
	assert.True(t, pinned)

	aliceList, err = env.circles.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, public.ID, aliceList[0].ID, "pinned first")
	assert.True(t, aliceList[0].IsPinned)
	assert.Len(t, aliceList[0].MembersPreview, 2)
}

func TestCircleService_OwnerLeavePromotesAdminThenMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "m1", "m2")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "Relay"})
	for _, id := range []string{"m1", "m2"} {
		env.tick()
		_, err := env.circles.Join(ctx, id, circle.ID, "")
		require.NoError(t, err)
	}

	// m2'yi admin yap: owner devreder, sonra geri alır (m2 owner → admin).
	require.NoError(t, env.circles.TransferOwnership(ctx, "owner", circle.ID, "m2"))
	require.NoError(t, env.circles.TransferOwnership(ctx, "m2", circle.ID, "owner"))
	env.hub.reset()
	env.mailer.sent = nil

	res, err := env.circles.Leave(ctx, "owner", circle.ID)
	require.NoError(t, err)
	require.NotNil(t, res.NewOwnerID)
	assert.Equal(t, "m2", *res.NewOwnerID, "admin is preferred over earlier member")
	assert.False(t, res.CircleDeleted)

	changed := env.hub.byOp(ws.OpCircleOwnerChanged)
	require.Len(t, changed, 1)
	data := changed[0].Event.Data.(ws.CircleOwnerChangedData)
	assert.Equal(t, OwnerChangePromotion, data.Reason)
	assert.Equal(t, "m2", data.NewOwnerID)
	assert.ElementsMatch(t, []string{ws.CircleRoom(circle.ID), ws.UserRoom("m2")}, changed[0].Rooms)

	sys := env.hub.byOp(ws.OpCircleMessage)
	require.Len(t, sys, 1)
	assert.True(t, sys[0].Event.Data.(ws.CircleMessageData).Message.System)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "m2@example.com", env.mailer.sent[0].To)
	assert.Equal(t, OwnerChangePromotion, env.mailer.sent[0].Notice.Reason)

	env.mailer.err = errors.New("resend down")
	res, err = env.circles.Leave(ctx, "m2", circle.ID)
	require.NoError(t, err, "mail failures never fail the operation")
	require.NotNil(t, res.NewOwnerID)
	assert.Equal(t, "m1", *res.NewOwnerID)

	res, err = env.circles.Leave(ctx, "m1", circle.ID)
	require.NoError(t, err)
	assert.True(t, res.CircleDeleted)
	assert.NotEmpty(t, env.hub.byOp(ws.OpCircleDelete))

	_, err = env.circles.Get(ctx, "m1", circle.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestCircleService_LeaveAsNonMember(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice")

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "x"})
	_, err := env.circles.Leave(context.Background(), "alice", circle.ID)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestCircleService_TransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice", "bob")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "x"})
	_, err := env.circles.Join(ctx, "alice", circle.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.circles.TransferOwnership(ctx, "alice", circle.ID, "owner"), pkg.ErrForbidden)
	assert.ErrorIs(t, env.circles.TransferOwnership(ctx, "owner", circle.ID, "owner"), pkg.ErrBadRequest)
	assert.ErrorIs(t, env.circles.TransferOwnership(ctx, "owner", circle.ID, "bob"), pkg.ErrNotFound)

	require.NoError(t, env.circles.TransferOwnership(ctx, "owner", circle.ID, "alice"))

	details, err := env.circles.Get(ctx, "owner", circle.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", details.OwnerID)
	require.NotNil(t, details.MyRole)
	assert.Equal(t, models.CircleRoleAdmin, *details.MyRole)

	changed := env.hub.byOp(ws.OpCircleOwnerChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, OwnerChangeTransfer, changed[0].Event.Data.(ws.CircleOwnerChangedData).Reason)

	page, err := env.circles.GetMessages(ctx, "alice", circle.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "user_owner transferred ownership to user_alice", page.Messages[0].Text)
	assert.Nil(t, page.Messages[0].SenderID)
}

func TestCircleService_RemoveMemberAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice", "bob")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "x"})
	_, err := env.circles.Join(ctx, "alice", circle.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, env.circles.RemoveMember(ctx, "alice", circle.ID, "owner"), pkg.ErrForbidden)
	assert.ErrorIs(t, env.circles.RemoveMember(ctx, "owner", circle.ID, "owner"), pkg.ErrForbidden)
	assert.ErrorIs(t, env.circles.RemoveMember(ctx, "owner", circle.ID, "bob"), pkg.ErrNotFound)

	require.NoError(t, env.circles.RemoveMember(ctx, "owner", circle.ID, "alice"))
	env.hub.mu.Lock()
	assert.Contains(t, env.hub.evicted, "alice@"+ws.CircleRoom(circle.ID))
	env.hub.mu.Unlock()

	_, err = env.circles.GetMessages(ctx, "alice", circle.ID, 1, 30)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	assert.ErrorIs(t, env.circles.Delete(ctx, "alice", circle.ID), pkg.ErrForbidden)
	require.NoError(t, env.circles.Delete(ctx, "owner", circle.ID))
	deleted := env.hub.byOp(ws.OpCircleDelete)
	require.Len(t, deleted, 1)
	assert.Equal(t, []string{ws.CircleRoom(circle.ID)}, deleted[0].Rooms)

	assert.ErrorIs(t, env.circles.Delete(ctx, "owner", circle.ID), pkg.ErrNotFound)
}

func TestCircleService_MessagesPagingAndPosting(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "chatty"})

	_, err := env.circles.PostMessage(ctx, "alice", circle.ID, &models.PostCircleMessageRequest{Text: "hi"}, nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = env.circles.PostMessage(ctx, "owner", circle.ID, &models.PostCircleMessageRequest{Text: " "}, nil)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	for i := 0; i < 7; i++ {
		env.tick()
		_, err := env.circles.PostMessage(ctx, "owner", circle.ID, &models.PostCircleMessageRequest{Text: string(rune('a' + i))}, nil)
		require.NoError(t, err)
	}
	env.tick()
	withFile, err := env.circles.PostMessage(ctx, "owner", circle.ID, &models.PostCircleMessageRequest{}, pngUpload("p.png", "data"))
	require.NoError(t, err)
	require.Len(t, withFile.Attachments, 1)
	require.NotNil(t, withFile.Sender)
	assert.Equal(t, "user_owner", withFile.Sender.Username)

	posted := env.hub.byOp(ws.OpCircleMessage)
	require.Len(t, posted, 8)
	assert.Equal(t, []string{ws.CircleRoom(circle.ID)}, posted[0].Rooms)

	// limit 5'in altına inmez.
	page, err := env.circles.GetMessages(ctx, "owner", circle.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, MinCircleMessageLimit, page.Limit)
	assert.Equal(t, 8, page.Total)
	require.Len(t, page.Messages, 5)
	assert.True(t, page.HasMore)
	assert.Equal(t, "d", page.Messages[0].Text)
	assert.Empty(t, page.Messages[4].Text)

	page, err = env.circles.GetMessages(ctx, "owner", circle.ID, 2, 5)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "a", page.Messages[0].Text)
	assert.False(t, page.HasMore)

	list, err := env.circles.List(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].LastActivityAt.After(circle.LastActivityAt))
}

func TestCircleService_AuthorizeCircleRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "owner", "alice")
	ctx := context.Background()

	circle := createCircle(t, env, "owner", models.CreateCircleRequest{Name: "x"})
	assert.NoError(t, env.circles.AuthorizeCircleRoom(ctx, "owner", circle.ID))
	assert.ErrorIs(t, env.circles.AuthorizeCircleRoom(ctx, "alice", circle.ID), pkg.ErrForbidden)
	assert.ErrorIs(t, env.circles.AuthorizeCircleRoom(ctx, "alice", "nope"), pkg.ErrNotFound)
}
