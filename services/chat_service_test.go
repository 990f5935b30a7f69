package services

import (
	"context"
	"errors"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/akinalp/sohbet/pkg/ratelimit"
	"github.com/akinalp/sohbet/repository"
	"github.com/akinalp/sohbet/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func textMessage(text string) *models.SendMessageRequest {
	return &models.SendMessageRequest{Text: text}
}

func pngUpload(name, body string) *Upload {
	return &Upload{
		File: strings.NewReader(body),
		Header: &multipart.FileHeader{
			Filename: name,
			Size:     int64(len(body)),
			Header:   textproto.MIMEHeader{"Content-Type": {"image/png"}},
		},
	}
}

func TestChatService_ResolveIsSymmetricAndValidates(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	ab, err := env.chats.ResolveChat(ctx, "alice", "bob")
	require.NoError(t, err)
	ba, err := env.chats.ResolveChat(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, 0, ab.UnreadFor("alice"))
	assert.Empty(t, ab.BlockedBy)
	assert.Empty(t, ab.HiddenFor)

	_, err = env.chats.ResolveChat(ctx, "alice", "alice")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.chats.ResolveChat(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatService_ConcurrentResolveCreatesOneChat(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")

	const n = 12
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := env.chats.ResolveChat(context.Background(), a, b)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestChatService_SendCountsUnreadAndPublishesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	first, err := env.chats.SendMessage(ctx, "alice", "bob", textMessage("  hi  "), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", first.Text)
	assert.Equal(t, models.MessageStatusSent, first.Status)
	require.NotNil(t, first.Sender)
	assert.Equal(t, "user_alice", first.Sender.Username)

	env.tick()
	_, err = env.chats.SendMessage(ctx, "alice", "bob", textMessage("there"), nil)
	require.NoError(t, err)

	chat, err := env.chatRepo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, chat.UnreadFor("bob"))
	assert.Equal(t, 0, chat.UnreadFor("alice"))
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, "there", chat.LastMessage.Text)

	events := env.hub.byOp(ws.OpChatMessageCreate)
	require.Len(t, events, 2)
	assert.ElementsMatch(t, []string{ws.UserRoom("bob"), ws.UserRoom("alice"), ws.ChatRoom(chat.ID)}, events[0].Rooms)

	// Bob cevap verince kendi sayacı sıfırlanır, Alice'inki artar.
	env.tick()
	_, err = env.chats.SendMessage(ctx, "bob", "alice", textMessage("hey"), nil)
	require.NoError(t, err)
	chat, err = env.chatRepo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadFor("bob"))
	assert.Equal(t, 1, chat.UnreadFor("alice"))
}

func TestChatService_GetMessagesMarksReadAndPages(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := env.chats.SendMessage(ctx, "alice", "bob", textMessage(text), nil)
		require.NoError(t, err)
		env.tick()
	}

	page, err := env.chats.GetMessages(ctx, "bob", "alice", 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "two", page.Messages[0].Text)
	assert.Equal(t, "three", page.Messages[1].Text)
	assert.True(t, page.HasMore)
	for _, m := range page.Messages {
		assert.Equal(t, models.MessageStatusRead, m.Status)
		assert.True(t, m.ReadBy.Contains("bob"))
	}

	page, err = env.chats.GetMessages(ctx, "bob", "alice", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "one", page.Messages[0].Text)
	assert.False(t, page.HasMore)

	chat, err := env.chatRepo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, chat.UnreadFor("bob"))

	// Gönderenin kendi mesajları okundu sayılmaz.
	page, err = env.chats.GetMessages(ctx, "alice", "bob", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultChatMessageLimit, page.Limit)
	assert.Len(t, page.Messages, 3)

	page, err = env.chats.GetMessages(ctx, "alice", "bob", 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxChatMessageLimit, page.Limit)
}

func TestChatService_SendValidationOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	_, err := env.chats.SendMessage(ctx, "alice", "ghost", textMessage("hi"), nil)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = env.chats.SendMessage(ctx, "alice", "alice", textMessage("hi"), nil)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.chats.SendMessage(ctx, "alice", "bob", textMessage("   "), nil)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	// Hiçbiri yazım yapmadı.
	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count))
	assert.Zero(t, count)
	assert.Empty(t, env.hub.byOp(ws.OpChatMessageCreate))
}

func TestChatService_BlockGatesBothDirections(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	perms, err := env.chats.Block(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, perms.IsBlocked)
	assert.False(t, perms.CanMessage)
	assert.False(t, perms.CanCall)

	// İdempotent.
	_, err = env.chats.Block(ctx, "bob", "alice")
	require.NoError(t, err)

	_, err = env.chats.SendMessage(ctx, "alice", "bob", textMessage("hi"), nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	_, err = env.chats.SendMessage(ctx, "bob", "alice", textMessage("hi"), nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	updates := env.hub.byOp(ws.OpChatBlockUpdate)
	require.Len(t, updates, 4)
	for _, u := range updates[:2] {
		data := u.Event.Data.(ws.ChatBlockUpdateData)
		require.Len(t, u.Rooms, 1)
		switch u.Rooms[0] {
		case ws.UserRoom("alice"):
			assert.True(t, data.Permissions.IsBlockedByTarget)
			assert.False(t, data.Permissions.IsBlocked)
		case ws.UserRoom("bob"):
			assert.True(t, data.Permissions.IsBlocked)
		default:
			t.Fatalf("unexpected room %s", u.Rooms[0])
		}
		assert.True(t, data.BlockedBy.Contains("bob"))
	}

	list, err := env.chats.ListChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Permissions.IsBlockedByTarget)
	assert.Equal(t, "bob", list[0].OtherUser.ID)

	perms, err = env.chats.Unblock(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, perms.CanMessage)

	_, err = env.chats.SendMessage(ctx, "alice", "bob", textMessage("hi again"), nil)
	require.NoError(t, err)

	_, err = env.chats.Block(ctx, "bob", "bob")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
	_, err = env.chats.Block(ctx, "bob", "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatService_HideIsPerParticipant(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	ctx := context.Background()

	// Sohbet yoksa no-op.
	require.NoError(t, env.chats.Hide(ctx, "alice", "carol"))
	assert.Empty(t, env.hub.byOp(ws.OpChatRemoved))

	_, err := env.chats.SendMessage(ctx, "alice", "bob", textMessage("hi"), nil)
	require.NoError(t, err)

	require.NoError(t, env.chats.Hide(ctx, "alice", "bob"))
	removed := env.hub.byOp(ws.OpChatRemoved)
	require.Len(t, removed, 2)
	assert.Equal(t, "alice", removed[0].Event.Data.(ws.ChatRemovedData).RemovedFor)

	aliceList, err := env.chats.ListChats(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, aliceList)

	bobList, err := env.chats.ListChats(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, 1, bobList[0].UnreadCount)

	// Yeni mesaj sohbeti iki taraf için de görünür yapar.
	env.tick()
	_, err = env.chats.SendMessage(ctx, "bob", "alice", textMessage("you there?"), nil)
	require.NoError(t, err)
	aliceList, err = env.chats.ListChats(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, aliceList, 1)
}

func TestChatService_ClearKeepsShellAndSets(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	_, err := env.chats.SendMessage(ctx, "alice", "bob", textMessage("hi"), nil)
	require.NoError(t, err)
	_, err = env.chats.Block(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, env.chats.Clear(ctx, "bob", "alice"))

	chat, err := env.chatRepo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Nil(t, chat.LastMessage)
	assert.Nil(t, chat.LastMessageAt)
	assert.Equal(t, 0, chat.UnreadFor("bob"))
	assert.True(t, chat.BlockedBy.Contains("alice"))

	msgs, err := env.msgRepo.ListByChat(ctx, chat.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	cleared := env.hub.byOp(ws.OpChatCleared)
	require.Len(t, cleared, 1)
	assert.ElementsMatch(t, []string{ws.UserRoom("alice"), ws.UserRoom("bob"), ws.ChatRoom(chat.ID)}, cleared[0].Rooms)
	assert.Equal(t, "bob", cleared[0].Event.Data.(ws.ChatClearedData).ClearedBy)
}

func TestChatService_AttachmentOnlyMessage(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	msg, err := env.chats.SendMessage(ctx, "alice", "bob", textMessage(""), pngUpload("cat.png", "png!"))
	require.NoError(t, err)
	require.Len(t, msg.Media, 1)
	assert.Equal(t, models.MediaTypeImage, msg.Media[0].Type)
	assert.True(t, strings.HasPrefix(msg.Media[0].URL, UploadURLPrefix))

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	chat, err := env.chatRepo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Shared a image", chat.LastMessage.Text)
}

// failingMessageRepo, sadece Create'i bozar.
type failingMessageRepo struct {
	repository.MessageRepository
}

func (failingMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	return errors.New("disk full")
}

func TestChatService_PersistFailureRemovesAttachment(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	dir := NewUserDirectory(env.users, env.clock, time.Minute)
	svc := NewChatService(env.chatRepo, failingMessageRepo{env.msgRepo}, dir, env.store, env.hub, nil, env.clock)

	_, err := svc.SendMessage(context.Background(), "alice", "bob", textMessage("look"), pngUpload("cat.png", "png!"))
	require.Error(t, err)

	entries, err := os.ReadDir(env.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, env.hub.byOp(ws.OpChatMessageCreate))
}

func TestChatService_SendIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob")
	dir := NewUserDirectory(env.users, env.clock, time.Minute)
	limiter := ratelimit.NewKeyedLimiter(env.clock, rate.Every(10*time.Second), 1, time.Hour)
	svc := NewChatService(env.chatRepo, env.msgRepo, dir, env.store, env.hub, limiter, env.clock)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "alice", "bob", textMessage("one"), nil)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "alice", "bob", textMessage("two"), nil)
	require.ErrorIs(t, err, pkg.ErrTooManyRequests)
	var rateErr *pkg.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 10, rateErr.RetryAfterSeconds)

	// Limit kullanıcı bazlıdır.
	_, err = svc.SendMessage(ctx, "bob", "alice", textMessage("three"), nil)
	require.NoError(t, err)

	env.clock.Add(10 * time.Second)
	_, err = svc.SendMessage(ctx, "alice", "bob", textMessage("four"), nil)
	require.NoError(t, err)
}

func TestChatService_AuthorizeChatRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "alice", "bob", "carol")
	ctx := context.Background()

	chat, err := env.chats.ResolveChat(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.NoError(t, env.chats.AuthorizeChatRoom(ctx, "alice", chat.ID))
	assert.ErrorIs(t, env.chats.AuthorizeChatRoom(ctx, "carol", chat.ID), pkg.ErrForbidden)
	assert.ErrorIs(t, env.chats.AuthorizeChatRoom(ctx, "alice", "missing"), pkg.ErrNotFound)
}
