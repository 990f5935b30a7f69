package repository

import (
	"context"
	"testing"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepo_CreateAndGetByPair(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	ctx := context.Background()

	missing, err := repo.GetByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)

	chat := &models.Chat{Participants: []string{"bob", "alice"}}
	require.NoError(t, repo.Create(ctx, chat))
	assert.Equal(t, []string{"alice", "bob"}, chat.Participants)

	// Çift sırasız: (B, A) aynı kaydı bulur.
	got, err := repo.GetByPair(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chat.ID, got.ID)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, got.UnreadCounts)

	err = repo.Create(ctx, &models.Chat{Participants: []string{"alice", "bob"}})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	err = repo.Create(ctx, &models.Chat{Participants: []string{"alice", "alice"}})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatRepo_UnreadCounters(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	ctx := context.Background()

	chat := &models.Chat{Participants: []string{"alice", "bob"}}
	require.NoError(t, repo.Create(ctx, chat))

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementUnread(ctx, chat.ID, "bob"))
	}
	require.NoError(t, repo.IncrementUnread(ctx, chat.ID, "alice"))

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UnreadFor("bob"))
	assert.Equal(t, 1, got.UnreadFor("alice"))

	require.NoError(t, repo.ResetUnread(ctx, chat.ID, "bob"))
	got, err = repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor("bob"))
	assert.Equal(t, 1, got.UnreadFor("alice"))

}

func TestChatRepo_BlockAndHideSets(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	ctx := context.Background()

	chat := &models.Chat{Participants: []string{"alice", "bob"}}
	require.NoError(t, repo.Create(ctx, chat))

	added, err := repo.AddBlock(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddBlock(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.False(t, added, "second add is a no-op")

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, got.BlockedBy.Contains("alice"))
	assert.False(t, got.HiddenFor.Contains("alice"), "block does not hide")

	removed, err := repo.RemoveBlock(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveBlock(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.AddHidden(ctx, chat.ID, "bob")
	require.NoError(t, err)

	visible, err := repo.ListVisible(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = repo.ListVisible(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	require.NoError(t, repo.RemoveHidden(ctx, chat.ID, "alice", "bob"))
	visible, err = repo.ListVisible(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, visible, 1)
}

func TestChatRepo_SetLastMessageNeverRegresses(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	ctx := context.Background()

	chat := &models.Chat{Participants: []string{"alice", "bob"}}
	require.NoError(t, repo.Create(ctx, chat))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.SetLastMessage(ctx, chat.ID, &models.LastMessage{
		MessageID: "m2", SenderID: "alice", Text: "newer", CreatedAt: now,
	}))
	require.NoError(t, repo.SetLastMessage(ctx, chat.ID, &models.LastMessage{
		MessageID: "m1", SenderID: "bob", Text: "older", CreatedAt: now.Add(-time.Second),
	}))

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "newer", got.LastMessage.Text)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(now))

}

func TestChatRepo_ListVisibleOrder(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob", "carol", "dave")
	repo := NewSQLiteChatRepo(db)
	ctx := context.Background()

	base := time.Now().UTC()
	var ids []string
	for i, other := range []string{"bob", "carol", "dave"} {
		c := &models.Chat{Participants: []string{"alice", other}, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, repo.Create(ctx, c))
		ids = append(ids, c.ID)
	}

	// carol en yeni mesaja, bob daha eskiye sahip; dave hiç mesajsız.
	require.NoError(t, repo.SetLastMessage(ctx, ids[0], &models.LastMessage{MessageID: "1", SenderID: "bob", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.SetLastMessage(ctx, ids[1], &models.LastMessage{MessageID: "2", SenderID: "carol", CreatedAt: base.Add(2 * time.Minute)}))

	chats, err := repo.ListVisible(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, ids[1], chats[0].ID)
	assert.Equal(t, ids[0], chats[1].ID)
	assert.Equal(t, ids[2], chats[2].ID)
}

func TestChatRepo_ClearHistory(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	messages := NewSQLiteMessageRepo(db)
	ctx := context.Background()

	chat := &models.Chat{Participants: []string{"alice", "bob"}}
	require.NoError(t, repo.Create(ctx, chat))
	for _, text := range []string{"one", "two"} {
		require.NoError(t, messages.Create(ctx, &models.Message{ChatID: chat.ID, SenderID: "alice", ReceiverID: "bob", Text: text}))
		require.NoError(t, repo.IncrementUnread(ctx, chat.ID, "bob"))
	}
	require.NoError(t, repo.SetLastMessage(ctx, chat.ID, &models.LastMessage{
		MessageID: "m2", SenderID: "alice", Text: "two", CreatedAt: time.Now().UTC(),
	}))
	_, err := repo.AddBlock(ctx, chat.ID, "bob")
	require.NoError(t, err)

	deleted, err := repo.ClearHistory(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastMessage)
	assert.Nil(t, got.LastMessageAt)
	assert.Equal(t, 0, got.UnreadFor("bob"))
	assert.True(t, got.BlockedBy.Contains("bob"), "block state survives a clear")

	left, err := messages.ListByChat(ctx, chat.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestChatRepo_ClearHistoryIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, "alice", "bob")
	repo := NewSQLiteChatRepo(db)
	messages := NewSQLiteMessageRepo(db)
	ctx := context.Background()

	chat := &models.Chat{Participants: []string{"alice", "bob"}}
	require.NoError(t, repo.Create(ctx, chat))
	require.NoError(t, messages.Create(ctx, &models.Message{ChatID: chat.ID, SenderID: "alice", ReceiverID: "bob", Text: "hi"}))
	require.NoError(t, repo.IncrementUnread(ctx, chat.ID, "bob"))
	require.NoError(t, repo.SetLastMessage(ctx, chat.ID, &models.LastMessage{
		MessageID: "m1", SenderID: "alice", Text: "hi", CreatedAt: time.Now().UTC(),
	}))

	// Son adım (sayaç sıfırlama) başarısız olursa önceki silmeler de geri alınmalı.
	_, err := db.Exec(`CREATE TRIGGER fail_unread_reset BEFORE UPDATE ON chat_unread
		BEGIN SELECT RAISE(ABORT, 'unread reset failed'); END`)
	require.NoError(t, err)

	_, err = repo.ClearHistory(ctx, chat.ID)
	require.Error(t, err)

	left, err := messages.ListByChat(ctx, chat.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)

	got, err := repo.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "hi", got.LastMessage.Text)
	assert.Equal(t, 1, got.UnreadFor("bob"))
}
