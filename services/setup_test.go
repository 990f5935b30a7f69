package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/sohbet/database"
	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg/crypto"
	"github.com/akinalp/sohbet/pkg/email"
	"github.com/akinalp/sohbet/repository"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type published struct {
	Event ws.Event
	Rooms []string
}

// recordingPublisher, yayınlanan event'leri kaydeden ws.EventPublisher.
type recordingPublisher struct {
	mu      sync.Mutex
	events  []published
	evicted []string
}

func (p *recordingPublisher) Publish(event ws.Event, rooms ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Event: event, Rooms: rooms})
}

func (p *recordingPublisher) BroadcastToUser(userID string, event ws.Event) {
	p.Publish(event, ws.UserRoom(userID))
}

func (p *recordingPublisher) BroadcastToAll(event ws.Event) {
	p.Publish(event, "*")
}

func (p *recordingPublisher) RemoveUserFromRoom(userID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted = append(p.evicted, userID+"@"+room)
}

// byOp, verilen op ile yayınlanan event'leri döner.
func (p *recordingPublisher) byOp(op string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Event.Op == op {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.evicted = nil
}

type sentNotice struct {
	To     string
	Notice email.OwnershipNotice
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (m *recordingMailer) SendOwnershipNotice(ctx context.Context, toEmail string, notice email.OwnershipNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotice{To: toEmail, Notice: notice})
	return m.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "services.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn
}

// testEnv, gerçek SQLite üzerinde servisleri kurar.
type testEnv struct {
	db        *sql.DB
	clock     *clock.Mock
	hub       *recordingPublisher
	mailer    *recordingMailer
	users     repository.UserRepository
	chatRepo  repository.ChatRepository
	msgRepo   repository.MessageRepository
	store     AttachmentStore
	uploadDir string
	chats     ChatService
	circles   CircleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDiskAttachmentStore(uploadDir, 1024*1024)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		clock:     clk,
		hub:       &recordingPublisher{},
		mailer:    &recordingMailer{},
		users:     repository.NewSQLiteUserRepo(db),
		chatRepo:  repository.NewSQLiteChatRepo(db),
		msgRepo:   repository.NewSQLiteMessageRepo(db),
		store:     store,
		uploadDir: uploadDir,
	}
	dir := NewUserDirectory(env.users, clk, time.Minute)

	env.chats = NewChatService(env.chatRepo, env.msgRepo, dir, store, env.hub, nil, clk)
	env.circles = NewCircleService(
		repository.NewSQLiteCircleRepo(db),
		repository.NewSQLiteCircleMessageRepo(db),
		dir,
		crypto.NewBcryptVerifier(bcrypt.MinCost),
		store,
		env.hub,
		env.mailer,
		clk,
	)
	return env
}

func (e *testEnv) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		mail := id + "@example.com"
		require.NoError(t, e.users.Create(context.Background(), &models.User{
			ID:       id,
			Username: "user_" + id,
			Email:    &mail,
		}))
	}
}

// tick, sıralı zaman damgaları için mock saati ilerletir.
func (e *testEnv) tick() {
	e.clock.Add(time.Second)
}
