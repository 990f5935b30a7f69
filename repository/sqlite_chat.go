package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/sohbet/database"
	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/google/uuid"
)

type sqliteChatRepo struct {
	db *sql.DB
}

// NewSQLiteChatRepo, ChatRepository'nin SQLite implementasyonunu döner.
func NewSQLiteChatRepo(db *sql.DB) ChatRepository {
	return &sqliteChatRepo{db: db}
}

const chatColumns = `c.id, c.user_low, c.user_high, c.is_group,
	c.last_message_id, c.last_message_sender_id, c.last_message_text,
	c.last_message_media_type, c.last_message_preview_url, c.last_message_at, c.created_at`

func (r *sqliteChatRepo) GetByPair(ctx context.Context, userA, userB string) (*models.Chat, error) {
	low, high := models.CanonicalPair(userA, userB)

	row := r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats c WHERE c.user_low = ? AND c.user_high = ?`, low, high)

	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat by pair: %w", err)
	}

	if err := r.loadState(ctx, []*models.Chat{chat}); err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *sqliteChatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)

	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: chat not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	if err := r.loadState(ctx, []*models.Chat{chat}); err != nil {
		return nil, err
	}
	return chat, nil
}

// Create, sohbeti ve iki katılımcının sıfır sayaçlarını tek transaction'da yazar.
// ON CONFLICT DO NOTHING ile eşzamanlı ikinci yaratıcı hata yerine 0 satır görür.
func (r *sqliteChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	if len(chat.Participants) != 2 || chat.Participants[0] == chat.Participants[1] {
		return fmt.Errorf("%w: a direct chat needs two distinct participants", pkg.ErrBadRequest)
	}
	low, high := models.CanonicalPair(chat.Participants[0], chat.Participants[1])

	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, user_low, user_high, is_group, created_at)
			 VALUES (?, ?, ?, 0, ?)
			 ON CONFLICT (user_low, user_high) DO NOTHING`,
			chat.ID, low, high, toMillis(chat.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert chat: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: chat already exists for pair", pkg.ErrAlreadyExists)
		}

		for _, uid := range []string{low, high} {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO chat_unread (chat_id, user_id, count) VALUES (?, ?, 0)`,
				chat.ID, uid); err != nil {
				return fmt.Errorf("failed to init unread counter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	chat.Participants = []string{low, high}
	chat.IsGroup = false
	chat.UnreadCounts = map[string]int{low: 0, high: 0}
	chat.BlockedBy = models.NewIDSet()
	chat.HiddenFor = models.NewIDSet()
	return nil
}

func (r *sqliteChatRepo) ListVisible(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chatColumns+`
		 FROM chats c
		 WHERE (c.user_low = ? OR c.user_high = ?)
		   AND NOT EXISTS (SELECT 1 FROM chat_hidden h WHERE h.chat_id = c.id AND h.user_id = ?)
		 ORDER BY c.last_message_at IS NULL, c.last_message_at DESC, c.created_at DESC`,
		userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var ptrs []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		ptrs = append(ptrs, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	if err := r.loadState(ctx, ptrs); err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(ptrs))
	for _, c := range ptrs {
		chats = append(chats, *c)
	}
	return chats, nil
}

func (r *sqliteChatRepo) SetLastMessage(ctx context.Context, chatID string, lm *models.LastMessage) error {
	var mediaType any
	if lm.MediaType != nil {
		mediaType = string(*lm.MediaType)
	}
	var preview any
	if lm.PreviewURL != nil {
		preview = *lm.PreviewURL
	}
	at := toMillis(lm.CreatedAt)

	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET
			last_message_id = ?, last_message_sender_id = ?, last_message_text = ?,
			last_message_media_type = ?, last_message_preview_url = ?, last_message_at = ?
		 WHERE id = ? AND (last_message_at IS NULL OR last_message_at <= ?)`,
		lm.MessageID, lm.SenderID, lm.Text, mediaType, preview, at, chatID, at)
	if err != nil {
		return fmt.Errorf("failed to set last message: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) ClearHistory(ctx context.Context, chatID string) (int64, error) {
	var deleted int64
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
		if err != nil {
			return fmt.Errorf("failed to delete chat messages: %w", err)
		}
		if deleted, err = affected(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET
				last_message_id = NULL, last_message_sender_id = NULL, last_message_text = NULL,
				last_message_media_type = NULL, last_message_preview_url = NULL, last_message_at = NULL
			 WHERE id = ?`, chatID); err != nil {
			return fmt.Errorf("failed to clear last message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE chat_unread SET count = 0 WHERE chat_id = ?`, chatID); err != nil {
			return fmt.Errorf("failed to reset unread counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *sqliteChatRepo) IncrementUnread(ctx context.Context, chatID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_unread (chat_id, user_id, count) VALUES (?, ?, 1)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET count = count + 1`,
		chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to increment unread: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) ResetUnread(ctx context.Context, chatID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_unread (chat_id, user_id, count) VALUES (?, ?, 0)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET count = 0`,
		chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to reset unread: %w", err)
	}
	return nil
}

func (r *sqliteChatRepo) AddBlock(ctx context.Context, chatID, userID string) (bool, error) {
	return r.setAdd(ctx, "chat_blocks", chatID, userID)
}

func (r *sqliteChatRepo) RemoveBlock(ctx context.Context, chatID, userID string) (bool, error) {
	return r.setRemove(ctx, "chat_blocks", chatID, userID)
}

func (r *sqliteChatRepo) AddHidden(ctx context.Context, chatID, userID string) (bool, error) {
	return r.setAdd(ctx, "chat_hidden", chatID, userID)
}

func (r *sqliteChatRepo) RemoveHidden(ctx context.Context, chatID string, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	placeholders, args := inClause(userIDs)
	args = append([]any{chatID}, args...)

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chat_hidden WHERE chat_id = ? AND user_id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to unhide chat: %w", err)
	}
	return nil
}

// setAdd / setRemove: table sadece sabit küme tablolarından biri olabilir
// (chat_blocks, chat_hidden); kullanıcı girdisi değildir.
func (r *sqliteChatRepo) setAdd(ctx context.Context, table, chatID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (chat_id, user_id, created_at) VALUES (?, ?, ?)`, table),
		chatID, userID, toMillis(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to add to %s: %w", table, err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqliteChatRepo) setRemove(ctx context.Context, table, chatID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE chat_id = ? AND user_id = ?`, table), chatID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove from %s: %w", table, err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// loadState, sohbetlerin sayaç ve kümelerini toplu yükler (N+1 yerine 3 sorgu).
func (r *sqliteChatRepo) loadState(ctx context.Context, chats []*models.Chat) error {
	if len(chats) == 0 {
		return nil
	}

	byID := make(map[string]*models.Chat, len(chats))
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		c.UnreadCounts = map[string]int{c.Participants[0]: 0, c.Participants[1]: 0}
		c.BlockedBy = models.NewIDSet()
		c.HiddenFor = models.NewIDSet()
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	placeholders, args := inClause(ids)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT chat_id, user_id, count FROM chat_unread WHERE chat_id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to load unread counters: %w", err)
	}
	for rows.Next() {
		var chatID, userID string
		var count int
		if err := rows.Scan(&chatID, &userID, &count); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan unread counter: %w", err)
		}
		byID[chatID].UnreadCounts[userID] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating unread counters: %w", err)
	}

	load := func(table string, pick func(*models.Chat) models.IDSet) error {
		rows, err := r.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT chat_id, user_id FROM %s WHERE chat_id IN (%s)`, table, placeholders), args...)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var chatID, userID string
			if err := rows.Scan(&chatID, &userID); err != nil {
				return fmt.Errorf("failed to scan %s: %w", table, err)
			}
			pick(byID[chatID]).Add(userID)
		}
		return rows.Err()
	}

	if err := load("chat_blocks", func(c *models.Chat) models.IDSet { return c.BlockedBy }); err != nil {
		return err
	}
	return load("chat_hidden", func(c *models.Chat) models.IDSet { return c.HiddenFor })
}

func scanChat(s rowScanner) (*models.Chat, error) {
	var c models.Chat
	var low, high string
	var lmID, lmSender, lmText, lmMedia, lmPreview sql.NullString
	var lmAt sql.NullInt64
	var createdAt int64
	if err := s.Scan(&c.ID, &low, &high, &c.IsGroup,
		&lmID, &lmSender, &lmText, &lmMedia, &lmPreview, &lmAt, &createdAt); err != nil {
		return nil, err
	}

	c.Participants = []string{low, high}
	c.CreatedAt = fromMillis(createdAt)
	c.LastMessageAt = fromNullMillis(lmAt)

	if lmID.Valid && lmAt.Valid {
		lm := &models.LastMessage{
			MessageID:  lmID.String,
			SenderID:   lmSender.String,
			Text:       lmText.String,
			PreviewURL: stringPtr(lmPreview),
			CreatedAt:  fromMillis(lmAt.Int64),
		}
		if lmMedia.Valid {
			mt := models.MediaType(lmMedia.String)
			lm.MediaType = &mt
		}
		c.LastMessage = lm
	}
	return &c, nil
}
