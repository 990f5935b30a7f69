package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akinalp/sohbet/database"
	"github.com/akinalp/sohbet/models"
	"github.com/google/uuid"
)

type sqliteMessageRepo struct {
	db *sql.DB
}

// NewSQLiteMessageRepo, MessageRepository'nin SQLite implementasyonunu döner.
func NewSQLiteMessageRepo(db *sql.DB) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}

	var callType, callStatus any
	if msg.CallType != nil {
		callType = string(*msg.CallType)
	}
	if msg.CallStatus != nil {
		callStatus = string(*msg.CallStatus)
	}
	var callDuration any
	if msg.CallDuration != nil {
		callDuration = *msg.CallDuration
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, receiver_id, text, status,
				call_type, call_status, call_duration, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChatID, msg.SenderID, msg.ReceiverID, nullableString(msg.Text), string(msg.Status),
			callType, callStatus, callDuration, toMillis(msg.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		for _, m := range msg.Media {
			var duration any
			if m.Duration != nil {
				duration = *m.Duration
			}
			var thumb any
			if m.ThumbURL != nil {
				thumb = *m.ThumbURL
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO message_media (message_id, url, type, size, thumb_url, mime_type, duration)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				msg.ID, m.URL, string(m.Type), m.Size, thumb, nullableString(m.MimeType), duration,
			); err != nil {
				return fmt.Errorf("failed to insert message media: %w", err)
			}
		}
		return nil
	})
}

func (r *sqliteMessageRepo) ListByChat(ctx context.Context, chatID string, offset, limit int) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, receiver_id, text, status,
			call_type, call_status, call_duration, created_at
		 FROM messages
		 WHERE chat_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		var text, callType, callStatus sql.NullString
		var callDuration sql.NullInt64
		var status string
		var createdAt int64

		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.ReceiverID, &text, &status,
			&callType, &callStatus, &callDuration, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.Text = text.String
		m.Status = models.MessageStatus(status)
		if callType.Valid {
			ct := models.CallType(callType.String)
			m.CallType = &ct
		}
		if callStatus.Valid {
			cs := models.CallStatus(callStatus.String)
			m.CallStatus = &cs
		}
		m.CallDuration = intPtr(callDuration)
		m.CreatedAt = fromMillis(createdAt)
		m.Media = []models.Media{}
		m.ReadBy = models.NewIDSet()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	if err := r.loadMediaAndReads(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkReadForReceiver: okundu kaydı ve status güncellemesi aynı transaction'dadır;
// sadece henüz read olmayan mesajlar etkilenir, tekrar çağrı 0 döner.
func (r *sqliteMessageRepo) MarkReadForReceiver(ctx context.Context, chatID, receiverID string, at time.Time) (int64, error) {
	var updated int64
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
			 SELECT id, ?, ? FROM messages
			 WHERE chat_id = ? AND receiver_id = ? AND status != 'read'`,
			receiverID, toMillis(at), chatID, receiverID,
		); err != nil {
			return fmt.Errorf("failed to record read receipts: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE messages SET status = 'read'
			 WHERE chat_id = ? AND receiver_id = ? AND status != 'read'`,
			chatID, receiverID)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		updated, err = affected(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// loadMediaAndReads, sayfadaki mesajların medya ve okundu bilgilerini toplu yükler.
func (r *sqliteMessageRepo) loadMediaAndReads(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	index := make(map[string]int, len(messages))
	ids := make([]string, len(messages))
	for i := range messages {
		index[messages[i].ID] = i
		ids[i] = messages[i].ID
	}
	placeholders, args := inClause(ids)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT message_id, url, type, size, thumb_url, mime_type, duration
		 FROM message_media WHERE message_id IN (%s) ORDER BY id ASC`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to load message media: %w", err)
	}
	for rows.Next() {
		var messageID, mediaType string
		var m models.Media
		var thumb, mime sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&messageID, &m.URL, &mediaType, &m.Size, &thumb, &mime, &duration); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan message media: %w", err)
		}
		m.Type = models.MediaType(mediaType)
		m.ThumbURL = stringPtr(thumb)
		m.MimeType = mime.String
		m.Duration = intPtr(duration)
		i := index[messageID]
		messages[i].Media = append(messages[i].Media, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating message media: %w", err)
	}

	rows, err = r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT message_id, user_id FROM message_reads WHERE message_id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to load read receipts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("failed to scan read receipt: %w", err)
		}
		messages[index[messageID]].ReadBy.Add(userID)
	}
	return rows.Err()
}
