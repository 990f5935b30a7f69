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

type sqliteCircleMessageRepo struct {
	db *sql.DB
}

// NewSQLiteCircleMessageRepo, CircleMessageRepository'nin SQLite implementasyonunu döner.
func NewSQLiteCircleMessageRepo(db *sql.DB) CircleMessageRepository {
	return &sqliteCircleMessageRepo{db: db}
}

func (r *sqliteCircleMessageRepo) Create(ctx context.Context, msg *models.CircleMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Attachments == nil {
		msg.Attachments = []models.CircleAttachment{}
	}

	var sender any
	if msg.SenderID != nil {
		sender = *msg.SenderID
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO circle_messages (id, circle_id, sender_id, text, system, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.CircleID, sender, msg.Text, msg.System, toMillis(msg.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert circle message: %w", err)
		}

		for _, a := range msg.Attachments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO circle_message_attachments (message_id, url, type, size, mime_type)
				 VALUES (?, ?, ?, ?, ?)`,
				msg.ID, a.URL, string(a.Type), a.Size, nullableString(a.MimeType),
			); err != nil {
				return fmt.Errorf("failed to insert circle attachment: %w", err)
			}
		}
		return nil
	})
}

func (r *sqliteCircleMessageRepo) List(ctx context.Context, circleID string, offset, limit int) ([]models.CircleMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.circle_id, m.sender_id, m.text, m.system, m.created_at,
			u.username, u.display_name, u.avatar_url
		 FROM circle_messages m
		 LEFT JOIN users u ON u.id = m.sender_id
		 WHERE m.circle_id = ?
		 ORDER BY m.created_at DESC, m.rowid DESC
		 LIMIT ? OFFSET ?`,
		circleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list circle messages: %w", err)
	}
	defer rows.Close()

	messages := []models.CircleMessage{}
	for rows.Next() {
		var m models.CircleMessage
		var sender, username, displayName, avatar sql.NullString
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.CircleID, &sender, &m.Text, &m.System, &createdAt,
			&username, &displayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan circle message: %w", err)
		}
		m.SenderID = stringPtr(sender)
		m.CreatedAt = fromMillis(createdAt)
		m.Attachments = []models.CircleAttachment{}
		if sender.Valid && username.Valid {
			m.Sender = &models.UserSummary{
				ID:          sender.String,
				Username:    username.String,
				DisplayName: stringPtr(displayName),
				AvatarURL:   stringPtr(avatar),
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circle messages: %w", err)
	}

	if err := r.loadAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *sqliteCircleMessageRepo) Count(ctx context.Context, circleID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM circle_messages WHERE circle_id = ?`, circleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count circle messages: %w", err)
	}
	return n, nil
}

func (r *sqliteCircleMessageRepo) loadAttachments(ctx context.Context, messages []models.CircleMessage) error {
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
		fmt.Sprintf(`SELECT message_id, url, type, size, mime_type
		 FROM circle_message_attachments WHERE message_id IN (%s) ORDER BY id ASC`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to load circle attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, mediaType string
		var a models.CircleAttachment
		var mime sql.NullString
		if err := rows.Scan(&messageID, &a.URL, &mediaType, &a.Size, &mime); err != nil {
			return fmt.Errorf("failed to scan circle attachment: %w", err)
		}
		a.Type = models.MediaType(mediaType)
		a.MimeType = mime.String
		i := index[messageID]
		messages[i].Attachments = append(messages[i].Attachments, a)
	}
	return rows.Err()
}
