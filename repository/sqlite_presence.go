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
)

type sqlitePresenceRepo struct {
	db database.TxQuerier
}

// NewSQLitePresenceRepo, PresenceRepository'nin SQLite implementasyonunu döner.
func NewSQLitePresenceRepo(db database.TxQuerier) PresenceRepository {
	return &sqlitePresenceRepo{db: db}
}

func (r *sqlitePresenceRepo) Upsert(ctx context.Context, userID string, isActive bool, lastActive time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_active, last_active) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET is_active = excluded.is_active, last_active = excluded.last_active`,
		userID, isActive, toMillis(lastActive))
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

func (r *sqlitePresenceRepo) Get(ctx context.Context, userID string) (*models.Presence, error) {
	var p models.Presence
	var lastActive int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, is_active, last_active FROM presence WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.IsActive, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: presence not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	p.LastActive = fromMillis(lastActive)
	return &p, nil
}

func (r *sqlitePresenceRepo) GetMany(ctx context.Context, userIDs []string) (map[string]*models.Presence, error) {
	result := make(map[string]*models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	placeholders, args := inClause(userIDs)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT user_id, is_active, last_active FROM presence WHERE user_id IN (%s)`, placeholders),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get presences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Presence
		var lastActive int64
		if err := rows.Scan(&p.UserID, &p.IsActive, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		p.LastActive = fromMillis(lastActive)
		result[p.UserID] = &p
	}
	return result, rows.Err()
}
