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

type sqliteCircleRepo struct {
	db *sql.DB
}

// NewSQLiteCircleRepo, CircleRepository'nin SQLite implementasyonunu döner.
func NewSQLiteCircleRepo(db *sql.DB) CircleRepository {
	return &sqliteCircleRepo{db: db}
}

// circleColumns, owner ve üye sayısını alt sorgularla türetir.
const circleColumns = `c.id, c.name, c.description, c.visibility, c.theme, c.join_key_hash,
	c.last_activity_at, c.created_at,
	COALESCE((SELECT o.user_id FROM circle_members o WHERE o.circle_id = c.id AND o.role = 'owner'), ''),
	(SELECT COUNT(*) FROM circle_members m WHERE m.circle_id = c.id)`

func (r *sqliteCircleRepo) Create(ctx context.Context, circle *models.Circle, ownerID string) error {
	if circle.ID == "" {
		circle.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if circle.CreatedAt.IsZero() {
		circle.CreatedAt = now
	}
	if circle.LastActivityAt.IsZero() {
		circle.LastActivityAt = circle.CreatedAt
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO circles (id, name, description, visibility, join_key_hash, theme, last_activity_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			circle.ID, circle.Name, circle.Description, string(circle.Visibility),
			nullableString(circle.JoinKeyHash), string(circle.Theme),
			toMillis(circle.LastActivityAt), toMillis(circle.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert circle: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO circle_members (circle_id, user_id, role, joined_at) VALUES (?, ?, 'owner', ?)`,
			circle.ID, ownerID, toMillis(circle.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert circle owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	circle.OwnerID = ownerID
	circle.MemberCount = 1
	return nil
}

func (r *sqliteCircleRepo) GetByID(ctx context.Context, id string) (*models.Circle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+circleColumns+` FROM circles c WHERE c.id = ?`, id)

	circle, err := scanCircle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: circle not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return circle, nil
}

func (r *sqliteCircleRepo) ListForUser(ctx context.Context, userID string) ([]models.CircleListItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+circleColumns+`, me.role, COALESCE(me.is_pinned, 0)
		 FROM circles c
		 LEFT JOIN circle_members me ON me.circle_id = c.id AND me.user_id = ?
		 WHERE c.visibility = 'public' OR me.user_id IS NOT NULL
		 ORDER BY COALESCE(me.is_pinned, 0) DESC, c.last_activity_at DESC, c.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	items := []models.CircleListItem{}
	for rows.Next() {
		var role sql.NullString
		var pinned bool
		circle, err := scanCircle(rows, &role, &pinned)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}

		item := models.CircleListItem{Circle: *circle, IsPinned: pinned, MembersPreview: []models.UserSummary{}}
		if role.Valid {
			rl := models.CircleRole(role.String)
			item.MyRole = &rl
			item.IsMember = true
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circles: %w", err)
	}
	return items, nil
}

func (r *sqliteCircleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM circles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete circle: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: circle not found", pkg.ErrNotFound)
	}
	return nil
}

func (r *sqliteCircleRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE circles SET last_activity_at = MAX(last_activity_at, ?) WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch circle activity: %w", err)
	}
	return nil
}

func (r *sqliteCircleRepo) GetMember(ctx context.Context, circleID, userID string) (*models.CircleMember, error) {
	var m models.CircleMember
	var role string
	var joinedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, joined_at, is_pinned FROM circle_members WHERE circle_id = ? AND user_id = ?`,
		circleID, userID,
	).Scan(&m.UserID, &role, &joinedAt, &m.IsPinned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get circle member: %w", err)
	}
	m.Role = models.CircleRole(role)
	m.JoinedAt = fromMillis(joinedAt)
	return &m, nil
}

func (r *sqliteCircleRepo) ListMembers(ctx context.Context, circleID string) ([]models.CircleMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cm.user_id, cm.role, cm.joined_at, cm.is_pinned,
			u.username, u.display_name, u.avatar_url
		 FROM circle_members cm
		 JOIN users u ON u.id = cm.user_id
		 WHERE cm.circle_id = ?
		 ORDER BY cm.joined_at ASC, cm.rowid ASC`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list circle members: %w", err)
	}
	defer rows.Close()

	members := []models.CircleMember{}
	for rows.Next() {
		var m models.CircleMember
		var role string
		var joinedAt int64
		var summary models.UserSummary
		var displayName, avatar sql.NullString
		if err := rows.Scan(&m.UserID, &role, &joinedAt, &m.IsPinned,
			&summary.Username, &displayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan circle member: %w", err)
		}
		summary.ID = m.UserID
		summary.DisplayName = stringPtr(displayName)
		summary.AvatarURL = stringPtr(avatar)
		m.Role = models.CircleRole(role)
		m.JoinedAt = fromMillis(joinedAt)
		m.User = &summary
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circle members: %w", err)
	}
	return members, nil
}

func (r *sqliteCircleRepo) MembersPreview(ctx context.Context, circleIDs []string, n int) (map[string][]models.UserSummary, error) {
	result := make(map[string][]models.UserSummary, len(circleIDs))
	if len(circleIDs) == 0 {
		return result, nil
	}

	placeholders, args := inClause(circleIDs)
	args = append(args, n)

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT circle_id, user_id, username, display_name, avatar_url FROM (
			SELECT cm.circle_id, cm.user_id, u.username, u.display_name, u.avatar_url,
				ROW_NUMBER() OVER (PARTITION BY cm.circle_id ORDER BY cm.joined_at ASC, cm.rowid ASC) AS rn
			FROM circle_members cm
			JOIN users u ON u.id = cm.user_id
			WHERE cm.circle_id IN (%s)
		 ) WHERE rn <= ? ORDER BY circle_id, rn`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load members preview: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var circleID string
		var s models.UserSummary
		var displayName, avatar sql.NullString
		if err := rows.Scan(&circleID, &s.ID, &s.Username, &displayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan members preview: %w", err)
		}
		s.DisplayName = stringPtr(displayName)
		s.AvatarURL = stringPtr(avatar)
		result[circleID] = append(result[circleID], s)
	}
	return result, rows.Err()
}

func (r *sqliteCircleRepo) AddMember(ctx context.Context, circleID, userID string, role models.CircleRole, joinedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO circle_members (circle_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		circleID, userID, string(role), toMillis(joinedAt))
	if err != nil {
		return false, fmt.Errorf("failed to add circle member: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqliteCircleRepo) RemoveMember(ctx context.Context, circleID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM circle_members WHERE circle_id = ? AND user_id = ? AND role != 'owner'`, circleID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove circle member: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sqliteCircleRepo) TransferOwnership(ctx context.Context, circleID, fromUserID, toUserID string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Önce eski owner düşürülür; aksi halde tek-owner index'i ikinci owner'ı reddeder.
		res, err := tx.ExecContext(ctx,
			`UPDATE circle_members SET role = 'admin' WHERE circle_id = ? AND user_id = ? AND role = 'owner'`,
			circleID, fromUserID)
		if err != nil {
			return fmt.Errorf("failed to demote owner: %w", err)
		}
		if n, err := affected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: only the owner can transfer ownership", pkg.ErrForbidden)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE circle_members SET role = 'owner' WHERE circle_id = ? AND user_id = ?`,
			circleID, toUserID)
		if err != nil {
			return fmt.Errorf("failed to promote member: %w", err)
		}
		if n, err := affected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: target is not a member of this circle", pkg.ErrNotFound)
		}
		return nil
	})
}

func (r *sqliteCircleRepo) RemoveOwnerAndPromote(ctx context.Context, circleID, ownerID string) (string, bool, error) {
	var newOwner string
	var deleted bool

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM circle_members WHERE circle_id = ? AND user_id = ? AND role = 'owner'`,
			circleID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to remove owner: %w", err)
		}
		if n, err := affected(res); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: user is not the owner of this circle", pkg.ErrForbidden)
		}

		// Önce admin'ler, sonra üyeler; her grupta join sırası.
		err = tx.QueryRowContext(ctx,
			`SELECT user_id FROM circle_members
			 WHERE circle_id = ?
			 ORDER BY CASE role WHEN 'admin' THEN 0 ELSE 1 END, joined_at ASC, rowid ASC
			 LIMIT 1`, circleID,
		).Scan(&newOwner)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM circles WHERE id = ?`, circleID); err != nil {
				return fmt.Errorf("failed to delete empty circle: %w", err)
			}
			deleted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find successor: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE circle_members SET role = 'owner' WHERE circle_id = ? AND user_id = ?`,
			circleID, newOwner); err != nil {
			return fmt.Errorf("failed to promote successor: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return newOwner, deleted, nil
}

func (r *sqliteCircleRepo) TogglePin(ctx context.Context, circleID, userID string) (bool, error) {
	var pinned bool
	err := r.db.QueryRowContext(ctx,
		`UPDATE circle_members SET is_pinned = 1 - is_pinned
		 WHERE circle_id = ? AND user_id = ?
		 RETURNING is_pinned`, circleID, userID,
	).Scan(&pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: not a member of this circle", pkg.ErrForbidden)
	}
	if err != nil {
		return false, fmt.Errorf("failed to toggle pin: %w", err)
	}
	return pinned, nil
}

// scanCircle, circleColumns sırasını okur; extra varsa sonraki kolonlara yazar.
func scanCircle(s rowScanner, extra ...any) (*models.Circle, error) {
	var c models.Circle
	var visibility, theme string
	var joinKeyHash sql.NullString
	var lastActivity, createdAt int64

	dest := []any{&c.ID, &c.Name, &c.Description, &visibility, &theme, &joinKeyHash,
		&lastActivity, &createdAt, &c.OwnerID, &c.MemberCount}
	dest = append(dest, extra...)

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	c.Visibility = models.CircleVisibility(visibility)
	c.Theme = models.CircleTheme(theme)
	c.JoinKeyHash = joinKeyHash.String
	c.LastActivityAt = fromMillis(lastActivity)
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}
