package repository

import (
	"context"
	"time"

	"github.com/akinalp/sohbet/models"
)

// CircleRepository, circle ve üyelik veritabanı işlemleri.
//
// Üyelik (circle_id, user_id) primary key'i ile tekrarsızdır; circle başına
// tek owner partial unique index ile garanti edilir. Join sırası
// joined_at ve ardından rowid ile belirlenir.
type CircleRepository interface {
	// Create, circle'ı ve ownerID'yi tek owner üye olarak aynı transaction'da yazar.
	Create(ctx context.Context, circle *models.Circle, ownerID string) error
	GetByID(ctx context.Context, id string) (*models.Circle, error)
	// ListForUser, public circle'lar + userID'nin üye olduğu private circle'lar.
	// Sıra: userID'nin pinlediği circle'lar önce, sonra last_activity_at azalan.
	ListForUser(ctx context.Context, userID string) ([]models.CircleListItem, error)
	Delete(ctx context.Context, id string) error
	TouchActivity(ctx context.Context, id string, at time.Time) error

	// GetMember, üye değilse (nil, nil) döner.
	GetMember(ctx context.Context, circleID, userID string) (*models.CircleMember, error)
	// ListMembers, üyeleri join sırasıyla kullanıcı özetleriyle döner.
	ListMembers(ctx context.Context, circleID string) ([]models.CircleMember, error)
	// MembersPreview, her circle için join sırasıyla ilk n üyenin özeti.
	MembersPreview(ctx context.Context, circleIDs []string, n int) (map[string][]models.UserSummary, error)
	// AddMember, zaten üyeyse false döner ve hiçbir şey değişmez.
	AddMember(ctx context.Context, circleID, userID string, role models.CircleRole, joinedAt time.Time) (bool, error)
	RemoveMember(ctx context.Context, circleID, userID string) (bool, error)
	// TransferOwnership, fromUserID owner → admin, toUserID → owner; atomik.
	TransferOwnership(ctx context.Context, circleID, fromUserID, toUserID string) error
	// RemoveOwnerAndPromote, owner'ı çıkarır; ilk admin'i, yoksa ilk üyeyi owner yapar.
	// Kimse kalmazsa circle'ı (ve mesajlarını) siler. Atomik.
	RemoveOwnerAndPromote(ctx context.Context, circleID, ownerID string) (newOwnerID string, deleted bool, err error)
	// TogglePin, üyenin is_pinned bayrağını çevirir ve yeni değeri döner.
	TogglePin(ctx context.Context, circleID, userID string) (bool, error)
}
