package services

import (
	"context"
	"time"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg/cache"
	"github.com/akinalp/sohbet/repository"
	"github.com/benbjohnson/clock"
)

// UserDirectory, "kullanıcıyı id ile çöz" sözleşmesi.
//
// Kullanıcılar hesap servisinde yaşar ve nadiren değişir; event payload'larına
// gömülen özetler kısa süreli cache'ten okunur.
type UserDirectory interface {
	// Get, tam kullanıcı kaydını döner (email dahil). Yoksa pkg.ErrNotFound.
	Get(ctx context.Context, userID string) (*models.User, error)
	// Summary, cache'li kullanıcı özeti. Yoksa pkg.ErrNotFound.
	Summary(ctx context.Context, userID string) (models.UserSummary, error)
	// Summaries, bulunan kullanıcıların özetleri; bulunamayanlar map'te yer almaz.
	Summaries(ctx context.Context, userIDs []string) (map[string]models.UserSummary, error)
}

type userDirectory struct {
	userRepo repository.UserRepository
	cache    *cache.TTLCache[string, models.UserSummary]
}

// NewUserDirectory, constructor. ttl: özetlerin cache'te kalma süresi.
func NewUserDirectory(userRepo repository.UserRepository, clk clock.Clock, ttl time.Duration) UserDirectory {
	return &userDirectory{
		userRepo: userRepo,
		cache:    cache.New[string, models.UserSummary](clk, ttl),
	}
}

func (d *userDirectory) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := d.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	d.cache.Set(userID, user.Summary())
	return user, nil
}

func (d *userDirectory) Summary(ctx context.Context, userID string) (models.UserSummary, error) {
	return d.cache.GetOrLoad(ctx, userID, func(ctx context.Context, id string) (models.UserSummary, error) {
		user, err := d.userRepo.GetByID(ctx, id)
		if err != nil {
			return models.UserSummary{}, err
		}
		return user.Summary(), nil
	})
}

func (d *userDirectory) Summaries(ctx context.Context, userIDs []string) (map[string]models.UserSummary, error) {
	result := make(map[string]models.UserSummary, len(userIDs))
	var missing []string
	for _, id := range userIDs {
		if s, ok := d.cache.Get(id); ok {
			result[id] = s
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	users, err := d.userRepo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range users {
		s := u.Summary()
		d.cache.Set(id, s)
		result[id] = s
	}
	return result, nil
}
