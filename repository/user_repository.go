package repository

import (
	"context"

	"github.com/akinalp/sohbet/models"
)

// UserRepository, kullanıcı kayıtlarına erişim.
// Kayıtları hesap servisi yazar; bu modül GetByID/GetByIDs ile okur.
// Create, hesap servisiyle aynı tabloyu paylaşan kurulumlar ve testler içindir.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}
