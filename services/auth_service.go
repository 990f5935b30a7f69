// Package services, business logic katmanını barındırır.
//
// Handler (HTTP / WS) ile Repository (DB) arasında oturan katmandır. Tüm iş
// kuralları burada yaşar: yetki kontrolleri, engel durumu, üyelik kuralları,
// presence state machine.
//
// Service ASLA http.Request/Response bilmez, sadece domain modelleri alır/verir.
// Service ASLA doğrudan SQL çalıştırmaz, Repository interface'i kullanır.
package services

import (
	"fmt"

	"github.com/akinalp/sohbet/models"
	"github.com/akinalp/sohbet/pkg"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService, access token doğrulaması.
// Token'ları hesap servisi üretir; burada paylaşılan secret ile sadece doğrulanır.
type AuthService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

type authService struct {
	jwtSecret []byte
}

// NewAuthService, constructor.
func NewAuthService(jwtSecret string) AuthService {
	return &authService{jwtSecret: []byte(jwtSecret)}
}

// ValidateAccessToken, HS256 JWT access token'ı doğrular ve claims'i döner.
func (s *authService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}

	return claims, nil
}
