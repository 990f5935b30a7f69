package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, hesap servisinin imzaladığı access token'ın payload'ı.
// Bu modül token üretmez, sadece doğrular.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
