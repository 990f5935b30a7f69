// Package crypto, private circle join key'lerinin tek yönlü hash'lenmesini sağlar.
//
// Join key 4 karakterlik hafif bir erişim kapısıdır, gizli veri deposu değildir.
// Yine de DB'de plaintext tutulmaz; bcrypt hash'i saklanır ve doğrulama
// Verify(hash, candidate) ile yapılır.
package crypto

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// JoinKeyLength, private circle key'inin tam karakter (rune) uzunluğu.
const JoinKeyLength = 4

// JoinKeyVerifier, join key hash üretme ve doğrulama yeteneği.
// Service katmanı bu interface'e bağımlıdır; testlerde düşük cost'lu
// implementasyon verilebilir.
type JoinKeyVerifier interface {
	Hash(key string) (string, error)
	Verify(hash, candidate string) bool
}

type bcryptVerifier struct {
	cost int
}

// NewBcryptVerifier, verilen cost ile bcrypt tabanlı verifier döner.
// cost bcrypt sınırları dışındaysa bcrypt.DefaultCost kullanılır.
func NewBcryptVerifier(cost int) JoinKeyVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptVerifier{cost: cost}
}

func (v *bcryptVerifier) Hash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), v.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash join key: %w", err)
	}
	return string(hash), nil
}

// Verify, hash boşsa veya eşleşmiyorsa false döner.
func (v *bcryptVerifier) Verify(hash, candidate string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
