package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования API ключей
var (
	ErrEmptyKey    = errors.New("api key cannot be empty")
	ErrKeyMismatch = errors.New("api key does not match hash")
	ErrInvalidHash = errors.New("invalid key hash format")
	ErrKeyTooLong  = errors.New("api key exceeds maximum length of 72 bytes")
)

// DefaultCost - стоимость bcrypt по умолчанию.
// Ключ проверяется один раз на HTTP запрос, 12 даёт запас
// по стойкости без заметной задержки ответа.
const DefaultCost = 12

// MaxKeyLength - предел bcrypt на длину входа (72 байта)
const MaxKeyLength = 72

// HashKey хеширует API ключ с автоматической генерацией salt.
// Полученный хеш кладётся в конфигурацию агента, сам ключ
// нигде не хранится.
func HashKey(key string) (string, error) {
	return HashKeyWithCost(key, DefaultCost)
}

// HashKeyWithCost хеширует API ключ с указанной стоимостью.
// cost вне диапазона bcrypt приводится к ближайшей границе.
func HashKeyWithCost(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return "", ErrKeyTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyKey проверяет соответствие ключа хешу.
// Сравнение constant-time, защищено от timing attacks.
func VerifyKey(key, hash string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return ErrInvalidHash
	}
	return nil
}

// CheckKeyMatch - булева обёртка над VerifyKey для условий
func CheckKeyMatch(key, hash string) bool {
	return VerifyKey(key, hash) == nil
}
