package models

import (
	"errors"
	"time"
)

// TokenAbsent - sentinel-значение access_token, означающее "токен не выпущен".
// Хранится в БД вместо NULL чтобы upsert-логика оставалась однородной.
const TokenAbsent = "nothing"

// ExpiryLayout - формат времени истечения токена, как его отдаёт брокерский API.
const ExpiryLayout = "2006-01-02 15:04:05"

// ErrExpiryUnparsable возвращается когда expires_at не соответствует ExpiryLayout.
var ErrExpiryUnparsable = errors.New("credential expiry is not parsable")

// Credential - выпущенный брокером токен доступа для одного слота.
// Одна строка на слот, slot_id - первичный ключ (upsert перезаписывает).
type Credential struct {
	SlotID      int       `json:"slot_id" db:"slot_id"`
	AccessToken string    `json:"-" db:"access_token"` // не отдаётся в JSON
	ExpiresAt   string    `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Absent сообщает что для слота нет выпущенного токена.
func (c *Credential) Absent() bool {
	return c == nil || c.AccessToken == "" || c.AccessToken == TokenAbsent
}

// Remaining возвращает сколько времени токен ещё действителен относительно now.
// Отрицательное значение означает что токен уже истёк.
func (c *Credential) Remaining(now time.Time) (time.Duration, error) {
	expires, err := time.ParseInLocation(ExpiryLayout, c.ExpiresAt, now.Location())
	if err != nil {
		return 0, errors.Join(ErrExpiryUnparsable, err)
	}
	return expires.Sub(now), nil
}
