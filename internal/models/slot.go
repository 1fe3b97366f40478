package models

import "fmt"

// Границы номеров слотов. Каждый слот - независимо настроенный брокерский
// аккаунт, читается из переменных окружения SLOT<n>_*.
const (
	MinSlotNumber = 1
	MaxSlotNumber = 50
)

// AccountSlot - один брокерский аккаунт. Неизменяем после загрузки конфигурации.
type AccountSlot struct {
	Number         int    `json:"number"`
	APIKey         string `json:"-"` // ключи не возвращаются в JSON
	APISecret      string `json:"-"`
	AccountNumber  string `json:"-"`
	AccountSubCode string `json:"-"`
}

// Validate проверяет полноту слота. Неполные слоты исключаются при старте,
// а не молча допускаются до исполнения.
func (s *AccountSlot) Validate() error {
	if s.Number < MinSlotNumber || s.Number > MaxSlotNumber {
		return fmt.Errorf("slot number %d out of range [%d..%d]", s.Number, MinSlotNumber, MaxSlotNumber)
	}
	if s.APIKey == "" || s.APISecret == "" {
		return fmt.Errorf("slot %d: missing API key or secret", s.Number)
	}
	if s.AccountNumber == "" || s.AccountSubCode == "" {
		return fmt.Errorf("slot %d: missing account number or sub-code", s.Number)
	}
	return nil
}
