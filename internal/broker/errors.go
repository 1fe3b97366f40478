package broker

import (
	"errors"
	"fmt"
	"strings"

	"stockrouter/pkg/retry"
)

// Сентинельные ошибки брокерского слоя
var (
	// ErrNoValidCredential - не удалось получить рабочие заголовки:
	// хранилище пусто, токен истёк и обмен провалился.
	ErrNoValidCredential = errors.New("no valid credential for slot")

	// ErrRetriesExhausted - ордер не принят после всех попыток
	ErrRetriesExhausted = errors.New("order retries exhausted")

	// ErrQuoteUnavailable - котировка недоступна или ответ не содержит цены
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrTokenRejected - апстрим распознал токен как истёкший или невалидный
	ErrTokenRejected = errors.New("access token rejected by upstream")
)

// UpstreamError - отказ брокерского API: HTTP-код и текст ошибки как есть.
// Текст сохраняется дословно - он доходит до уведомлений и логов.
type UpstreamError struct {
	StatusCode int
	Code       string // msg_cd, если был
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream error (http %d): %s", e.StatusCode, e.Message)
}

// Маркеры классификации отказов по тексту сообщения. Сравнение
// регистронезависимое, по подстроке.
var (
	transientMarkers = []string{"internal error", "overloaded", "server error"}
	terminalMarkers  = []string{"invalid", "unauthorized", "forbidden", "not found"}
)

// classify оборачивает ошибку апстрима в retryable/permanent по тексту
// сообщения. Неопознанные отказы считаются повторяемыми: последняя
// попытка всё равно поднимет их наверх.
func classify(err *UpstreamError) error {
	msg := strings.ToLower(err.Message)
	for _, marker := range terminalMarkers {
		if strings.Contains(msg, marker) {
			return retry.Permanent(err)
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return retry.Temporary(err)
		}
	}
	if err.StatusCode == 429 {
		return retry.Temporary(err)
	}
	return err
}
