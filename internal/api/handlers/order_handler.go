package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"stockrouter/internal/broker"
	"stockrouter/internal/models"
	"stockrouter/internal/service"
	"stockrouter/pkg/crypto"
)

// maxWebhookBodySize - лимит тела webhook-запроса
const maxWebhookBodySize = 1 << 16 // 64KB

// OrderExecutor исполняет нормализованный webhook-сигнал
type OrderExecutor interface {
	Execute(ctx context.Context, order *models.WebhookOrder) (*models.OrderResult, error)
}

// OrderHandler принимает webhook-сигналы и превращает их в ордера.
//
// Endpoints:
// - POST /order - принять торговый сигнал (формат TradingView)
//
// Аутентификация - поле password в теле: сверяется с bcrypt-хешем из
// конфигурации, либо с plaintext-паролем, если хеш не задан.
type OrderHandler struct {
	orders       OrderExecutor
	passwordHash string
	password     string
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(orders OrderExecutor, passwordHash, password string) *OrderHandler {
	return &OrderHandler{
		orders:       orders,
		passwordHash: passwordHash,
		password:     password,
	}
}

// checkPassword сверяет пароль сигнала с конфигурацией
func (h *OrderHandler) checkPassword(password string) bool {
	if password == "" {
		return false
	}
	if h.passwordHash != "" {
		return crypto.CheckPasswordMatch(password, h.passwordHash)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1
}

// Execute обрабатывает торговый сигнал.
//
// POST /order
//
// Request:
//
//	{
//	  "password": "...",
//	  "exchange": "NASDAQ",
//	  "base": "AAPL",
//	  "type": "market",
//	  "side": "buy",
//	  "amount": 2,
//	  "mintick": 0.01,
//	  "slot": 1
//	}
//
// Response 200 OK:
//
//	{"status": "accepted", "slot": 1, "market": "NASDAQ", "ticker": "AAPL",
//	 "side": "buy", "quantity": 2, "order_id": "0030089601", "exec_price": 187.75}
//
// Response 401 Unauthorized: неверный пароль
// Response 400 Bad Request: кривой payload или неподдерживаемый рынок
// Response 502 Bad Gateway: апстрим отверг ордер
func (h *OrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var order models.WebhookOrder
	body := io.LimitReader(r.Body, maxWebhookBodySize)
	if err := json.NewDecoder(body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload", err.Error())
		return
	}

	if !h.checkPassword(order.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password", "")
		return
	}

	result, err := h.orders.Execute(r.Context(), &order)
	if err != nil {
		status := classifyStatus(err)
		if result != nil {
			// Ордер дошёл до апстрима и был отвергнут: отдаём
			// нормализованный результат с текстом отказа
			writeJSON(w, status, result)
			return
		}
		writeError(w, status, "order not executed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// classifyStatus отображает ошибку исполнения в HTTP статус
func classifyStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSlotNotConfigured),
		errors.Is(err, models.ErrUnsupportedMarket),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrPriceRequired),
		errors.Is(err, models.ErrInvalidSide),
		errors.Is(err, models.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrNoValidCredential):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
