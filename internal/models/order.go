package models

import (
	"errors"
	"fmt"
	"time"
)

// Market - идентификатор торговой площадки.
type Market string

const (
	MarketKRX    Market = "KRX"
	MarketNASDAQ Market = "NASDAQ"
	MarketNYSE   Market = "NYSE"
	MarketAMEX   Market = "AMEX"
)

// Overseas сообщает является ли площадка зарубежной (без нативного
// рыночного ордера - исполнение через агрессивный лимитник).
func (m Market) Overseas() bool {
	switch m {
	case MarketNASDAQ, MarketNYSE, MarketAMEX:
		return true
	}
	return false
}

// Supported проверяет что площадка известна роутеру.
func (m Market) Supported() bool {
	return m == MarketKRX || m.Overseas()
}

// OrderKind - тип ордера.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// OrderSide - направление ордера.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Статусы нормализованного результата.
const (
	OrderAccepted = "accepted"
	OrderRejected = "rejected"
)

// DefaultMinTick - минимальный шаг цены по умолчанию для синтетических
// рыночных ордеров на зарубежных площадках.
const DefaultMinTick = 0.01

// Ошибки валидации ордера
var (
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrPriceRequired     = errors.New("limit order requires a price")
	ErrInvalidSide       = errors.New("order side must be buy or sell")
	ErrInvalidKind       = errors.New("order kind must be market or limit")
)

// OrderSpec - нормализованное намерение ордера, приходит из webhook-слоя
// уже провалидированным.
type OrderSpec struct {
	Market   Market    `json:"market"`
	Ticker   string    `json:"ticker"`
	Kind     OrderKind `json:"kind"`
	Side     OrderSide `json:"side"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price,omitempty"`   // обязательна только для limit
	MinTick  float64   `json:"mintick,omitempty"` // только для synthetic market за рубежом
}

// Validate проверяет инварианты спецификации ордера.
func (o *OrderSpec) Validate() error {
	if !o.Market.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMarket, o.Market)
	}
	if o.Ticker == "" {
		return errors.New("ticker is required")
	}
	switch o.Kind {
	case OrderKindMarket, OrderKindLimit:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, o.Kind)
	}
	switch o.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, o.Quantity)
	}
	if o.Kind == OrderKindLimit && o.Price <= 0 {
		return ErrPriceRequired
	}
	return nil
}

// EffectiveMinTick возвращает mintick ордера либо значение по умолчанию.
func (o *OrderSpec) EffectiveMinTick() float64 {
	if o.MinTick > 0 {
		return o.MinTick
	}
	return DefaultMinTick
}

// OrderResult - нормализованный результат исполнения.
// Message сохраняет текст upstream-ответа дословно для диагностики.
type OrderResult struct {
	Status      string    `json:"status"` // accepted | rejected
	Slot        int       `json:"slot"`
	Market      Market    `json:"market"`
	Ticker      string    `json:"ticker"`
	Side        OrderSide `json:"side"`
	Quantity    int       `json:"quantity"`
	OrderID     string    `json:"order_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	ExecPrice   float64   `json:"exec_price,omitempty"` // синтетическая цена для overseas market
	SubmittedAt time.Time `json:"submitted_at"`
}
