package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FlexPrice - цена из webhook-payload. TradingView подставляет значения
// в шаблон алерта, и не подставленный плейсхолдер приходит строкой вида
// "{{close}}" - такой payload читается как "цена не задана", а не как
// ошибка формата. Числа и числовые строки принимаются как есть.
type FlexPrice float64

// UnmarshalJSON принимает число, числовую строку, null и плейсхолдер.
func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*p = 0
		return nil
	}

	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		if str == "" || (strings.HasPrefix(str, "{{") && strings.HasSuffix(str, "}}")) {
			*p = 0
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("price is not numeric: %q", str)
		}
		*p = FlexPrice(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = FlexPrice(v)
	return nil
}

// WebhookOrder - сырой payload входящего webhook-сигнала (формат TradingView).
// Поле base несёт тикер, exchange - площадку, slot - номер аккаунта.
type WebhookOrder struct {
	Password string    `json:"password"`
	Exchange string    `json:"exchange"`
	Base     string    `json:"base"`
	Quote    string    `json:"quote,omitempty"`
	Type     string    `json:"type,omitempty"` // market | limit, по умолчанию market
	Side     string    `json:"side"`
	Amount   float64   `json:"amount"`
	Price    FlexPrice `json:"price,omitempty"`
	MinTick  FlexPrice `json:"mintick,omitempty"`
	Slot     int       `json:"slot,omitempty"` // 1..50, по умолчанию 1
}

// Normalize приводит payload к каноническому виду: верхний регистр площадки,
// side без префиксов entry|close, slot по умолчанию 1.
func (w *WebhookOrder) Normalize() {
	w.Exchange = strings.ToUpper(strings.TrimSpace(w.Exchange))
	w.Base = strings.TrimSpace(w.Base)
	w.Side = strings.ToLower(strings.TrimSpace(w.Side))
	// TradingView-алерты присылают side вида "entry/buy" или "close/sell"
	if i := strings.LastIndex(w.Side, "/"); i >= 0 {
		w.Side = w.Side[i+1:]
	}
	if w.Type == "" {
		w.Type = string(OrderKindMarket)
	}
	w.Type = strings.ToLower(strings.TrimSpace(w.Type))
	if w.Slot == 0 {
		w.Slot = 1
	}
}

// ToOrderSpec валидирует payload и строит OrderSpec для ядра исполнения.
func (w *WebhookOrder) ToOrderSpec() (*OrderSpec, error) {
	if w.Amount <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, w.Amount)
	}
	qty := int(w.Amount)
	if float64(qty) != w.Amount {
		return nil, errors.New("stock order amount must be a whole number of shares")
	}
	spec := &OrderSpec{
		Market:   Market(w.Exchange),
		Ticker:   w.Base,
		Kind:     OrderKind(w.Type),
		Side:     OrderSide(w.Side),
		Quantity: qty,
		Price:    float64(w.Price),
		MinTick:  float64(w.MinTick),
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
