package broker

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"stockrouter/internal/models"
	"stockrouter/pkg/retry"
)

// syntheticOffsetTicks - отступ агрессивного лимитника от текущей цены
// в шагах mintick. Зарубежные площадки не принимают нативный рыночный
// ордер: покупка ставится выше рынка, продажа ниже, лимитник сводится
// немедленно как рыночный.
const syntheticOffsetTicks = 50

// minOverseasPrice - нижняя граница синтетической цены
const minOverseasPrice = 1.0

// ============================================================
// Торговые вызовы клиента
// ============================================================

// SubmitDomestic подаёт ордер на внутреннем рынке
func (c *Client) SubmitDomestic(ctx context.Context, h Headers, side models.OrderSide, body domesticOrderBody) (*apiResponse, error) {
	trID := trDomesticBuy
	if side == models.SideSell {
		trID = trDomesticSell
	}
	status, raw, err := c.do(ctx, http.MethodPost, endpointDomesticOrder, nil, body, &h, trID, c.callTimeout)
	if err != nil {
		return nil, err
	}
	return parseResponse(status, raw)
}

// SubmitOverseas подаёт ордер на зарубежной площадке
func (c *Client) SubmitOverseas(ctx context.Context, h Headers, side models.OrderSide, body overseasOrderBody) (*apiResponse, error) {
	trID := trOverseasBuy
	if side == models.SideSell {
		trID = trOverseasSell
	}
	status, raw, err := c.do(ctx, http.MethodPost, endpointOverseasOrder, nil, body, &h, trID, c.callTimeout)
	if err != nil {
		return nil, err
	}
	return parseResponse(status, raw)
}

// ============================================================
// Движок исполнения
// ============================================================

// tradeAPI - вызовы клиента, нужные движку исполнения
type tradeAPI interface {
	SubmitDomestic(ctx context.Context, h Headers, side models.OrderSide, body domesticOrderBody) (*apiResponse, error)
	SubmitOverseas(ctx context.Context, h Headers, side models.OrderSide, body overseasOrderBody) (*apiResponse, error)
	CurrentPrice(ctx context.Context, h Headers, market models.Market, ticker string) (float64, bool, error)
}

// ExecutionEngine превращает нормализованный OrderSpec в вызов торгового
// API: собирает тело под конкретный рынок, синтезирует цену рыночных
// ордеров за рубежом и повторяет транзиентные отказы.
//
// Транзиентные отказы (timeout, 429, overloaded) повторяются с
// экспоненциальным backoff; терминальные (invalid, unauthorized)
// поднимаются с первой попытки без повторов.
type ExecutionEngine struct {
	api      tradeAPI
	retryCfg retry.Config
}

// EngineOption настраивает ExecutionEngine
type EngineOption func(*ExecutionEngine)

// WithOrderRetry переопределяет политику повторов подачи ордера
func WithOrderRetry(cfg retry.Config) EngineOption {
	return func(e *ExecutionEngine) { e.retryCfg = cfg }
}

// NewExecutionEngine создаёт движок исполнения
func NewExecutionEngine(api tradeAPI, opts ...EngineOption) *ExecutionEngine {
	e := &ExecutionEngine{
		api:      api,
		retryCfg: retry.OrderConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retryCfg.RetryIf == nil {
		e.retryCfg.RetryIf = retry.IsRetryable
	}
	return e
}

// Submit подаёт ордер и возвращает нормализованный результат.
// Заголовки должны быть получены через SessionManager.ResolveHeaders.
// Сторона ордера уходит апстриму ровно как объявлена в OrderSpec: покупка
// транзакционным кодом покупки, продажа - кодом продажи.
func (e *ExecutionEngine) Submit(ctx context.Context, slot *models.AccountSlot, h Headers, spec *models.OrderSpec) (*models.OrderResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() {
		orderDuration.Observe(time.Since(started).Seconds())
	}()

	cfg := e.retryCfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		orderRetriesTotal.Inc()
		log.Printf("[WARN] order retry %d/%d for slot %d %s %s %s: %v (next in %s)",
			attempt, cfg.MaxAttempts, slot.Number, spec.Side, spec.Market, spec.Ticker, err, delay)
	}

	attempts := 0
	type placed struct {
		resp      *apiResponse
		execPrice float64
	}

	result, err := retry.DoWithResult(ctx, func() (placed, error) {
		attempts++
		resp, execPrice, err := e.placeOnce(ctx, slot, h, spec)
		if err != nil {
			return placed{}, err
		}
		return placed{resp: resp, execPrice: execPrice}, nil
	}, cfg)
	if err != nil {
		if attempts >= cfg.MaxAttempts && retry.IsRetryable(err) {
			err = fmt.Errorf("%w: slot %d %s %s %s x%d after %d attempts: %v",
				ErrRetriesExhausted, slot.Number, spec.Side, spec.Market, spec.Ticker, spec.Quantity, attempts, err)
		}
		ordersTotal.WithLabelValues(string(spec.Market), string(spec.Side), models.OrderRejected).Inc()
		return &models.OrderResult{
			Status:      models.OrderRejected,
			Slot:        slot.Number,
			Market:      spec.Market,
			Ticker:      spec.Ticker,
			Side:        spec.Side,
			Quantity:    spec.Quantity,
			Message:     err.Error(),
			SubmittedAt: started,
		}, err
	}

	ordersTotal.WithLabelValues(string(spec.Market), string(spec.Side), models.OrderAccepted).Inc()
	log.Printf("[INFO] order accepted: slot %d %s %s %s x%d (order %s)",
		slot.Number, spec.Side, spec.Market, spec.Ticker, spec.Quantity, result.resp.Output.OrderNo)

	return &models.OrderResult{
		Status:      models.OrderAccepted,
		Slot:        slot.Number,
		Market:      spec.Market,
		Ticker:      spec.Ticker,
		Side:        spec.Side,
		Quantity:    spec.Quantity,
		OrderID:     result.resp.Output.OrderNo,
		Message:     result.resp.Msg1,
		ExecPrice:   result.execPrice,
		SubmittedAt: started,
	}, nil
}

// placeOnce выполняет одну попытку подачи. Котировка для синтетической
// цены берётся заново на каждой попытке: между повторами рынок уходит.
func (e *ExecutionEngine) placeOnce(ctx context.Context, slot *models.AccountSlot, h Headers, spec *models.OrderSpec) (*apiResponse, float64, error) {
	if !spec.Market.Overseas() {
		body := domesticOrderBody{
			AccountNumber:  slot.AccountNumber,
			AccountSubCode: slot.AccountSubCode,
			Ticker:         spec.Ticker,
			Quantity:       strconv.Itoa(spec.Quantity),
		}
		if spec.Kind == models.OrderKindMarket {
			body.OrderDivision = ordDvsnDomesticMarket
			body.Price = "0"
		} else {
			body.OrderDivision = ordDvsnLimit
			body.Price = strconv.FormatFloat(spec.Price, 'f', -1, 64)
		}

		resp, err := e.api.SubmitDomestic(ctx, h, spec.Side, body)
		if err != nil {
			return nil, 0, err
		}
		return resp, spec.Price, nil
	}

	price := spec.Price
	if spec.Kind == models.OrderKindMarket {
		quote, ok, err := e.api.CurrentPrice(ctx, h, spec.Market, spec.Ticker)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, retry.Temporary(fmt.Errorf("%w: %s %s", ErrQuoteUnavailable, spec.Market, spec.Ticker))
		}
		price = syntheticPrice(quote, spec.Side, spec.EffectiveMinTick())
	}

	body := overseasOrderBody{
		AccountNumber:  slot.AccountNumber,
		AccountSubCode: slot.AccountSubCode,
		ExchangeCode:   orderExchangeCode[spec.Market],
		Ticker:         spec.Ticker,
		OrderDivision:  ordDvsnLimit,
		Quantity:       strconv.Itoa(spec.Quantity),
		Price:          strconv.FormatFloat(price, 'f', 2, 64),
		OrderCondition: "0",
	}

	resp, err := e.api.SubmitOverseas(ctx, h, spec.Side, body)
	if err != nil {
		return nil, 0, err
	}
	return resp, price, nil
}

// syntheticPrice вычисляет цену агрессивного лимитника: отступ на
// syntheticOffsetTicks шагов от котировки в сторону немедленного
// сведения, не ниже minOverseasPrice, округление до цента.
func syntheticPrice(quote float64, side models.OrderSide, minTick float64) float64 {
	offset := float64(syntheticOffsetTicks) * minTick
	price := quote + offset
	if side == models.SideSell {
		price = quote - offset
	}
	if price < minOverseasPrice {
		price = minOverseasPrice
	}
	return math.Round(price*100) / 100
}
