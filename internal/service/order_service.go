// Package service содержит оркестрацию уровня приложения: от
// нормализованного webhook-сигнала до результата исполнения с
// уведомлениями и трансляцией событий.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stockrouter/internal/broker"
	"stockrouter/internal/models"
)

// ErrSlotNotConfigured - сигнал ссылается на слот без полного набора
// ключей в конфигурации
var ErrSlotNotConfigured = errors.New("account slot not configured")

// notifyTimeout - бюджет fire-and-forget уведомления
const notifyTimeout = 10 * time.Second

// SessionResolver выдаёт заголовки авторизованных запросов
type SessionResolver interface {
	ResolveHeaders(ctx context.Context, slot *models.AccountSlot) (broker.Headers, error)
	Invalidate(slotID int)
}

// OrderSubmitter подаёт ордер апстриму
type OrderSubmitter interface {
	Submit(ctx context.Context, slot *models.AccountSlot, h broker.Headers, spec *models.OrderSpec) (*models.OrderResult, error)
}

// QuoteSource возвращает текущую цену инструмента
type QuoteSource interface {
	CurrentPrice(ctx context.Context, h broker.Headers, market models.Market, ticker string) (float64, bool, error)
}

// Notifier - внешний канал уведомлений (best effort)
type Notifier interface {
	OrderResult(ctx context.Context, result *models.OrderResult)
	Event(ctx context.Context, message string)
}

// EventBroadcaster - real-time трансляция событий наблюдателям
type EventBroadcaster interface {
	BroadcastOrderResult(result *models.OrderResult)
	BroadcastTokenEvent(slot int, detail string)
	BroadcastEvent(message string)
}

// OrderService связывает webhook-сигнал с ядром исполнения: находит
// слот, получает заголовки через менеджер сессий, подаёт ордер и
// раздаёт результат в уведомления и event-стрим.
type OrderService struct {
	slots       map[int]*models.AccountSlot
	session     SessionResolver
	engine      OrderSubmitter
	quotes      QuoteSource
	notifier    Notifier
	broadcaster EventBroadcaster
}

// NewOrderService создает новый OrderService. notifier и broadcaster
// опциональны (nil отключает канал).
func NewOrderService(
	slots map[int]*models.AccountSlot,
	session SessionResolver,
	engine OrderSubmitter,
	quotes QuoteSource,
	notifier Notifier,
	broadcaster EventBroadcaster,
) *OrderService {
	return &OrderService{
		slots:       slots,
		session:     session,
		engine:      engine,
		quotes:      quotes,
		notifier:    notifier,
		broadcaster: broadcaster,
	}
}

// Execute исполняет webhook-сигнал: нормализация, выбор слота,
// получение заголовков, подача ордера. Результат публикуется в
// уведомления и event-стрим независимо от исхода.
func (s *OrderService) Execute(ctx context.Context, order *models.WebhookOrder) (*models.OrderResult, error) {
	order.Normalize()

	slot, ok := s.slots[order.Slot]
	if !ok {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotNotConfigured, order.Slot)
	}

	spec, err := order.ToOrderSpec()
	if err != nil {
		return nil, err
	}

	headers, err := s.session.ResolveHeaders(ctx, slot)
	if err != nil {
		s.publishFailure(slot.Number, spec, err)
		return nil, err
	}

	result, submitErr := s.engine.Submit(ctx, slot, headers, spec)

	if submitErr != nil && isAuthFailure(submitErr) {
		// Апстрим перестал принимать токен посреди сессии: следующий
		// сигнал заново пройдёт probe
		s.session.Invalidate(slot.Number)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastTokenEvent(slot.Number, "token rejected upstream, session invalidated")
		}
	}

	if result != nil {
		s.publish(result)
	}

	return result, submitErr
}

// Quote возвращает текущую цену инструмента через указанный слот
func (s *OrderService) Quote(ctx context.Context, slotNumber int, market models.Market, ticker string) (float64, bool, error) {
	slot, ok := s.slots[slotNumber]
	if !ok {
		return 0, false, fmt.Errorf("%w: slot %d", ErrSlotNotConfigured, slotNumber)
	}

	headers, err := s.session.ResolveHeaders(ctx, slot)
	if err != nil {
		return 0, false, err
	}

	return s.quotes.CurrentPrice(ctx, headers, market, ticker)
}

// SlotNumbers возвращает номера сконфигурированных слотов
func (s *OrderService) SlotNumbers() []int {
	numbers := make([]int, 0, len(s.slots))
	for n := range s.slots {
		numbers = append(numbers, n)
	}
	return numbers
}

// publish раздаёт результат в уведомления и event-стрим.
// Fire-and-forget: отказ канала логируется и не влияет на ответ.
func (s *OrderService) publish(result *models.OrderResult) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastOrderResult(result)
	}
	if s.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			s.notifier.OrderResult(ctx, result)
		}()
	}
}

// publishFailure сообщает об отказе до подачи ордера (нет заголовков)
func (s *OrderService) publishFailure(slotNumber int, spec *models.OrderSpec, err error) {
	msg := fmt.Sprintf("order not submitted: slot %d %s %s %s x%d: %v",
		slotNumber, spec.Side, spec.Market, spec.Ticker, spec.Quantity, err)
	log.Printf("[ERROR] %s", msg)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(msg)
	}
	if s.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			s.notifier.Event(ctx, msg)
		}()
	}
}

// isAuthFailure распознаёт терминальный auth-отказ торгового вызова
func isAuthFailure(err error) bool {
	var upstream *broker.UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	if upstream.StatusCode == 401 || upstream.StatusCode == 403 {
		return true
	}
	return false
}
