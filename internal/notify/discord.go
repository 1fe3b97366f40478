// Package notify отправляет уведомления о событиях роутера во внешние
// каналы. Уведомления - best effort: отказ канала логируется и не
// влияет на исполнение ордеров.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"stockrouter/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxContentLength - лимит длины сообщения Discord
const maxContentLength = 2000

// Notifier - канал уведомлений
type Notifier interface {
	OrderResult(ctx context.Context, result *models.OrderResult)
	Event(ctx context.Context, message string)
}

// DiscordNotifier отправляет сообщения в Discord через webhook URL
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordNotifier создаёт нотификатор. Пустой URL допустим -
// уведомления молча выключаются.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled сообщает настроен ли канал
func (n *DiscordNotifier) Enabled() bool {
	return n.webhookURL != ""
}

// OrderResult отправляет результат исполнения ордера
func (n *DiscordNotifier) OrderResult(ctx context.Context, result *models.OrderResult) {
	if !n.Enabled() || result == nil {
		return
	}

	var b strings.Builder
	if result.Status == models.OrderAccepted {
		fmt.Fprintf(&b, "✅ order accepted: slot %d %s %s %s x%d",
			result.Slot, result.Side, result.Market, result.Ticker, result.Quantity)
		if result.OrderID != "" {
			fmt.Fprintf(&b, " (order %s)", result.OrderID)
		}
		if result.ExecPrice > 0 {
			fmt.Fprintf(&b, " @ %.2f", result.ExecPrice)
		}
	} else {
		fmt.Fprintf(&b, "❌ order rejected: slot %d %s %s %s x%d: %s",
			result.Slot, result.Side, result.Market, result.Ticker, result.Quantity, result.Message)
	}

	n.send(ctx, b.String())
}

// Event отправляет произвольное событие (запуск, ошибка конфигурации)
func (n *DiscordNotifier) Event(ctx context.Context, message string) {
	if !n.Enabled() || message == "" {
		return
	}
	n.send(ctx, message)
}

func (n *DiscordNotifier) send(ctx context.Context, content string) {
	if len(content) > maxContentLength {
		content = content[:maxContentLength-3] + "..."
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		log.Printf("[ERROR] notify: marshal payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[ERROR] notify: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] notify: send failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[ERROR] notify: webhook returned %d", resp.StatusCode)
	}
}
