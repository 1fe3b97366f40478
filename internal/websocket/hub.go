// Package websocket транслирует события роутера (результаты ордеров,
// обновления токенов) подключенным наблюдателям в реальном времени.
package websocket

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"

	"stockrouter/internal/models"
)

// jsonBufferPool переиспользует буферы сериализации broadcast-сообщений
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// OrderEventMessage - результат исполнения ордера
type OrderEventMessage struct {
	Type string              `json:"type"`
	Data *models.OrderResult `json:"data"`
}

// TokenEventMessage - событие жизненного цикла токена слота
type TokenEventMessage struct {
	Type   string `json:"type"`
	Slot   int    `json:"slot"`
	Detail string `json:"detail"`
}

// EventMessage - произвольное событие роутера
type EventMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральный менеджер broadcast-сообщений: регистрация и снятие
// клиентов, рассылка событий, отбрасывание клиентов, не успевающих
// читать. Потокобезопасен.
//
// Использование:
//  1. hub := NewHub()
//  2. go hub.Run()
//  3. hub.BroadcastOrderResult(result)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client connected, total: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("ws client disconnected, total: %d", total)

		case message := <-h.broadcast:
			// Список клиентов копируется под коротким RLock; отправка
			// идёт без блокировки, чтобы не тормозить register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - снимаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				log.Printf("ws removed %d slow clients, total: %d", len(toRemove), total)
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает его всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("ws marshal broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastOrderResult рассылает результат исполнения ордера
func (h *Hub) BroadcastOrderResult(result *models.OrderResult) {
	h.Broadcast(&OrderEventMessage{
		Type: "orderResult",
		Data: result,
	})
}

// BroadcastTokenEvent рассылает событие жизненного цикла токена
func (h *Hub) BroadcastTokenEvent(slot int, detail string) {
	h.Broadcast(&TokenEventMessage{
		Type:   "tokenEvent",
		Slot:   slot,
		Detail: detail,
	})
}

// BroadcastEvent рассылает произвольное событие роутера
func (h *Hub) BroadcastEvent(message string) {
	h.Broadcast(&EventMessage{
		Type: "event",
		Data: message,
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
