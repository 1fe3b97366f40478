package websocket

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Время ожидания записи сообщения
	writeWait = 10 * time.Second

	// Время ожидания между pong сообщениями
	pongWait = 60 * time.Second

	// Интервал отправки ping сообщений (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения. Канал односторонний
	// (сервер -> клиент), от клиента ждём только управляющие кадры.
	maxMessageSize = 512

	// Размер буфера отправки клиента
	clientSendBufferSize = 64
)

// originChecker проверяет Origin по списку из ALLOWED_ORIGINS
// (comma-separated). Пустое значение или "*" разрешает все.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

var origins = newOriginChecker(os.Getenv("ALLOWED_ORIGINS"))

func newOriginChecker(env string) *originChecker {
	checker := &originChecker{allowed: make(map[string]struct{})}
	if env == "" || env == "*" {
		checker.allowAll = true
		return checker
	}
	for _, origin := range strings.Split(env, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			checker.allowed[origin] = struct{}{}
		}
	}
	return checker
}

func (oc *originChecker) check(origin string) bool {
	if origin == "" {
		return true // non-browser клиенты (curl, мониторинг)
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowed[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return origins.check(r.Header.Get("Origin"))
	},
	EnableCompression: true,
}

// Client - одно WebSocket соединение наблюдателя.
// Две горутины на клиента: readPump следит за живостью соединения,
// writePump отправляет broadcast-сообщения из буферизованного канала.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

// readPump читает управляющие кадры и снимает клиента при разрыве
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read error: %v", err)
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту и поддерживает ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Дочитываем накопившийся буфер в тот же кадровый writer
		drainLoop:
			for {
				select {
				case msg, ok := <-c.send:
					if !ok {
						break drainLoop
					}
					w.Write([]byte{'\n'})
					w.Write(msg)
				default:
					break drainLoop
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS апгрейдит HTTP соединение до WebSocket и регистрирует
// клиента в hub'е.
//
// Использование в routes:
//
//	router.HandleFunc("/ws/events", func(w, r) { websocket.ServeWS(hub, w, r) })
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
