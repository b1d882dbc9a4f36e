// Package websocket рассылает уведомления и состояние монитора подключенным клиентам.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/metrics"
)

// Типы сообщений
const (
	TypeNotification = "notification"
	TypeState        = "state"
	TypeAlerts       = "alerts"
	// TypeSession вход или выход; пустой payload значит выход
	TypeSession = "session"
)

// Envelope сообщение клиенту
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	// Sound воспроизвести звук уведомления
	Sound bool `json:"sound,omitempty"`
}

// Hub хранит подключенных клиентов и рассылает им сообщения
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	sound      func() bool
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHub sound сообщает, включен ли звук уведомлений; может быть nil
func NewHub(sound func() bool, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if sound == nil {
		sound = func() bool { return false }
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sound:      sound,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("component", "websocket"),
	}
}

// Run цикл хаба; завершается по отмене ctx и закрывает всех клиентов
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.logger.Debug("client registered", "remote", client.remote())

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Debug("client unregistered", "remote", client.remote())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("client send buffer full, removing", "remote", client.remote())
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// Broadcast отправляет сообщение всем клиентам; после остановки хаба ничего не делает
func (h *Hub) Broadcast(env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "type", env.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	}
}

// Notify реализует alerting.Notifier
func (h *Hub) Notify(_ context.Context, n alerting.Notification) error {
	h.Broadcast(Envelope{Type: TypeNotification, Payload: n, Sound: h.sound()})
	return nil
}

// ServeWS переводит запрос в websocket и регистрирует клиента
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
