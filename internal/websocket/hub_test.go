package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-monitor/internal/alerting"
	"sensor-monitor/internal/websocket"
)

func TestHubDeliversNotifications(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(func() bool { return true }, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	n := alerting.Notification{Kind: alerting.KindTriggered, RuleID: "a1", Message: "Motor hot"}

	// клиент регистрируется асинхронно: повторяем рассылку до первого сообщения
	received := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	var msg []byte
	require.Eventually(t, func() bool {
		_ = hub.Notify(ctx, n)
		select {
		case msg = <-received:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	var env struct {
		Type    string                `json:"type"`
		Sound   bool                  `json:"sound"`
		Payload alerting.Notification `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, websocket.TypeNotification, env.Type)
	assert.True(t, env.Sound)
	assert.Equal(t, "a1", env.Payload.RuleID)
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for range 64 {
			hub.Broadcast(websocket.Envelope{Type: websocket.TypeState})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}
