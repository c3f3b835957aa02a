package websocket

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	hub, err := NewHub(&HubConfig{Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return hub, srv, cancel
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func TestNewHub_Validation(t *testing.T) {
	_, err := NewHub(nil)
	assert.Error(t, err)

	_, err = NewHub(&HubConfig{})
	assert.Error(t, err)

	hub, err := NewHub(&HubConfig{Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, 256, hub.sendBuffer)
	assert.Equal(t, 1024, cap(hub.broadcast))
}

func TestHub_BroadcastToAllClients(t *testing.T) {
	hub, srv, _ := startHub(t)

	first := dial(t, srv)
	second := dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast([]byte(`{"kind":"bid_placed"}`)))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		msgType, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, msgType)
		assert.JSONEq(t, `{"kind":"bid_placed"}`, string(msg))
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, srv, _ := startHub(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast([]byte("nobody listening")))
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, srv, _ := startHub(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.True(t, errors.Is(hub.Broadcast([]byte("late")), ErrHubClosed))
}

func TestHub_ContextCancel(t *testing.T) {
	hub, err := NewHub(&HubConfig{Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- hub.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.ErrorIs(t, hub.Broadcast([]byte("late")), ErrHubClosed)
}

func TestSubscriber_ReceivesBroadcasts(t *testing.T) {
	hub, srv, _ := startHub(t)

	sub, err := NewSubscriber(Config{
		URL:                   wsURL(srv),
		DialTimeout:           time.Second,
		PingInterval:          time.Second,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     100 * time.Millisecond,
		ReconnectBackoffMult:  2.0,
		MessageBufferSize:     8,
		Logger:                zap.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, sub.Start())
	assert.True(t, sub.IsConnected())

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast([]byte(`{"kind":"payout"}`)))

	select {
	case msg := <-sub.Messages():
		assert.JSONEq(t, `{"kind":"payout"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	require.NoError(t, sub.Close())

	_, open := <-sub.Messages()
	assert.False(t, open)
}

func TestNewSubscriber_Validation(t *testing.T) {
	_, err := NewSubscriber(Config{Logger: zap.NewNop()})
	assert.Error(t, err)

	_, err = NewSubscriber(Config{URL: "ws://localhost:1"})
	assert.Error(t, err)

	sub, err := NewSubscriber(Config{URL: "ws://localhost:1", Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, 256, cap(sub.messageChan))
	assert.Equal(t, pingPeriod, sub.config.PingInterval)
}

func TestSubscriber_StartFailsWhenUnreachable(t *testing.T) {
	sub, err := NewSubscriber(Config{
		URL:         "ws://127.0.0.1:1/ws/events",
		DialTimeout: 100 * time.Millisecond,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)

	err = sub.Start()
	assert.Error(t, err)
	assert.False(t, sub.IsConnected())
}
