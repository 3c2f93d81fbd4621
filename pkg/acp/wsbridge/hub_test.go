package wsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestBroadcastDeliversOnlyToSubscribedSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	var serverClient *Client
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverClient = NewClient("c1", conn)
		hub.Register(serverClient)
		hub.Subscribe(serverClient, "session-a")
		go serverClient.WritePump(ctx)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	require.Eventually(t, func() bool { return hub.SessionSubscriberCount("session-a") == 1 }, time.Second, time.Millisecond)

	hub.Broadcast("session-b", "agent_message_chunk", map[string]string{"text": "ignored"})
	hub.Broadcast("session-a", "agent_message_chunk", map[string]string{"text": "hello"})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
	require.Contains(t, string(data), "session-a")
}

func TestUnregisterRemovesFromAllSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	var serverClient *Client
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverClient = NewClient("c1", conn)
		hub.Register(serverClient)
		hub.Subscribe(serverClient, "session-a")
		go serverClient.WritePump(ctx)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	require.Eventually(t, func() bool { return hub.SessionSubscriberCount("session-a") == 1 }, time.Second, time.Millisecond)

	hub.Unregister(serverClient)

	require.Eventually(t, func() bool { return hub.SessionSubscriberCount("session-a") == 0 }, time.Second, time.Millisecond)
	require.Equal(t, 0, hub.ClientCount())
}
