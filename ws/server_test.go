package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rlaneuville/roomchat/chat"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *chat.Service) {
	t.Helper()
	cfg := &config.Config{
		ChatConfig: config.ChatConfig{
			ServiceName:        "chat",
			DefaultMaxUsers:    10,
			MaxMessagesPerFile: 100,
		},
		HistoryConfig:     config.HistoryConfig{PageCacheSize: 8},
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb"},
	}
	store, err := persistence.NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	server := NewServer()
	svc, err := chat.NewService(cfg, store, nil, server)
	require.NoError(t, err)
	server.SetService(svc)

	httpServer := httptest.NewServer(server.Routes())
	t.Cleanup(httpServer.Close)
	return httpServer, svc
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn, out interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestWebsocketConnectRoundtrip(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action":    "connect",
		"pseudonym": "alice",
	}))

	resp := types.Response{}
	readPayload(t, conn, &resp)
	require.True(t, resp.Success, resp.Text)
	assert.Equal(t, "connect", resp.Action)
	assert.Equal(t, "default", resp.RoomName)
}

func TestWebsocketBroadcast(t *testing.T) {
	server, _ := newTestServer(t)

	alice := dial(t, server)
	require.NoError(t, alice.WriteJSON(map[string]interface{}{"action": "connect", "pseudonym": "alice"}))
	resp := types.Response{}
	readPayload(t, alice, &resp)
	require.True(t, resp.Success, resp.Text)

	bob := dial(t, server)
	require.NoError(t, bob.WriteJSON(map[string]interface{}{"action": "connect", "pseudonym": "bob"}))
	readPayload(t, bob, &resp)
	require.True(t, resp.Success, resp.Text)

	require.NoError(t, alice.WriteJSON(map[string]interface{}{
		"action":    "sendMessage",
		"roomName":  "default",
		"message":   "hello",
		"recievers": "all",
	}))

	// the sender receives the delivery first, then the acknowledgement
	delivery := types.Delivery{}
	readPayload(t, alice, &delivery)
	assert.Equal(t, "recieveMessage", delivery.Action)
	assert.Equal(t, "hello", delivery.Text)
	assert.Equal(t, "alice", delivery.Pseudonym)
	readPayload(t, alice, &resp)
	assert.True(t, resp.Success, resp.Text)

	readPayload(t, bob, &delivery)
	assert.Equal(t, "hello", delivery.Text)
}

func TestWebsocketDisconnectEvicts(t *testing.T) {
	server, svc := newTestServer(t)

	conn := dial(t, server)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "connect", "pseudonym": "alice"}))
	resp := types.Response{}
	readPayload(t, conn, &resp)
	require.True(t, resp.Success, resp.Text)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, active := svc.Registry().Active("default")
		return !active
	}, 5*time.Second, 10*time.Millisecond)
}
