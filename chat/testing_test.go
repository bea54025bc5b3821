package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rlaneuville/roomchat/auth"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/types"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatConfig: config.ChatConfig{
			ServiceName:        "chat",
			DefaultMaxUsers:    10,
			MaxMessagesPerFile: 2,
			CheckpointSpec:     "@every 5m",
		},
		HistoryConfig:     config.HistoryConfig{PageCacheSize: 8},
		PersistenceConfig: config.PersistenceConfig{Type: "buntdb"},
	}
}

type fakeConn struct {
	id string
}

func (c *fakeConn) SessionId() string { return c.id }

// fakeTransport records every payload per session id and can simulate a
// failing recipient.
type fakeTransport struct {
	mu      sync.Mutex
	sent    map[string][][]byte
	failFor map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(map[string][][]byte),
		failFor: make(map[string]bool),
	}
}

func (f *fakeTransport) Send(conn types.Connection, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[conn.SessionId()] {
		return fmt.Errorf("send to %s failed", conn.SessionId())
	}
	f.sent[conn.SessionId()] = append(f.sent[conn.SessionId()], data)
	return nil
}

func (f *fakeTransport) lastResponse(t *testing.T, sessionId string) types.Response {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	payloads := f.sent[sessionId]
	require.NotEmpty(t, payloads, "no payloads sent to %s", sessionId)
	resp := types.Response{}
	require.NoError(t, json.Unmarshal(payloads[len(payloads)-1], &resp))
	return resp
}

func (f *fakeTransport) deliveries(t *testing.T, sessionId string) []types.Delivery {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Delivery, 0)
	for _, payload := range f.sent[sessionId] {
		probe := struct {
			Action string `json:"action"`
		}{}
		require.NoError(t, json.Unmarshal(payload, &probe))
		if probe.Action != types.ActionRecieveMessage {
			continue
		}
		delivery := types.Delivery{}
		require.NoError(t, json.Unmarshal(payload, &delivery))
		out = append(out, delivery)
	}
	return out
}

// fakeIdentity resolves a static login/secret table.
type fakeIdentity struct {
	secrets    map[string]string
	pseudonyms map[string]string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		secrets:    map[string]string{"admin": "hunter2"},
		pseudonyms: map[string]string{"admin": "Admin"},
	}
}

func (f *fakeIdentity) Authenticate(login, secret string) (*auth.Account, error) {
	if s, ok := f.secrets[login]; ok && s == secret {
		return &auth.Account{Id: login, Login: login, Pseudonym: f.pseudonyms[login]}, nil
	}
	return nil, auth.ErrAuthFailed
}

func (f *fakeIdentity) PseudonymFor(account *auth.Account) string {
	if account.Pseudonym != "" {
		return account.Pseudonym
	}
	return account.Login
}

func newTestService(t *testing.T) (*Service, *fakeTransport) {
	t.Helper()
	store, err := persistence.NewStore(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	transport := newFakeTransport()
	svc, err := NewService(testConfig(), store, newFakeIdentity(), transport)
	require.NoError(t, err)
	return svc, transport
}

func connectGuest(t *testing.T, svc *Service, transport *fakeTransport, sessionId, pseudonym, roomName, roomPassword string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: sessionId}
	svc.Handle(conn, &types.Request{
		Action:       types.ActionConnect,
		Pseudonym:    pseudonym,
		RoomName:     roomName,
		RoomPassword: roomPassword,
	})
	resp := transport.lastResponse(t, sessionId)
	require.True(t, resp.Success, resp.Text)
	return conn
}

func createRoom(t *testing.T, svc *Service, transport *fakeTransport, sessionId, roomName, roomType, maxUsers, roomPassword string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: sessionId}
	svc.Handle(conn, &types.Request{
		Action:       types.ActionCreateRoom,
		RoomName:     roomName,
		Type:         roomType,
		MaxUsers:     maxUsers,
		RoomPassword: roomPassword,
		Login:        "admin",
		Password:     "hunter2",
	})
	resp := transport.lastResponse(t, sessionId)
	require.True(t, resp.Success, resp.Text)
	return conn
}
