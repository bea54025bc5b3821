package ws

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rlaneuville/roomchat/chat"
	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/types"
)

// Server owns the websocket endpoint and implements chat.Transport. The
// service is attached after construction because service and transport
// reference each other.
type Server struct {
	svc      *chat.Service
	upgrader websocket.Upgrader
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) SetService(svc *chat.Service) {
	s.svc = svc
}

// Send implements chat.Transport. Delivery is best-effort per connection.
func (s *Server) Send(conn types.Connection, data []byte) error {
	client, ok := conn.(*Client)
	if !ok {
		return fmt.Errorf("unexpected connection type %T", conn)
	}
	return client.Push(data)
}

func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/chat", s.websocketHandler).Methods(http.MethodGet)
	return router
}

// websocketHandler upgrades the HTTP request and runs the connection until
// it drops. Disconnect is triggered here exactly once, whether the client
// sent a disconnect action or just went away.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	client := newClient(conn)
	globals.AppLogger.Info("client connected", "session_id", client.SessionId(), "remote", r.RemoteAddr)

	go client.WriteLoop()
	client.ReadLoop(s.svc)

	s.svc.Disconnect(client)
	globals.AppLogger.Info("client gone", "session_id", client.SessionId())
}
