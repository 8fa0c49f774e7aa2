package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cabdispatch/internal/auth"
)

// Dashboard feed over WebSocket. The client may send
//   {"type":"filter","payload":{"types":["booking.assigned"]}}
// to narrow the stream and {"type":"ping"} to probe the connection.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type filterPayload struct {
	Types []string `json:"types"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, auth.RoleAdmin); !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := s.Broker.Subscribe(FleetTopic)
	defer s.Broker.Unsubscribe(FleetTopic, ch)

	// The reader hands control messages to the single writer below.
	inbound := make(chan wsMessage, 4)
	done := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case inbound <- msg:
			default:
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}
	if err := write(wsMessage{Type: "connection_ack"}); err != nil {
		return
	}

	var filter map[string]bool
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-inbound:
			switch msg.Type {
			case "ping":
				err = write(wsMessage{Type: "pong"})
			case "filter":
				var fp filterPayload
				if json.Unmarshal(msg.Payload, &fp) != nil {
					err = write(wsMessage{Type: "error", Payload: []byte(`{"message":"invalid filter"}`)})
					break
				}
				filter = nil
				if len(fp.Types) > 0 {
					filter = map[string]bool{}
					for _, t := range fp.Types {
						filter[t] = true
					}
				}
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !accepts(filter, evt.Type) {
				continue
			}
			payload, _ := json.Marshal(evt)
			err = write(wsMessage{Type: "event", Payload: payload})
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}
