// Package main runs a demo WebSocket client for the fleet event feed.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// post sends body as the given dev role and decodes the response into out when non-nil.
func post(base, path, role, user string, body, out any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", role)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the booking events below are observed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	filter, _ := json.Marshal(map[string]any{"types": []string{"booking.created", "booking.assigned"}})
	if err := c.WriteJSON(wsMessage{Type: "filter", Payload: filter}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Seed one driver and vehicle, then book and allocate a ride.
	if err := post(base, "/v1/drivers", "admin", "", map[string]any{"id": "demo-driver", "name": "Demo Driver", "currentLocation": "Central Station"}, nil); err != nil {
		log.Fatal(err)
	}
	if err := post(base, "/v1/vehicles", "admin", "", map[string]any{"id": "demo-cab", "number": "DEMO-1", "seatingCapacity": 4, "fuelLevel": 80}, nil); err != nil {
		log.Fatal(err)
	}
	var booking struct {
		ID string `json:"id"`
	}
	body := map[string]any{"pickupLocation": "Central Station", "dropLocation": "Tech Park", "priority": "high"}
	if err := post(base, "/v1/bookings", "employee", "emp-demo", body, &booking); err != nil {
		log.Fatal(err)
	}
	log.Printf("Booking ID: %s", booking.ID)

	time.Sleep(200 * time.Millisecond)
	var outcome struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := post(base, "/v1/bookings/"+booking.ID+"/allocate", "admin", "", map[string]any{}, &outcome); err != nil {
		log.Fatal(err)
	}
	log.Printf("Allocation: %s (score %.2f)", outcome.Reason, outcome.Score)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
