package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "cabdispatch/internal/auth"
)

const heartbeatInterval = 15 * time.Second

// typeFilter parses a comma separated list of event types; nil accepts everything.
func typeFilter(raw string) map[string]bool {
    if strings.TrimSpace(raw) == "" { return nil }
    m := map[string]bool{}
    for _, t := range strings.Split(raw, ",") {
        if t = strings.TrimSpace(t); t != "" { m[t] = true }
    }
    return m
}

func accepts(filter map[string]bool, typ string) bool { return filter == nil || filter[typ] }

// EventsStreamHandler handles GET /v1/events/stream (SSE)
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.require(w, r, auth.RoleAdmin); !ok { return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    filter := typeFilter(r.URL.Query().Get("types"))

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch := s.Broker.Subscribe(FleetTopic)
    defer s.Broker.Unsubscribe(FleetTopic, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(heartbeatInterval)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            if !accepts(filter, evt.Type) { continue }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}
