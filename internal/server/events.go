package server

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lazypower/tiermem/internal/events"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API listens on loopback by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams bus events as JSON messages over a websocket.
// ?type=trace.evicted,trace.promoted limits the stream to those types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	filter := parseTypes(r.URL.Query().Get("type"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe(eventBuffer)
	defer cancel()

	// The client never sends anything we use; reading surfaces its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func parseTypes(s string) map[events.Type]bool {
	if s == "" {
		return nil
	}
	out := make(map[events.Type]bool)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[events.Type(t)] = true
		}
	}
	return out
}
