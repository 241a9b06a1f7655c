package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/logstream"
)

// StreamService handles live log streaming to dashboards.
type StreamService struct {
	Broadcaster *logstream.Broadcaster
	Logger      *zap.Logger
}

// NewStreamService creates a new stream service.
func NewStreamService(broadcaster *logstream.Broadcaster, logger *zap.Logger) *StreamService {
	return &StreamService{Broadcaster: broadcaster, Logger: logger}
}

// SSEHandler streams log lines as server-sent events, one JSON-encoded
// line per event, until the client disconnects.
func SSEHandler(svc *StreamService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			utils.SendErrorResponse(w, utils.NewAPIError("streaming unsupported", http.StatusInternalServerError))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := svc.Broadcaster.Subscribe()
		defer svc.Broadcaster.Unsubscribe(sub)

		for {
			select {
			case line, open := <-sub.Lines:
				if !open {
					return
				}
				payload, err := json.Marshal(line)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					// Client is gone; the deferred unsubscribe prunes it.
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from arbitrary origins in this deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler streams the same log lines over a WebSocket, for dashboards
// behind proxies that buffer SSE responses.
func WSHandler(svc *StreamService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			svc.Logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		sub := svc.Broadcaster.Subscribe()
		defer svc.Broadcaster.Unsubscribe(sub)

		// Drain client frames so close/ping handling keeps working.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case line, open := <-sub.Lines:
				if !open {
					return
				}
				if err := conn.WriteJSON(line); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
