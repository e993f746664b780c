package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/server"
	"example.com/chunkcast/internal/streamwriter"
	"example.com/chunkcast/internal/transport"
)

// WebSocket subscribes an upgraded connection to a topic. Text frames the
// client sends are published to the same topic.
type WebSocket struct {
	cfg      *config.WebSocketHandlerConfig
	env      *server.Env
	upgrader websocket.Upgrader
}

// NewWebSocket is the HandlerFactory for "WebSocket" routes.
func NewWebSocket(raw json.RawMessage, env *server.Env) (http.Handler, error) {
	cfg, err := config.ParseWebSocketHandlerConfig(raw)
	if err != nil {
		return nil, err
	}
	if env.Broadcaster == nil {
		return nil, fmt.Errorf("websocket handler requires a broadcaster")
	}
	h := &WebSocket{cfg: cfg, env: env}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h, nil
}

func (h *WebSocket) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.env.Log
	topic := topicOf(r, h.cfg.DefaultTopic)
	if topic == "" {
		server.WriteErrorResponse(w, r, http.StatusBadRequest, "missing topic", log)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Debug("WebSocket upgrade failed", logger.LogFields{"error": err.Error()})
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	req := streamwriter.NewRequest("websocket", topic)
	rc := streamwriter.NewResponseContext(req)
	writer := streamwriter.New(transport.NewWebSocket(conn),
		streamwriter.WithLogger(log),
		streamwriter.WithMetrics(h.env.Metrics),
		streamwriter.WithRequest(req),
		streamwriter.WithCompletionHook(func(req *streamwriter.Request) {
			if h.env.Reaper != nil {
				h.env.Reaper.Untrack(req.ID)
			}
		}),
	)
	sub := h.env.Broadcaster.Subscribe(topic, writer, rc)
	if h.env.Reaper != nil && !sub.IsClosed() {
		h.env.Reaper.Track(req.ID, sub)
	}
	defer func() {
		_ = sub.Close(streamwriter.CloseExplicit)
		h.env.Broadcaster.Unsubscribe(sub)
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read failed", logger.LogFields{"resource": req.ID, "error": err.Error()})
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.env.Broadcaster.Broadcast(r.Context(), topic, msg)
	}
}
