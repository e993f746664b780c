package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/server"
)

// PublishResult is the JSON body returned by a publish.
type PublishResult struct {
	Topic     string `json:"topic"`
	Delivered int    `json:"delivered"`
}

// Publish broadcasts a POSTed body to a topic.
type Publish struct {
	cfg *config.PublishHandlerConfig
	env *server.Env
}

// NewPublish is the HandlerFactory for "Publish" routes.
func NewPublish(raw json.RawMessage, env *server.Env) (http.Handler, error) {
	cfg, err := config.ParsePublishHandlerConfig(raw)
	if err != nil {
		return nil, err
	}
	if env.Broadcaster == nil {
		return nil, fmt.Errorf("publish handler requires a broadcaster")
	}
	return &Publish{cfg: cfg, env: env}, nil
}

func (h *Publish) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.env.Log
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		server.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "", log)
		return
	}
	topic := topicOf(r, h.cfg.DefaultTopic)
	if topic == "" {
		server.WriteErrorResponse(w, r, http.StatusBadRequest, "missing topic", log)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			server.WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, "", log)
			return
		}
		server.WriteErrorResponse(w, r, http.StatusBadRequest, "unable to read body", log)
		return
	}

	delivered := h.env.Broadcaster.Broadcast(r.Context(), topic, body)
	log.Debug("Published", logger.LogFields{"topic": topic, "bytes": len(body), "delivered": delivered})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(PublishResult{Topic: topic, Delivered: delivered}); err != nil {
		log.Debug("Failed to write publish result", logger.LogFields{"error": err.Error()})
	}
}
