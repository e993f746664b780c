// Package handlers implements the route handlers: streaming subscriptions,
// publishing, WebSocket subscriptions and the metrics endpoint.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/interceptor"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/server"
	"example.com/chunkcast/internal/streamwriter"
	"example.com/chunkcast/internal/transport"
)

// Subscribe holds a response open and streams every message published to
// a topic into it. With the long-polling transport the response ends after
// the first message.
type Subscribe struct {
	cfg        *config.SubscribeHandlerConfig
	env        *server.Env
	transforms map[string][]config.TransformConfig // per transport
}

// NewSubscribe is the HandlerFactory for "Subscribe" routes.
func NewSubscribe(raw json.RawMessage, env *server.Env) (http.Handler, error) {
	cfg, err := config.ParseSubscribeHandlerConfig(raw)
	if err != nil {
		return nil, err
	}
	if env.Broadcaster == nil {
		return nil, fmt.Errorf("subscribe handler requires a broadcaster")
	}
	h := &Subscribe{cfg: cfg, env: env, transforms: make(map[string][]config.TransformConfig)}
	for _, t := range []string{config.SubscribeStreaming, config.SubscribeLongPolling, config.SubscribeSSE} {
		h.transforms[t] = h.chainConfig(t)
		// Fail at startup on a bad chain rather than on every request.
		if _, err := interceptor.Build(h.transforms[t]); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Subscribe) chainConfig(transportName string) []config.TransformConfig {
	var cfgs []config.TransformConfig
	if h.env.Writer != nil {
		cfgs = append(cfgs, h.env.Writer.Transforms...)
	}
	cfgs = append(cfgs, h.cfg.Transforms...)
	if transportName != config.SubscribeSSE {
		return cfgs
	}
	for _, c := range cfgs {
		if c.Type == config.TransformSSE {
			return cfgs
		}
	}
	// Event framing must run before any compression.
	return append([]config.TransformConfig{{Type: config.TransformSSE}}, cfgs...)
}

func (h *Subscribe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.env.Log
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		server.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "", log)
		return
	}
	topic := topicOf(r, h.cfg.DefaultTopic)
	if topic == "" {
		server.WriteErrorResponse(w, r, http.StatusBadRequest, "missing topic", log)
		return
	}
	mode := h.cfg.Transport
	if q := r.URL.Query().Get("transport"); q != "" {
		if _, ok := h.transforms[q]; !ok {
			server.WriteErrorResponse(w, r, http.StatusBadRequest, fmt.Sprintf("unknown transport %q", q), log)
			return
		}
		mode = q
	}
	cfgs, compressible := negotiateEncoding(h.transforms[mode], r.Header.Get("Accept-Encoding"))
	chain, err := interceptor.Build(cfgs)
	if err != nil {
		log.Error("Failed to build transform chain", logger.LogFields{"error": err.Error()})
		server.WriteErrorResponse(w, r, http.StatusInternalServerError, "", log)
		return
	}

	req := streamwriter.NewRequest(mode, topic)
	tr := transport.NewHTTP(w, r)
	rc := streamwriter.NewResponseContext(req)
	rc.ContentType = h.cfg.ContentType
	if rc.ContentType == "" && h.env.Writer != nil {
		rc.ContentType = h.env.Writer.DefaultContentType
	}
	if h.env.Writer != nil {
		rc.Charset = h.env.Writer.DefaultCharset
	}
	rc.Raw = tr
	rc.SetHeader("X-Request-Id", req.ID)
	rc.SetHeader("Cache-Control", "no-cache")
	if compressible {
		rc.SetHeader("Vary", "Accept-Encoding")
	}

	writer := streamwriter.New(tr,
		streamwriter.WithInterceptors(chain...),
		streamwriter.WithLogger(log),
		streamwriter.WithMetrics(h.env.Metrics),
		streamwriter.WithRequest(req),
		streamwriter.WithResumeOnBroadcast(mode == config.SubscribeLongPolling),
		streamwriter.WithCompletionHook(h.completed),
	)

	sub := h.env.Broadcaster.Subscribe(topic, writer, rc)
	if h.env.Reaper != nil && !sub.IsClosed() {
		h.env.Reaper.Track(req.ID, sub)
	}
	log.Debug("Subscriber connected", logger.LogFields{"topic": topic, "transport": mode, "resource": req.ID})

	select {
	case <-tr.Done():
	case <-r.Context().Done():
		_ = sub.Close(streamwriter.CloseExplicit)
	}
	h.env.Broadcaster.Unsubscribe(sub)
}

// negotiateEncoding drops compression transforms whose coding the client
// did not accept, and every one after the first accepted. compressible
// reports whether the chain had any, in which case the response varies on
// Accept-Encoding either way.
func negotiateEncoding(cfgs []config.TransformConfig, acceptEncoding string) (kept []config.TransformConfig, compressible bool) {
	kept = make([]config.TransformConfig, 0, len(cfgs))
	encoded := false
	for _, c := range cfgs {
		var coding string
		switch c.Type {
		case config.TransformGzip:
			coding = "gzip"
		case config.TransformBrotli:
			coding = "br"
		default:
			kept = append(kept, c)
			continue
		}
		if !encoded && server.AcceptsEncoding(acceptEncoding, coding) {
			kept = append(kept, c)
			encoded = true
		}
		compressible = true
	}
	return kept, compressible
}

func (h *Subscribe) completed(req *streamwriter.Request) {
	if req == nil {
		return
	}
	if h.env.Reaper != nil {
		h.env.Reaper.Untrack(req.ID)
	}
	h.env.Log.Debug("Subscriber finished", logger.LogFields{"topic": req.Topic, "resource": req.ID})
}

func topicOf(r *http.Request, def string) string {
	if t := r.URL.Query().Get("topic"); t != "" {
		return t
	}
	return def
}
