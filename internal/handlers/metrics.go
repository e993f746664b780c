package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/chunkcast/internal/server"
)

// NewMetrics is the HandlerFactory for "Metrics" routes. It takes no
// handler_config.
func NewMetrics(_ json.RawMessage, env *server.Env) (http.Handler, error) {
	if env.Gatherer == nil {
		return promhttp.Handler(), nil
	}
	opts := promhttp.HandlerOpts{}
	if reg, ok := env.Gatherer.(prometheus.Registerer); ok {
		opts.Registry = reg
	}
	return promhttp.HandlerFor(env.Gatherer, opts), nil
}
