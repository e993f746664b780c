// Package router dispatches requests to the handlers configured for each
// route.
package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/server"
)

type entry struct {
	route   config.Route
	handler http.Handler
}

// Router holds the routing table. Handlers are built once, when the router
// is created, so a bad handler_config fails startup rather than a request.
type Router struct {
	exactRoutes map[string]entry
	// prefixRoutes is sorted longest pattern first.
	prefixRoutes []entry
	log          *logger.Logger
}

// NewRouter builds a handler for every route through registry.
func NewRouter(routes []config.Route, registry *server.HandlerRegistry, env *server.Env) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if env == nil || env.Log == nil {
		return nil, fmt.Errorf("handler environment with a logger is required")
	}

	r := &Router{
		exactRoutes: make(map[string]entry),
		log:         env.Log,
	}
	for _, route := range routes {
		h, err := registry.CreateHandler(route.HandlerType, route.HandlerConfig, env)
		if err != nil {
			return nil, fmt.Errorf("route %s %q: %w", route.MatchType, route.PathPattern, err)
		}
		e := entry{route: route, handler: h}
		switch route.MatchType {
		case config.MatchTypeExact:
			r.exactRoutes[route.PathPattern] = e
		case config.MatchTypePrefix:
			r.prefixRoutes = append(r.prefixRoutes, e)
		default:
			return nil, fmt.Errorf("route %q: unknown match type %q", route.PathPattern, route.MatchType)
		}
	}

	sort.SliceStable(r.prefixRoutes, func(i, j int) bool {
		return len(r.prefixRoutes[i].route.PathPattern) > len(r.prefixRoutes[j].route.PathPattern)
	})
	return r, nil
}

// FindRoute returns the route and handler for path. Exact matches win over
// prefix matches; among prefixes the longest wins. It returns nil, nil when
// nothing matches.
func (r *Router) FindRoute(path string) (*config.Route, http.Handler) {
	if e, ok := r.exactRoutes[path]; ok {
		return &e.route, e.handler
	}
	for i := range r.prefixRoutes {
		e := &r.prefixRoutes[i]
		if strings.HasPrefix(path, e.route.PathPattern) {
			return &e.route, e.handler
		}
	}
	return nil, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	_, h := r.FindRoute(req.URL.Path)
	if h == nil {
		r.log.Info("No route matched for request", logger.LogFields{"path": req.URL.Path})
		server.WriteErrorResponse(w, req, http.StatusNotFound, "", r.log)
		return
	}
	h.ServeHTTP(w, req)
}
