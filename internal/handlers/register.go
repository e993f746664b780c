package handlers

import (
	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/server"
)

// Register adds every handler type to registry.
func Register(registry *server.HandlerRegistry) error {
	factories := []struct {
		handlerType string
		factory     server.HandlerFactory
	}{
		{config.HandlerTypeSubscribe, NewSubscribe},
		{config.HandlerTypePublish, NewPublish},
		{config.HandlerTypeWebSocket, NewWebSocket},
		{config.HandlerTypeMetrics, NewMetrics},
	}
	for _, f := range factories {
		if err := registry.Register(f.handlerType, f.factory); err != nil {
			return err
		}
	}
	return nil
}
