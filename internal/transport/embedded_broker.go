package transport

import (
	"fmt"
	"log/slog"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// embeddedBroker wraps a mochi-mqtt server instance bound to a single local
// TCP listener, used by MqttTransport in ModeHostBroker. It accepts any
// client, tolerates idle connections indefinitely and sends no M66666
// redirect directive; no other part of this module sends one either.
type embeddedBroker struct {
	server *mqtt.Server
}

func startEmbeddedBroker(logger *slog.Logger, port int) (*embeddedBroker, error) {
	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("embedded broker: add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "printercore-host-broker",
		Address: fmt.Sprintf(":%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("embedded broker: add listener: %w", err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			logger.Warn("embedded mqtt broker stopped", "error", err)
		}
	}()

	return &embeddedBroker{server: server}, nil
}

// stop shuts the broker down, releasing its listener. Safe to call once.
func (b *embeddedBroker) stop() error {
	return b.server.Close()
}
