package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/leafbox/leafbox-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps the mqtt config section onto paho options.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// No persistent session: device events missed while offline are not replayed.
	opts.SetCleanSession(true)
	// Per-connection ordering for device messages.
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

type presenceStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

var (
	presenceOnline   = presenceStatus{Status: "online"}
	presenceShutdown = presenceStatus{Status: "offline", Reason: "graceful_shutdown"}
	presenceLost     = presenceStatus{Status: "offline", Reason: "unexpected_disconnect"}
)

// configureLWT registers the retained will the broker publishes if the
// server drops without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	opts.SetWill(topic, string(buildPresencePayload(clientID, presenceLost)), 1, true)
}

func buildPresencePayload(clientID string, status presenceStatus) []byte {
	payload, _ := json.Marshal(struct { //nolint:errcheck // fixed shape, cannot fail
		presenceStatus
		ClientID  string `json:"client_id"`
		Timestamp string `json:"timestamp"`
	}{
		presenceStatus: status,
		ClientID:       clientID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
