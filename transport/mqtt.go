package transport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// MQTTTransport implements Transport on top of the PAHO MQTT client.
// Reconnection after an unexpected drop is handled by the client's
// auto-reconnect; this layer only forwards the connect/disconnect
// callbacks.
type MQTTTransport struct {
	client mqtt.Client
	logger *slog.Logger
}

// NewMQTTTransport builds a transport for the given options. The
// returned transport is not yet connected.
func NewMQTTTransport(opts Options, handlers Handlers, logger *slog.Logger) *MQTTTransport {
	t := &MQTTTransport{logger: logger.With("component", "mqtt_transport")}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL(opts)).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	if opts.UseTLS {
		clientOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if opts.WillTopic != "" {
		clientOpts.SetBinaryWill(opts.WillTopic, opts.WillPayload, opts.WillQoS, opts.WillRetain)
	}
	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		t.logger.Info("connected to broker")
		if handlers.OnConnect != nil {
			handlers.OnConnect()
		}
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.logger.Error("connection lost", slog.Any("error", err))
		if handlers.OnConnectionLost != nil {
			handlers.OnConnectionLost(err)
		}
	})
	clientOpts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		if handlers.OnMessage != nil {
			handlers.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	t.client = mqtt.NewClient(clientOpts)
	return t
}

func brokerURL(opts Options) string {
	switch {
	case opts.UseWebsockets && opts.UseTLS:
		return fmt.Sprintf("wss://%s:%d/mqtt", opts.Hostname, opts.Port)
	case opts.UseWebsockets:
		return fmt.Sprintf("ws://%s:%d/mqtt", opts.Hostname, opts.Port)
	case opts.UseTLS:
		return fmt.Sprintf("ssl://%s:%d", opts.Hostname, opts.Port)
	default:
		return fmt.Sprintf("tcp://%s:%d", opts.Hostname, opts.Port)
	}
}

// Connect starts the connection attempt. Errors detected before the
// attempt completes surface through the connection-lost handler and the
// caller's IsConnected polling.
func (t *MQTTTransport) Connect() error {
	token := t.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			t.logger.Error("broker connection failed", slog.Any("error", token.Error()))
		}
	}()
	return nil
}

// Disconnect closes the connection, allowing quiesceMs milliseconds for
// in-flight messages to drain.
func (t *MQTTTransport) Disconnect(quiesceMs uint) {
	t.client.Disconnect(quiesceMs)
}

// Publish sends a payload and waits up to the publish timeout for the
// broker handshake.
func (t *MQTTTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("publish to %s: not connected", topic)
	}
	token := t.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %v", topic, publishTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

func (t *MQTTTransport) Subscribe(topic string, qos byte) error {
	token := t.client.Subscribe(topic, qos, nil)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

func (t *MQTTTransport) Unsubscribe(topic string) error {
	token := t.client.Unsubscribe(topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("unsubscribe from %s: %w", topic, token.Error())
	}
	return nil
}

func (t *MQTTTransport) IsConnected() bool {
	return t.client.IsConnected()
}
