// Package transport abstracts the pub/sub connection used by robot
// sessions. Session logic depends only on the Transport interface so it
// can be exercised against a fake; the production implementation wraps
// the Eclipse PAHO MQTT client.
package transport

// Handlers carries the callbacks a transport delivers from its own I/O
// goroutine. Implementations must tolerate concurrent application calls
// while a callback is running.
type Handlers struct {
	OnConnect        func()
	OnConnectionLost func(err error)
	OnMessage        func(topic string, payload []byte)
}

// Options configures a transport connection.
type Options struct {
	Hostname      string
	Port          int
	UseTLS        bool
	UseWebsockets bool
	ClientID      string
	Username      string
	Password      string

	// Will* configure the retained last-will message delivered by the
	// broker on abnormal disconnect.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

// Transport is the connection surface consumed by a robot session.
type Transport interface {
	// Connect starts establishing the connection. It does not block
	// until the connection is up; callers poll IsConnected.
	Connect() error
	// Disconnect closes the connection after flushing in-flight work
	// for up to quiesceMs milliseconds.
	Disconnect(quiesceMs uint)
	// Publish sends a payload and waits for the send to complete.
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Factory builds a Transport for the given options and handlers.
// Sessions take a Factory so tests can substitute a fake transport.
type Factory func(opts Options, handlers Handlers) Transport
