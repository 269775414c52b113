// Package robot implements the per-robot InOrbit session: connection
// lifecycle, throttled telemetry publishing, inbound command routing
// and the session pool.
package robot

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inorbit-ai/edge-sdk-go/transport"
	"github.com/inorbit-ai/edge-sdk-go/types"
)

// ConnectionState is the session's lifecycle state.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

const (
	connectPollInterval = 100 * time.Millisecond
	connectPollRetries  = 50
	disconnectQuiesceMs = 250
)

// TelemetryProducer is anything feeding telemetry through the session
// on its own schedule (camera streamers and the like). Producers are
// stopped on disconnect.
type TelemetryProducer interface {
	Stop()
}

// SessionOptions configures a RobotSession.
type SessionOptions struct {
	RobotID   string
	RobotName string
	APIKey    string
	// Endpoint of the cloud configuration service; DefaultEndpoint
	// when empty.
	Endpoint string
	// UseSSL enables TLS on the broker connection.
	UseSSL bool
	// TransportFactory builds the pub/sub connection; the MQTT
	// transport when nil.
	TransportFactory transport.Factory
	// HTTPClient performs the configuration fetch; http.DefaultClient
	// when nil.
	HTTPClient *http.Client
	// NowMs supplies timestamps in epoch milliseconds; wall clock when
	// nil.
	NowMs func() int64
}

// RobotSession holds one robot's persistent connection and protocol
// state. Transport callbacks arrive on the transport's goroutine
// concurrently with application calls; each subsystem owns its own
// lock so unrelated operations do not serialize each other.
type RobotSession struct {
	RobotID      string
	RobotName    string
	APIKey       string
	AgentVersion string
	Endpoint     string

	useSSL        bool
	httpProxy     string
	useWebsockets bool

	logger       *slog.Logger
	httpClient   *http.Client
	newTransport transport.Factory
	nowMs        func() int64

	mu        sync.Mutex
	state     ConnectionState
	transport transport.Transport
	cloudCfg  *cloudConfig

	cbMu      sync.RWMutex
	callbacks []CommandCallback

	throttle    *publishThrottle
	accumulator *distanceAccumulator

	poseMu   sync.Mutex
	lastPose *types.Pose

	mapMu     sync.Mutex
	mapHashes map[string]uint32

	prodMu    sync.Mutex
	producers []TelemetryProducer
}

// NewRobotSession validates the robot identity and builds a session in
// the Disconnected state.
func NewRobotSession(opts SessionOptions, logger *slog.Logger) (*RobotSession, error) {
	for name, v := range map[string]string{
		"robot id":   opts.RobotID,
		"robot name": opts.RobotName,
		"api key":    opts.APIKey,
	} {
		if v == "" {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
		if strings.ContainsAny(v, " \t\n") {
			return nil, fmt.Errorf("%s must not contain whitespace", name)
		}
	}
	if strings.HasPrefix(opts.RobotID, "/") {
		return nil, fmt.Errorf("robot id must not start with a path separator")
	}

	s := &RobotSession{
		RobotID:      opts.RobotID,
		RobotName:    opts.RobotName,
		APIKey:       opts.APIKey,
		AgentVersion: AgentVersion,
		Endpoint:     opts.Endpoint,
		useSSL:       opts.UseSSL,
		httpProxy:    os.Getenv("HTTP_PROXY"),
		logger:       logger.With("component", "robot_session", "robot_id", opts.RobotID),
		httpClient:   opts.HTTPClient,
		newTransport: opts.TransportFactory,
		nowMs:        opts.NowMs,
		state:        Disconnected,
		mapHashes:    make(map[string]uint32),
	}
	if s.Endpoint == "" {
		s.Endpoint = DefaultEndpoint
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.nowMs == nil {
		s.nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	if s.newTransport == nil {
		s.newTransport = func(o transport.Options, h transport.Handlers) transport.Transport {
			return transport.NewMQTTTransport(o, h, logger)
		}
	}
	// Proxied environments only pass websocket traffic.
	s.useWebsockets = s.httpProxy != ""

	s.throttle = newPublishThrottle(s.nowMs)
	s.accumulator = newDistanceAccumulator(s.nowMs)
	return s, nil
}

// State returns the session's connection state.
func (s *RobotSession) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RobotSession) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *RobotSession) currentTransport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// credential returns the robot-scoped key used in state payloads,
// falling back to the application key before the first config fetch.
func (s *RobotSession) credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cloudCfg != nil && s.cloudCfg.RobotAPIKey != "" {
		return s.cloudCfg.RobotAPIKey
	}
	return s.APIKey
}

// Connect fetches connection credentials, opens the transport with a
// retained offline last will and blocks until the transport reports
// connected or the bounded retries run out.
func (s *RobotSession) Connect() error {
	s.setState(Connecting)

	cfg, err := s.fetchRobotConfig()
	if err != nil {
		s.setState(Disconnected)
		s.logger.Error("robot config fetch failed", slog.Any("error", err))
		return fmt.Errorf("connect robot %s: %w", s.RobotID, err)
	}

	s.mu.Lock()
	s.cloudCfg = cfg
	s.mu.Unlock()

	port := cfg.Port
	if s.useWebsockets {
		port = cfg.WebsocketPort
	}
	opts := transport.Options{
		Hostname:      cfg.Hostname,
		Port:          port,
		UseTLS:        s.useSSL,
		UseWebsockets: s.useWebsockets,
		ClientID:      fmt.Sprintf("%s-%.8s", s.RobotID, uuid.NewString()),
		Username:      cfg.Username,
		Password:      cfg.Password,
		WillTopic:     s.topic(subtopicState),
		WillPayload:   s.encodeOfflineState(),
		WillQoS:       1,
		WillRetain:    true,
	}
	t := s.newTransport(opts, transport.Handlers{
		OnConnect:        s.onConnect,
		OnConnectionLost: s.onConnectionLost,
		OnMessage:        s.onMessage,
	})

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	if err := t.Connect(); err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("connect robot %s: %w", s.RobotID, err)
	}
	for i := 0; i < connectPollRetries; i++ {
		if t.IsConnected() {
			s.setState(Connected)
			return nil
		}
		time.Sleep(connectPollInterval)
	}
	s.setState(Disconnected)
	return fmt.Errorf("connect robot %s: timed out waiting for %s", s.RobotID, cfg.Hostname)
}

// Disconnect stops telemetry producers, marks the robot offline and
// closes the transport, blocking until the transport reports
// disconnected.
func (s *RobotSession) Disconnect() error {
	s.prodMu.Lock()
	producers := s.producers
	s.producers = nil
	s.prodMu.Unlock()
	for _, p := range producers {
		p.Stop()
	}

	t := s.currentTransport()
	if t == nil {
		s.setState(Disconnected)
		return nil
	}

	// Offline state is published synchronously so subscribers never see
	// a connected robot with a stale online flag.
	if err := t.Publish(s.topic(subtopicState), 1, true, s.encodeOfflineState()); err != nil {
		s.logger.Warn("offline state publish failed", slog.Any("error", err))
	}
	t.Disconnect(disconnectQuiesceMs)
	for i := 0; i < connectPollRetries; i++ {
		if !t.IsConnected() {
			s.setState(Disconnected)
			return nil
		}
		time.Sleep(connectPollInterval)
	}
	s.setState(Disconnected)
	return fmt.Errorf("disconnect robot %s: transport did not close in time", s.RobotID)
}

// RegisterTelemetryProducer records a producer to stop on disconnect.
func (s *RobotSession) RegisterTelemetryProducer(p TelemetryProducer) {
	s.prodMu.Lock()
	defer s.prodMu.Unlock()
	s.producers = append(s.producers, p)
}

// onConnect runs on the transport's callback goroutine for every
// (re)connect. The online status publish goes to its own goroutine so
// a slow publish never blocks the transport's event loop.
func (s *RobotSession) onConnect() {
	s.setState(Connected)
	go s.publishOnlineState()

	t := s.currentTransport()
	if t == nil {
		return
	}
	for _, sub := range []string{subtopicSetPose, subtopicScriptCommand, subtopicInCmd} {
		if err := t.Subscribe(s.topic(sub), 1); err != nil {
			s.logger.Error("subscribe failed", "topic", s.topic(sub), slog.Any("error", err))
		}
	}
	// Ask the cloud side to resend any module state it holds for this
	// robot, so modules resume where they left off after a reconnect.
	if err := t.Publish(s.topic(subtopicStateRepublish), 1, false, []byte("1")); err != nil {
		s.logger.Warn("state republish request failed", slog.Any("error", err))
	}
}

func (s *RobotSession) onConnectionLost(err error) {
	s.setState(Disconnected)
	// The robot may have moved while unobserved; the next pose delta
	// cannot be trusted as physical travel.
	s.accumulator.DiscardNextDelta()
	s.logger.Warn("transport connection lost", slog.Any("error", err))
}

func (s *RobotSession) publishOnlineState() {
	payload := s.encodeOnlineState()
	if err := s.publish(subtopicState, 1, true, payload); err != nil {
		s.logger.Error("online state publish failed", slog.Any("error", err))
	}
}

func (s *RobotSession) topic(subtopic string) string {
	return topicRoot(s.RobotID) + "/" + subtopic
}

func (s *RobotSession) publish(subtopic string, qos byte, retain bool, payload []byte) error {
	t := s.currentTransport()
	if t == nil {
		return fmt.Errorf("robot %s: no transport, connect first", s.RobotID)
	}
	return t.Publish(s.topic(subtopic), qos, retain, payload)
}
