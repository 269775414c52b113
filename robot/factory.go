package robot

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/inorbit-ai/edge-sdk-go/transport"
)

// RobotSessionFactory builds sessions sharing one application key and
// endpoint. Command callbacks registered on the factory are applied to
// every session it builds.
type RobotSessionFactory struct {
	APIKey   string
	Endpoint string
	UseSSL   bool

	// TransportFactory and HTTPClient override the session defaults,
	// mainly for tests.
	TransportFactory transport.Factory
	HTTPClient       *http.Client
	NowMs            func() int64

	logger *slog.Logger

	mu        sync.Mutex
	callbacks []CommandCallback
}

// NewRobotSessionFactory creates a factory. An empty endpoint selects
// the default cloud configuration service.
func NewRobotSessionFactory(apiKey, endpoint string, useSSL bool, logger *slog.Logger) *RobotSessionFactory {
	return &RobotSessionFactory{
		APIKey:   apiKey,
		Endpoint: endpoint,
		UseSSL:   useSSL,
		logger:   logger,
	}
}

// RegisterCommandCallback registers a callback on every session built
// from now on.
func (f *RobotSessionFactory) RegisterCommandCallback(cb CommandCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
}

// Build creates a session for the given robot identity. The session is
// not yet connected.
func (f *RobotSessionFactory) Build(robotID, robotName string) (*RobotSession, error) {
	s, err := NewRobotSession(SessionOptions{
		RobotID:          robotID,
		RobotName:        robotName,
		APIKey:           f.APIKey,
		Endpoint:         f.Endpoint,
		UseSSL:           f.UseSSL,
		TransportFactory: f.TransportFactory,
		HTTPClient:       f.HTTPClient,
		NowMs:            f.NowMs,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	callbacks := make([]CommandCallback, len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.mu.Unlock()
	for _, cb := range callbacks {
		s.RegisterCommandCallback(cb)
	}
	return s, nil
}
