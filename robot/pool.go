package robot

import (
	"fmt"
	"sync"
)

// RobotSessionPool caches one connected session per robot id. The pool
// mutex covers the whole lookup-or-build sequence so build-and-connect
// happens at most once per robot even under concurrent GetSession
// calls.
type RobotSessionPool struct {
	factory *RobotSessionFactory

	mu       sync.Mutex
	sessions map[string]*RobotSession
}

// NewRobotSessionPool creates an empty pool backed by the factory.
func NewRobotSessionPool(factory *RobotSessionFactory) *RobotSessionPool {
	return &RobotSessionPool{
		factory:  factory,
		sessions: make(map[string]*RobotSession),
	}
}

// GetSession returns the existing session for the robot, or builds and
// connects a new one.
func (p *RobotSessionPool) GetSession(robotID, robotName string) (*RobotSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[robotID]; ok {
		return s, nil
	}
	s, err := p.factory.Build(robotID, robotName)
	if err != nil {
		return nil, fmt.Errorf("build session for %s: %w", robotID, err)
	}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	p.sessions[robotID] = s
	return s, nil
}

// HasRobot reports whether the pool holds a session for the robot.
func (p *RobotSessionPool) HasRobot(robotID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[robotID]
	return ok
}

// FreeRobotSession disconnects and drops the robot's session, if any.
func (p *RobotSessionPool) FreeRobotSession(robotID string) {
	p.mu.Lock()
	s := p.sessions[robotID]
	delete(p.sessions, robotID)
	p.mu.Unlock()

	if s != nil {
		if err := s.Disconnect(); err != nil {
			s.logger.Warn("disconnect on free failed", "error", err)
		}
	}
}

// TearDown disconnects and drops every session.
func (p *RobotSessionPool) TearDown() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*RobotSession)
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.Disconnect(); err != nil {
			s.logger.Warn("disconnect on tear down failed", "error", err)
		}
	}
}
