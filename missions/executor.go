package missions

import (
	"log/slog"
	"sync"
	"time"
)

// MissionWildcard cancels whatever mission is active.
const MissionWildcard = "*"

// Executor enforces the mission execution rules: only one mission runs
// at a time and only the active mission can be canceled. The active
// mission reference and the idle signal are guarded by one mutex; the
// mission's own state has its own lock since step execution runs on a
// different goroutine than cancel/pause/resume callers.
type Executor struct {
	logger *slog.Logger

	mu      sync.Mutex
	mission *Mission
	idle    chan struct{}
	idleSet bool
	paused  bool
}

// NewExecutor creates an idle executor.
func NewExecutor(logger *slog.Logger) *Executor {
	idle := make(chan struct{})
	close(idle)
	return &Executor{
		logger:  logger.With("component", "mission_executor"),
		idle:    idle,
		idleSet: true,
	}
}

// RunMission starts the mission on its own goroutine. A mission started
// while another is active is rejected with a warning, leaving the
// active mission untouched.
func (e *Executor) RunMission(m *Mission) {
	e.mu.Lock()
	if e.mission != nil {
		e.logger.Warn("can't start mission while another is running",
			"mission_id", m.ID, "active_mission_id", e.mission.ID)
		e.mu.Unlock()
		return
	}
	e.mission = m
	e.idle = make(chan struct{})
	e.idleSet = false
	if e.paused {
		// A global pause issued before the mission started still
		// applies: the mission begins paused. Applied under the mutex so
		// a concurrent Resume cannot slip between the flag check and the
		// pause and leave the mission stuck.
		m.Pause()
	}
	e.mu.Unlock()

	go func() {
		m.Execute()
		e.mu.Lock()
		if e.mission == m {
			e.mission = nil
			e.setIdleLocked()
		}
		e.mu.Unlock()
	}()
}

// CancelMission cancels the active mission when missionID matches it or
// is the wildcard. A mismatched id logs a warning but still cancels the
// active mission; tests pin this long-standing behavior.
func (e *Executor) CancelMission(missionID string) {
	e.mu.Lock()
	m := e.mission
	if m == nil {
		e.logger.Warn("can't cancel mission when no mission is running", "mission_id", missionID)
		e.mu.Unlock()
		return
	}
	if missionID != MissionWildcard && m.ID != missionID {
		e.logger.Warn("cancel mission id does not match running mission",
			"mission_id", missionID, "active_mission_id", m.ID)
	}
	e.mission = nil
	e.setIdleLocked()
	e.mu.Unlock()

	m.Cancel()
}

// Pause pauses the active mission and makes newly started missions
// begin paused.
func (e *Executor) Pause() {
	e.mu.Lock()
	e.paused = true
	m := e.mission
	e.mu.Unlock()
	if m != nil {
		m.Pause()
	}
}

// Resume clears the global pause and resumes the active mission.
func (e *Executor) Resume() {
	e.mu.Lock()
	e.paused = false
	m := e.mission
	e.mu.Unlock()
	if m != nil {
		m.Resume()
	}
}

// HandleEvent forwards a named event to the active mission.
func (e *Executor) HandleEvent(name string) {
	e.mu.Lock()
	m := e.mission
	e.mu.Unlock()
	if m != nil {
		m.HandleEvent(name)
	}
}

// ActiveMissionID returns the running mission's id, or "" when idle.
func (e *Executor) ActiveMissionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mission == nil {
		return ""
	}
	return e.mission.ID
}

// WaitUntilIdle blocks until no mission is running, up to timeout
// (forever when timeout is zero). Mostly a synchronization helper for
// tests and shutdown paths.
func (e *Executor) WaitUntilIdle(timeout time.Duration) bool {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	if timeout <= 0 {
		<-idle
		return true
	}
	select {
	case <-idle:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (e *Executor) setIdleLocked() {
	if !e.idleSet {
		close(e.idle)
		e.idleSet = true
	}
}
