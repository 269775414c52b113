package missions

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inorbit-ai/edge-sdk-go/robot"
	"github.com/inorbit-ai/edge-sdk-go/types"
)

// Step types recognized in mission programs.
const (
	stepTypeAction      = "Action"
	stepTypeSetData     = "SetData"
	stepTypeWaitSeconds = "WaitSeconds"
	stepTypeWaitEvent   = "WaitEvent"

	actionTypePublishToTopic = "PublishToTopic"
	actionTypeRunScript      = "RunScript"
	actionTypeNavigateTo     = "NavigateTo"
)

const navigatePollInterval = 100 * time.Millisecond

// Step is one unit of mission work. Execute blocks until the step is
// done or canceled; Success reports whether it reached its goal.
type Step interface {
	Label() string
	Timeout() time.Duration
	Execute(m *Mission) error
	Success() bool
	Cancel()
	Pause()
	Resume()
}

type eventHandler interface {
	HandleEvent(name string)
}

type stepDef struct {
	Type      string         `json:"type"`
	Label     string         `json:"label"`
	TimeoutMs *int64         `json:"timeoutMs"`
	Action    *actionDef     `json:"action"`
	Data      map[string]any `json:"data"`
	Seconds   float64        `json:"seconds"`
	Event     string         `json:"event"`
	Tolerance *toleranceDef  `json:"tolerance"`
}

type actionDef struct {
	Type     string       `json:"type"`
	Message  string       `json:"message"`
	FileName string       `json:"fileName"`
	Args     []string     `json:"args"`
	Waypoint *waypointDef `json:"waypoint"`
}

type waypointDef struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Theta   float64 `json:"theta"`
	FrameID string  `json:"frameId"`
}

type toleranceDef struct {
	PositionMeters float64 `json:"positionMeters"`
	AngularRadians float64 `json:"angularRadians"`
}

func buildStep(def stepDef, session Session) (Step, error) {
	base := baseStep{label: def.Label}
	if def.TimeoutMs != nil {
		base.timeoutMs = *def.TimeoutMs
	}
	switch def.Type {
	case stepTypeAction:
		if def.Action == nil {
			return nil, fmt.Errorf("action step %q has no action", def.Label)
		}
		return buildActionStep(base, *def.Action, def.Tolerance, session)
	case stepTypeSetData:
		return &stepSetData{baseStep: base, values: def.Data}, nil
	case stepTypeWaitSeconds:
		return newStepWaitSeconds(base, def.Seconds), nil
	case stepTypeWaitEvent:
		return newStepWaitEvent(base, def.Event), nil
	default:
		return nil, fmt.Errorf("unknown step type %q", def.Type)
	}
}

func buildActionStep(base baseStep, action actionDef, tolerance *toleranceDef, session Session) (Step, error) {
	switch action.Type {
	case actionTypePublishToTopic:
		return &stepPublishToTopic{baseStep: base, message: action.Message}, nil
	case actionTypeRunScript:
		return &stepRunScript{baseStep: base, fileName: action.FileName, args: action.Args}, nil
	case actionTypeNavigateTo:
		if action.Waypoint == nil {
			return nil, fmt.Errorf("navigate action %q has no waypoint", base.label)
		}
		step := newStepNavigateTo(base, *action.Waypoint, session)
		if tolerance != nil {
			step = step.withTolerance(*tolerance)
		}
		return step, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
}

// baseStep carries the shared label and timeout and default no-op
// lifecycle handlers.
type baseStep struct {
	label     string
	timeoutMs int64
}

func (s *baseStep) Label() string { return s.label }

func (s *baseStep) Timeout() time.Duration {
	return time.Duration(s.timeoutMs) * time.Millisecond
}

func (s *baseStep) Success() bool { return true }
func (s *baseStep) Cancel()       {}
func (s *baseStep) Pause()        {}
func (s *baseStep) Resume()       {}

// stepPublishToTopic dispatches a free-form message command.
type stepPublishToTopic struct {
	baseStep
	message string
}

func (s *stepPublishToTopic) Execute(m *Mission) error {
	m.session.DispatchCommand(robot.CommandMessage, []any{s.message}, "")
	return nil
}

// stepRunScript dispatches a custom command with its arguments.
type stepRunScript struct {
	baseStep
	fileName string
	args     []string
}

func (s *stepRunScript) Execute(m *Mission) error {
	m.session.DispatchCommand(robot.CommandCustomCommand, []any{s.fileName, s.args}, "")
	return nil
}

// stepSetData merges values into the mission data bag.
type stepSetData struct {
	baseStep
	values map[string]any
}

func (s *stepSetData) Execute(m *Mission) error {
	m.SetData(s.values)
	return nil
}

// stepWaitSeconds sleeps for a fixed duration, interruptible by cancel.
type stepWaitSeconds struct {
	baseStep
	seconds    float64
	cancelOnce sync.Once
	cancelCh   chan struct{}
	canceled   atomic.Bool
}

func newStepWaitSeconds(base baseStep, seconds float64) *stepWaitSeconds {
	return &stepWaitSeconds{baseStep: base, seconds: seconds, cancelCh: make(chan struct{})}
}

func (s *stepWaitSeconds) Execute(m *Mission) error {
	select {
	case <-time.After(time.Duration(s.seconds * float64(time.Second))):
	case <-s.cancelCh:
	}
	return nil
}

func (s *stepWaitSeconds) Cancel() {
	s.canceled.Store(true)
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

func (s *stepWaitSeconds) Success() bool { return !s.canceled.Load() }

// stepWaitEvent blocks until a matching named event arrives, an
// optional timeout elapses or the step is canceled.
type stepWaitEvent struct {
	baseStep
	event      string
	eventCh    chan struct{}
	cancelOnce sync.Once
	cancelCh   chan struct{}
	canceled   atomic.Bool
	received   atomic.Bool
}

func newStepWaitEvent(base baseStep, event string) *stepWaitEvent {
	return &stepWaitEvent{
		baseStep: base,
		event:    event,
		eventCh:  make(chan struct{}, 1),
		cancelCh: make(chan struct{}),
	}
}

func (s *stepWaitEvent) Execute(m *Mission) error {
	var timeout <-chan time.Time
	if s.timeoutMs > 0 {
		timer := time.NewTimer(s.Timeout())
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-s.eventCh:
		s.received.Store(true)
	case <-timeout:
	case <-s.cancelCh:
	}
	return nil
}

func (s *stepWaitEvent) HandleEvent(name string) {
	if name != s.event {
		return
	}
	select {
	case s.eventCh <- struct{}{}:
	default:
	}
}

func (s *stepWaitEvent) Cancel() {
	s.canceled.Store(true)
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

func (s *stepWaitEvent) Success() bool { return s.received.Load() && !s.canceled.Load() }

// stepNavigateTo dispatches a navigation goal and polls the session
// until the robot's pose is within tolerance of the waypoint. On pause
// no progress checks happen; on resume the goal is dispatched again so
// a controller that dropped it on pause picks it back up. The session
// is fixed at construction since Resume runs on a different goroutine
// than Execute.
type stepNavigateTo struct {
	baseStep
	waypoint  waypointDef
	tolerance types.SpatialTolerance
	session   Session

	cancelOnce sync.Once
	cancelCh   chan struct{}
	canceled   atomic.Bool
	paused     atomic.Bool
	reached    atomic.Bool
}

func newStepNavigateTo(base baseStep, waypoint waypointDef, session Session) *stepNavigateTo {
	return &stepNavigateTo{
		baseStep: base,
		waypoint: waypoint,
		tolerance: types.SpatialTolerance{
			PositionMeters: 0.2,
			AngularRadians: 0.2,
		},
		session:  session,
		cancelCh: make(chan struct{}),
	}
}

func (s *stepNavigateTo) withTolerance(tol toleranceDef) *stepNavigateTo {
	s.tolerance = types.SpatialTolerance{
		PositionMeters: tol.PositionMeters,
		AngularRadians: tol.AngularRadians,
	}
	return s
}

func (s *stepNavigateTo) goal() []any {
	return []any{map[string]any{
		"x":       s.waypoint.X,
		"y":       s.waypoint.Y,
		"theta":   s.waypoint.Theta,
		"frameId": s.waypoint.FrameID,
	}}
}

func (s *stepNavigateTo) destination() types.Pose {
	return types.Pose{
		FrameID: s.waypoint.FrameID,
		X:       s.waypoint.X,
		Y:       s.waypoint.Y,
		Theta:   s.waypoint.Theta,
	}
}

func (s *stepNavigateTo) Execute(m *Mission) error {
	s.session.DispatchCommand(robot.CommandNavGoal, s.goal(), "")

	ticker := time.NewTicker(navigatePollInterval)
	defer ticker.Stop()
	for {
		if !s.paused.Load() && s.session.ReachedWaypoint(s.destination(), s.tolerance) {
			s.reached.Store(true)
			return nil
		}
		select {
		case <-ticker.C:
		case <-s.cancelCh:
			return nil
		}
	}
}

func (s *stepNavigateTo) Cancel() {
	s.canceled.Store(true)
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

func (s *stepNavigateTo) Pause() { s.paused.Store(true) }

func (s *stepNavigateTo) Resume() {
	if !s.paused.Swap(false) {
		return
	}
	if s.canceled.Load() {
		return
	}
	s.session.DispatchCommand(robot.CommandNavGoal, s.goal(), "")
}

func (s *stepNavigateTo) Success() bool { return s.reached.Load() && !s.canceled.Load() }
