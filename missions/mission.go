package missions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Mission lifecycle states.
const (
	StateStarting  = "Starting"
	StateExecuting = "Executing"
	StateCompleted = "Completed"
	StateAborted   = "Aborted"
	StateCanceled  = "Canceled"
)

// Mission statuses.
const (
	StatusOK    = "OK"
	StatusError = "Error"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventAbort    = "abort"
	eventCancel   = "cancel"
)

type program struct {
	Label string    `json:"label"`
	Steps []stepDef `json:"steps"`
}

// Mission is one in-flight ordered program of steps. Execute runs on
// the executor's goroutine while Cancel/Pause/Resume arrive from the
// transport callback goroutine, so mutable state is guarded by the
// mission's own mutex.
type Mission struct {
	ID    string
	Label string

	session Session
	logger  *slog.Logger
	nowMs   func() int64
	steps   []Step
	machine *fsm.FSM

	mu             sync.Mutex
	cond           *sync.Cond
	paused         bool
	status         string
	currentStepIdx int
	currentStep    Step
	data           map[string]any
	startTs        int64
	endTs          int64
}

// NewMission parses a mission program and builds its steps. Unknown
// step types fail construction; no mission is created.
func NewMission(id string, programJSON []byte, session Session, logger *slog.Logger, nowMs func() int64) (*Mission, error) {
	if nowMs == nil {
		nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	var prog program
	if err := json.Unmarshal(programJSON, &prog); err != nil {
		return nil, fmt.Errorf("parse mission program: %w", err)
	}

	m := &Mission{
		ID:             id,
		Label:          prog.Label,
		session:        session,
		logger:         logger.With("component", "mission", "mission_id", id),
		nowMs:          nowMs,
		status:         StatusOK,
		currentStepIdx: -1,
		data:           make(map[string]any),
		startTs:        nowMs(),
	}
	m.cond = sync.NewCond(&m.mu)
	for i, def := range prog.Steps {
		step, err := buildStep(def, session)
		if err != nil {
			return nil, fmt.Errorf("build mission step %d: %w", i, err)
		}
		m.steps = append(m.steps, step)
	}

	m.machine = fsm.NewFSM(
		StateStarting,
		fsm.Events{
			{Name: eventStart, Src: []string{StateStarting}, Dst: StateExecuting},
			{Name: eventComplete, Src: []string{StateExecuting}, Dst: StateCompleted},
			{Name: eventAbort, Src: []string{StateExecuting}, Dst: StateAborted},
			{Name: eventCancel, Src: []string{StateStarting, StateExecuting}, Dst: StateCanceled},
		},
		fsm.Callbacks{},
	)
	return m, nil
}

// State returns the mission's lifecycle state.
func (m *Mission) State() string {
	return m.machine.Current()
}

// Status returns OK or Error.
func (m *Mission) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Execute runs the steps strictly in order, reporting progress before
// each step and once more after the loop exits, whatever the outcome.
func (m *Mission) Execute() {
	if err := m.machine.Event(context.Background(), eventStart); err != nil {
		// Canceled before it started. The terminal state still gets its
		// final report so subscribers see the mission settle.
		m.logger.Warn("mission cannot start", slog.Any("error", err))
		m.mu.Lock()
		m.endTs = m.nowMs()
		m.mu.Unlock()
		m.report()
		return
	}

	for i := 0; i < len(m.steps); i++ {
		if m.State() != StateExecuting {
			break
		}
		m.mu.Lock()
		m.currentStepIdx = i
		m.currentStep = m.steps[i]
		step := m.currentStep
		m.mu.Unlock()

		m.report()
		m.waitWhilePaused()
		if m.State() != StateExecuting {
			break
		}

		err := step.Execute(m)
		if m.State() != StateExecuting {
			// Canceled mid-step; the cancel already settled the state.
			break
		}
		if err != nil || !step.Success() {
			if err != nil {
				m.logger.Error("mission step failed", "step", step.Label(), slog.Any("error", err))
			} else {
				m.logger.Error("mission step did not succeed", "step", step.Label())
			}
			m.mu.Lock()
			m.status = StatusError
			m.mu.Unlock()
			_ = m.machine.Event(context.Background(), eventAbort)
			break
		}
	}

	if m.State() == StateExecuting {
		_ = m.machine.Event(context.Background(), eventComplete)
		m.mu.Lock()
		m.currentStepIdx = len(m.steps)
		m.currentStep = nil
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.endTs = m.nowMs()
	m.mu.Unlock()
	m.report()
}

// Cancel moves the mission to Canceled from any non-terminal state,
// cancels the in-flight step and forces resumption so a paused mission
// can unwind. Status stays OK.
func (m *Mission) Cancel() {
	if err := m.machine.Event(context.Background(), eventCancel); err != nil {
		// Already terminal.
		return
	}
	m.mu.Lock()
	step := m.currentStep
	m.mu.Unlock()
	if step != nil {
		step.Cancel()
	}
	m.Resume()
}

// Pause pauses the mission: the current step is told to pause and
// execution blocks before the next step until resumed.
func (m *Mission) Pause() {
	m.mu.Lock()
	m.paused = true
	step := m.currentStep
	m.mu.Unlock()
	if step != nil {
		step.Pause()
	}
}

// Resume unblocks a paused mission and resumes the current step.
func (m *Mission) Resume() {
	m.mu.Lock()
	m.paused = false
	step := m.currentStep
	m.cond.Broadcast()
	m.mu.Unlock()
	if step != nil {
		step.Resume()
	}
}

// HandleEvent forwards a named event to the current step, if it waits
// for events.
func (m *Mission) HandleEvent(name string) {
	m.mu.Lock()
	step := m.currentStep
	m.mu.Unlock()
	if handler, ok := step.(eventHandler); ok {
		handler.HandleEvent(name)
	}
}

// SetData merges values into the mission's data bag.
func (m *Mission) SetData(values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
}

func (m *Mission) waitWhilePaused() {
	m.mu.Lock()
	for m.paused && m.machine.Current() == StateExecuting {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

func (m *Mission) buildReport() map[string]any {
	state := m.machine.Current()

	m.mu.Lock()
	defer m.mu.Unlock()

	data := make(map[string]any, len(m.data))
	for k, v := range m.data {
		data[k] = v
	}
	report := map[string]any{
		"missionId":  m.ID,
		"inProgress": state == StateExecuting,
		"state":      state,
		"label":      m.Label,
		"startTs":    m.startTs,
		"data":       data,
		"status":     m.status,
	}
	if state == StateExecuting {
		report["currentTaskId"] = strconv.Itoa(m.currentStepIdx)
	}
	tasks := make([]map[string]any, 0, len(m.steps))
	for i, s := range m.steps {
		tasks = append(tasks, map[string]any{
			"taskId": strconv.Itoa(i),
			"label":  s.Label(),
		})
	}
	report["tasks"] = tasks
	if m.endTs != 0 {
		report["endTs"] = m.endTs
	}
	switch {
	case len(m.steps) > 0:
		idx := m.currentStepIdx
		if idx < 0 {
			idx = 0
		}
		report["completedPercent"] = float64(idx) / float64(len(m.steps))
	case state == StateCompleted:
		report["completedPercent"] = 1.0
	default:
		report["completedPercent"] = 0.0
	}
	return report
}

// report publishes the mission tracking snapshot as an event so
// progress is never throttled away.
func (m *Mission) report() {
	if err := m.session.PublishKeyValues(map[string]any{"mission_tracking": m.buildReport()}, true); err != nil {
		m.logger.Warn("mission report publish failed", slog.Any("error", err))
	}
}
