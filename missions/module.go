// Package missions implements the mission execution engine hosted by a
// robot session: the command surface, the single-flight executor and
// the mission/step state machine.
package missions

import (
	"log/slog"
	"strings"
	"time"

	"github.com/inorbit-ai/edge-sdk-go/robot"
	"github.com/inorbit-ai/edge-sdk-go/types"
)

// Mission-control sub-commands arriving as "message" commands.
const (
	CommandPause         = "inorbit_pause"
	CommandResume        = "inorbit_resume"
	CommandRunMission    = "inorbit_run_mission"
	CommandCancelMission = "inorbit_cancel_mission"
	CommandEvent         = "inorbit_event"
)

// Session is the slice of the robot session the mission engine
// consumes: command registration and dispatch, progress publishing and
// waypoint queries.
type Session interface {
	RegisterCommandCallback(cb robot.CommandCallback)
	DispatchCommand(commandName string, args []any, executionID string)
	PublishKeyValues(values map[string]any, isEvent bool) error
	ReachedWaypoint(waypoint types.Pose, tolerance types.SpatialTolerance) bool
}

// Module is the interface between the robot session and the
// MissionExecutor: it parses mission-control commands from the
// session's command stream and drives the executor.
type Module struct {
	session  Session
	logger   *slog.Logger
	executor *Executor
	nowMs    func() int64
}

// NewModule attaches a mission engine to the session's command stream.
func NewModule(session Session, logger *slog.Logger) *Module {
	m := &Module{
		session:  session,
		logger:   logger.With("component", "missions"),
		executor: NewExecutor(logger),
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}
	session.RegisterCommandCallback(m.commandCallback)
	return m
}

// Executor exposes the module's executor, mainly so integrators and
// tests can wait for mission completion.
func (m *Module) Executor() *Executor {
	return m.executor
}

func (m *Module) commandCallback(commandName string, args []any, _ *robot.CommandOptions) {
	if commandName != robot.CommandMessage || len(args) == 0 {
		return
	}
	msg, ok := args[0].(string)
	if !ok {
		return
	}
	cmd, rest, _ := strings.Cut(strings.TrimLeft(msg, " \t\n"), " ")

	switch cmd {
	case CommandPause:
		m.executor.Pause()
	case CommandResume:
		m.executor.Resume()
	case CommandEvent:
		m.executor.HandleEvent(strings.TrimSpace(rest))
	case CommandRunMission:
		m.handleRunMission(rest)
	case CommandCancelMission:
		m.handleCancelMission(strings.TrimSpace(rest))
	}
}

func (m *Module) handleRunMission(rest string) {
	missionID, programJSON, ok := strings.Cut(rest, " ")
	if !ok || strings.TrimSpace(programJSON) == "" {
		m.logger.Error("run mission expects a mission id and a program", "args", rest)
		return
	}
	mission, err := NewMission(missionID, []byte(programJSON), m.session, m.logger, m.nowMs)
	if err != nil {
		// A bad program drops the request; no mission is created.
		m.logger.Error("error parsing mission program", "mission_id", missionID, slog.Any("error", err))
		return
	}
	m.executor.RunMission(mission)
}

func (m *Module) handleCancelMission(arg string) {
	if arg == "" || strings.ContainsAny(arg, " \t") {
		m.logger.Error("cancel mission expects exactly one mission id", "args", arg)
		return
	}
	m.executor.CancelMission(arg)
}
