package robot

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/inorbit-ai/edge-sdk-go/wire"
)

// CommandCallback handles one dispatched command. Callbacks run on the
// dispatching goroutine in registration order.
type CommandCallback func(commandName string, args []any, options *CommandOptions)

// CommandOptions accompanies every dispatched command.
type CommandOptions struct {
	// ExecutionID correlates asynchronous results with the inbound
	// request; empty for commands with no correlation id.
	ExecutionID string
	// Result reports the command outcome back to the cloud side.
	Result ResultHandle
	// Progress is reserved for streaming command output.
	Progress func(output, errOutput string)
}

// ResultHandle reports a command result correlated by execution id.
// Reporting without an execution id is a no-op.
type ResultHandle struct {
	executionID string
	session     *RobotSession
}

// Report publishes a status message for the originating command.
func (h ResultHandle) Report(returnCode int, details, stdout, stderr string) {
	if h.executionID == "" || h.session == nil {
		return
	}
	payload, err := wire.Marshal(wire.ScriptStatus{
		ExecutionID: h.executionID,
		ReturnCode:  returnCode,
		Details:     details,
		Stdout:      stdout,
		Stderr:      stderr,
	})
	if err != nil {
		h.session.logger.Error("encode command result failed", slog.Any("error", err))
		return
	}
	if err := h.session.publish(subtopicScriptStatus, 1, false, payload); err != nil {
		h.session.logger.Error("command result publish failed", slog.Any("error", err))
	}
}

// RegisterCommandCallback adds a callback to the dispatch fan-out.
func (s *RobotSession) RegisterCommandCallback(cb CommandCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// DispatchCommand fans a command out to every registered callback in
// registration order. It is the seam used both by inbound wire
// messages and by the mission engine's sub-commands.
func (s *RobotSession) DispatchCommand(commandName string, args []any, executionID string) {
	opts := &CommandOptions{
		ExecutionID: executionID,
		Result:      ResultHandle{executionID: executionID, session: s},
		Progress: func(output, errOutput string) {
			s.logger.Debug("command progress", "command", commandName, "output", output, "error_output", errOutput)
		},
	}

	s.cbMu.RLock()
	callbacks := make([]CommandCallback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(commandName, args, opts)
	}
}

// onMessage routes an inbound wire message by subtopic. It runs on the
// transport's callback goroutine; unknown subtopics are ignored and
// every message is echoed back regardless of decode outcome.
func (s *RobotSession) onMessage(topic string, payload []byte) {
	s.publishEcho(topic, payload)

	subtopic := strings.TrimPrefix(topic, topicRoot(s.RobotID)+"/")
	switch subtopic {
	case subtopicSetPose:
		sp, err := wire.DecodeSetPose(payload)
		if err != nil {
			s.logger.Warn("dropping malformed set_pose", slog.Any("error", err))
			return
		}
		// The cloud injected a pose; the jump to it is not travel.
		s.accumulator.DiscardNextDelta()
		s.DispatchCommand(CommandInitialPose, []any{map[string]float64{
			"x": sp.X, "y": sp.Y, "theta": sp.Theta,
		}}, "")
	case subtopicScriptCommand:
		var cmd wire.ScriptCommand
		if err := wire.Unmarshal(payload, &cmd); err != nil {
			s.logger.Warn("dropping malformed script command", slog.Any("error", err))
			return
		}
		s.DispatchCommand(CommandCustomCommand, []any{cmd.FileName, cmd.ArgOptions}, cmd.ExecutionID)
	case subtopicInCmd:
		s.DispatchCommand(CommandMessage, []any{string(payload)}, "")
	default:
		s.logger.Debug("ignoring message on unhandled subtopic", "subtopic", subtopic)
	}
}

// publishEcho acknowledges an inbound message with its topic, a
// timestamp and a best-effort string decode of the payload.
func (s *RobotSession) publishEcho(topic string, payload []byte) {
	if !utf8.Valid(payload) {
		s.logger.Warn("echoing payload with invalid byte sequences", "topic", topic)
	}
	msg := wire.Echo{
		Topic:         topic,
		TimeStamp:     s.nowMs(),
		StringPayload: strings.ToValidUTF8(string(payload), ""),
	}
	encoded, err := wire.Marshal(msg)
	if err != nil {
		s.logger.Error("encode echo failed", slog.Any("error", err))
		return
	}
	if err := s.publish(subtopicEcho, 0, false, encoded); err != nil {
		s.logger.Warn("echo publish failed", slog.Any("error", err))
	}
}
