package robot

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inorbit-ai/edge-sdk-go/transport"
	"github.com/inorbit-ai/edge-sdk-go/types"
	"github.com/inorbit-ai/edge-sdk-go/wire"
)

type publishedMessage struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload []byte
}

// fakeTransport records every call and reports connected immediately,
// firing OnConnect synchronously from Connect.
type fakeTransport struct {
	mu            sync.Mutex
	opts          transport.Options
	handlers      transport.Handlers
	connected     bool
	published     []publishedMessage
	subscriptions []string
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.handlers.OnConnect != nil {
		f.handlers.OnConnect()
	}
	return nil
}

func (f *fakeTransport) Disconnect(quiesceMs uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := make([]byte, len(payload))
	copy(p, payload)
	f.published = append(f.published, publishedMessage{Topic: topic, QoS: qos, Retain: retain, Payload: p})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, topic)
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error { return nil }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) publishedTo(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, m := range f.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) subscribedTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscriptions...)
}

func newConfigServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["appKey"])
		assert.NotEmpty(t, req["robotId"])
		json.NewEncoder(w).Encode(map[string]any{
			"hostname":    "broker.test.inorbit.ai",
			"port":        1883,
			"protocol":    "mqtt",
			"username":    "robot-user",
			"password":    "robot-pass",
			"robotApiKey": "robot-key",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testClock struct{ ms atomic.Int64 }

func newTestClock() *testClock {
	c := &testClock{}
	c.ms.Store(1_000_000)
	return c
}

func (c *testClock) Now() int64          { return c.ms.Load() }
func (c *testClock) Advance(delta int64) { c.ms.Add(delta) }

func newTestSession(t *testing.T) (*RobotSession, *fakeTransport, *testClock) {
	t.Helper()
	srv := newConfigServer(t)
	ft := &fakeTransport{}
	clock := newTestClock()
	s, err := NewRobotSession(SessionOptions{
		RobotID:   "robot-1",
		RobotName: "robot-one",
		APIKey:    "app-key",
		Endpoint:  srv.URL,
		TransportFactory: func(opts transport.Options, handlers transport.Handlers) transport.Transport {
			ft.opts = opts
			ft.handlers = handlers
			return ft
		},
		NowMs: clock.Now,
	}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	return s, ft, clock
}

func TestNewRobotSessionValidation(t *testing.T) {
	logger := slog.Default()
	cases := []struct {
		name string
		opts SessionOptions
	}{
		{"empty id", SessionOptions{RobotID: "", RobotName: "r", APIKey: "k"}},
		{"empty name", SessionOptions{RobotID: "r1", RobotName: "", APIKey: "k"}},
		{"empty key", SessionOptions{RobotID: "r1", RobotName: "r", APIKey: ""}},
		{"whitespace in id", SessionOptions{RobotID: "r 1", RobotName: "r", APIKey: "k"}},
		{"whitespace in name", SessionOptions{RobotID: "r1", RobotName: "r\tone", APIKey: "k"}},
		{"leading slash", SessionOptions{RobotID: "/r1", RobotName: "r", APIKey: "k"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRobotSession(tc.opts, logger)
			assert.Error(t, err)
		})
	}
}

func TestConnectLifecycle(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	assert.Equal(t, Connected, s.State())

	assert.True(t, strings.HasPrefix(ft.opts.ClientID, "robot-1-"))
	assert.Equal(t, "robot-user", ft.opts.Username)
	assert.Equal(t, "robot-pass", ft.opts.Password)
	assert.Equal(t, "broker.test.inorbit.ai", ft.opts.Hostname)
	assert.Equal(t, 1883, ft.opts.Port)

	// Last will marks the robot offline with the robot-scoped key.
	assert.Equal(t, "r/robot-1/state", ft.opts.WillTopic)
	assert.Equal(t, "0|robot-key", string(ft.opts.WillPayload))
	assert.Equal(t, byte(1), ft.opts.WillQoS)
	assert.True(t, ft.opts.WillRetain)

	assert.ElementsMatch(t, []string{
		"r/robot-1/ros/loc/set_pose",
		"r/robot-1/custom_command/script/command",
		"r/robot-1/in_cmd",
	}, ft.subscribedTopics())

	republish := ft.publishedTo("r/robot-1/state_republish")
	require.Len(t, republish, 1)
	assert.Equal(t, "1", string(republish[0].Payload))

	// Online state is published off the connect callback.
	assert.Eventually(t, func() bool {
		return len(ft.publishedTo("r/robot-1/state")) == 1
	}, time.Second, 10*time.Millisecond)
	state := ft.publishedTo("r/robot-1/state")[0]
	assert.Equal(t, "1|robot-key|"+AgentVersion+"|robot-one", string(state.Payload))
	assert.Equal(t, byte(1), state.QoS)
	assert.True(t, state.Retain)
}

func TestConnectConfigFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	s, err := NewRobotSession(SessionOptions{
		RobotID:   "robot-1",
		RobotName: "robot-one",
		APIKey:    "app-key",
		Endpoint:  srv.URL,
		TransportFactory: func(opts transport.Options, handlers transport.Handlers) transport.Transport {
			t.Fatal("transport must not be built when the config fetch fails")
			return nil
		},
	}, slog.Default())
	require.NoError(t, err)

	assert.Error(t, s.Connect())
	assert.Equal(t, Disconnected, s.State())
}

type stopRecorder struct{ stopped atomic.Bool }

func (r *stopRecorder) Stop() { r.stopped.Store(true) }

func TestDisconnect(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	require.Eventually(t, func() bool {
		return len(ft.publishedTo("r/robot-1/state")) == 1
	}, time.Second, 10*time.Millisecond)

	producer := &stopRecorder{}
	s.RegisterTelemetryProducer(producer)

	require.NoError(t, s.Disconnect())
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, producer.stopped.Load())
	assert.False(t, ft.IsConnected())

	// The offline state goes out before the transport closes.
	states := ft.publishedTo("r/robot-1/state")
	last := states[len(states)-1]
	assert.Equal(t, "0|robot-key", string(last.Payload))
	assert.True(t, last.Retain)
}

type commandRecord struct {
	Name        string
	Args        []any
	ExecutionID string
	Result      ResultHandle
}

func recordCommands(s *RobotSession) *[]commandRecord {
	var mu sync.Mutex
	records := &[]commandRecord{}
	s.RegisterCommandCallback(func(name string, args []any, opts *CommandOptions) {
		mu.Lock()
		defer mu.Unlock()
		*records = append(*records, commandRecord{
			Name:        name,
			Args:        args,
			ExecutionID: opts.ExecutionID,
			Result:      opts.Result,
		})
	})
	return records
}

func TestSetPoseMessageDispatchesInitialPose(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	ft.handlers.OnMessage("r/robot-1/ros/loc/set_pose", []byte("1|123456|1.5|-2|0.5"))

	require.Len(t, *records, 1)
	rec := (*records)[0]
	assert.Equal(t, CommandInitialPose, rec.Name)
	require.Len(t, rec.Args, 1)
	assert.Equal(t, map[string]float64{"x": 1.5, "y": -2, "theta": 0.5}, rec.Args[0])
	assert.Empty(t, rec.ExecutionID)

	// Every inbound message is echoed.
	echoes := ft.publishedTo("r/robot-1/echo")
	require.Len(t, echoes, 1)
	var echo wire.Echo
	require.NoError(t, wire.Unmarshal(echoes[0].Payload, &echo))
	assert.Equal(t, "r/robot-1/ros/loc/set_pose", echo.Topic)
	assert.Equal(t, "1|123456|1.5|-2|0.5", echo.StringPayload)
}

func TestMalformedSetPoseDropped(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	ft.handlers.OnMessage("r/robot-1/ros/loc/set_pose", []byte("2|only|three"))

	assert.Empty(t, *records)
	assert.Len(t, ft.publishedTo("r/robot-1/echo"), 1)
}

func TestScriptCommandDispatchAndResult(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	payload, err := wire.Marshal(wire.ScriptCommand{
		FileName:    "dock.sh",
		ArgOptions:  []string{"--bay", "3"},
		ExecutionID: "exec-42",
	})
	require.NoError(t, err)
	ft.handlers.OnMessage("r/robot-1/custom_command/script/command", payload)

	require.Len(t, *records, 1)
	rec := (*records)[0]
	assert.Equal(t, CommandCustomCommand, rec.Name)
	assert.Equal(t, []any{"dock.sh", []string{"--bay", "3"}}, rec.Args)
	assert.Equal(t, "exec-42", rec.ExecutionID)

	rec.Result.Report(0, "done", "docked", "")
	results := ft.publishedTo("r/robot-1/custom_command/script/status")
	require.Len(t, results, 1)
	assert.Equal(t, byte(1), results[0].QoS)
	var status wire.ScriptStatus
	require.NoError(t, wire.Unmarshal(results[0].Payload, &status))
	assert.Equal(t, "exec-42", status.ExecutionID)
	assert.Equal(t, 0, status.ReturnCode)
	assert.Equal(t, "docked", status.Stdout)
}

func TestResultReportWithoutExecutionIDIsNoOp(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	s.DispatchCommand(CommandMessage, []any{"hello"}, "")
	require.Len(t, *records, 1)
	(*records)[0].Result.Report(1, "ignored", "", "")

	assert.Empty(t, ft.publishedTo("r/robot-1/custom_command/script/status"))
}

func TestInCmdDispatchesMessage(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	ft.handlers.OnMessage("r/robot-1/in_cmd", []byte("inorbit_pause"))

	require.Len(t, *records, 1)
	assert.Equal(t, CommandMessage, (*records)[0].Name)
	assert.Equal(t, []any{"inorbit_pause"}, (*records)[0].Args)
}

func TestUnknownSubtopicIgnoredButEchoed(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())
	records := recordCommands(s)

	ft.handlers.OnMessage("r/robot-1/some/other/topic", []byte("payload"))

	assert.Empty(t, *records)
	assert.Len(t, ft.publishedTo("r/robot-1/echo"), 1)
}

func TestSetPoseDiscardsNextOdometryDelta(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishPose(0, 0, 0, "map", clock.Now()))
	ft.handlers.OnMessage("r/robot-1/ros/loc/set_pose", []byte("1|123456|100|0|0"))

	// The jump to the injected pose is not travel.
	clock.Advance(2000)
	require.NoError(t, s.PublishPose(100, 0, 0, "map", clock.Now()))
	clock.Advance(2000)
	require.NoError(t, s.PublishPose(101, 0, 0, "map", clock.Now()))

	linear, _, _ := s.accumulator.ValuesAndReset(0)
	assert.InDelta(t, 1.0, linear, 1e-9)
}

func TestPublishPoseThrottledButTracked(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishPose(1, 2, 0.5, "map", clock.Now()))
	require.NoError(t, s.PublishPose(3, 4, 0.5, "map", clock.Now()))

	// Only the first publish clears the throttle.
	poses := ft.publishedTo("r/robot-1/ros/loc/data2")
	require.Len(t, poses, 1)
	assert.Equal(t, "1000000|1|2|0.5|map", string(poses[0].Payload))

	// The throttled pose still updates the waypoint reference.
	tol := types.SpatialTolerance{PositionMeters: 0.1, AngularRadians: 0.1}
	assert.True(t, s.ReachedWaypoint(types.Pose{X: 3, Y: 4, Theta: 0.5}, tol))
	assert.False(t, s.ReachedWaypoint(types.Pose{X: 1, Y: 2, Theta: 0.5}, tol))
}

func TestReachedWaypointFalseBeforeAnyPose(t *testing.T) {
	s, _, _ := newTestSession(t)
	tol := types.SpatialTolerance{PositionMeters: 100, AngularRadians: 100}
	assert.False(t, s.ReachedWaypoint(types.Pose{}, tol))
}

func TestPublishOdometryDrainsAccumulator(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishPose(0, 0, 0, "map", clock.Now()))
	clock.Advance(2000)
	require.NoError(t, s.PublishPose(3, 4, 0, "map", clock.Now()))

	require.NoError(t, s.PublishOdometry(clock.Now(), nil))
	msgs := ft.publishedTo("r/robot-1/ros/odometry/data")
	require.Len(t, msgs, 1)
	var odom wire.OdometryData
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &odom))
	assert.InDelta(t, 5.0, odom.LinearDistance, 1e-9)
	assert.Equal(t, int64(1_000_000), odom.TsStart)
	assert.Equal(t, clock.Now(), odom.Ts)

	// Throttled call publishes nothing and keeps the accumulator intact.
	clock.Advance(100)
	require.NoError(t, s.PublishPose(4, 4, 0, "map", clock.Now()))
	require.NoError(t, s.PublishOdometry(clock.Now(), nil))
	assert.Len(t, ft.publishedTo("r/robot-1/ros/odometry/data"), 1)

	clock.Advance(1000)
	require.NoError(t, s.PublishOdometry(clock.Now(), nil))
	msgs = ft.publishedTo("r/robot-1/ros/odometry/data")
	require.Len(t, msgs, 2)
	require.NoError(t, wire.Unmarshal(msgs[1].Payload, &odom))
	assert.InDelta(t, 1.0, odom.LinearDistance, 1e-9)
}

func TestPublishOdometryOverride(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishOdometry(clock.Now(), &OdometryOverride{
		LinearDistance:  12.5,
		AngularDistance: 1.25,
	}))
	msgs := ft.publishedTo("r/robot-1/ros/odometry/data")
	require.Len(t, msgs, 1)
	var odom wire.OdometryData
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &odom))
	assert.Equal(t, 12.5, odom.LinearDistance)
	assert.Equal(t, 1.25, odom.AngularDistance)
}

func TestPublishKeyValuesThrottledPerKey(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishKeyValues(map[string]any{"battery": 90, "mode": "auto"}, false))
	// Inside the window: both keys are suppressed and nothing goes out.
	require.NoError(t, s.PublishKeyValues(map[string]any{"battery": 89, "mode": "auto"}, false))

	msgs := ft.publishedTo("r/robot-1/custom")
	require.Len(t, msgs, 1)
	var kv wire.KeyValues
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &kv))
	require.Len(t, kv.Pairs, 2)
	assert.Equal(t, "battery", kv.Pairs[0].Key)
	assert.Equal(t, "90", kv.Pairs[0].Value)
	assert.Equal(t, "mode", kv.Pairs[1].Key)
	assert.Equal(t, `"auto"`, kv.Pairs[1].Value)
}

func TestPublishKeyValuesEventBypassesThrottle(t *testing.T) {
	s, ft, _ := newTestSession(t)
	require.NoError(t, s.Connect())

	require.NoError(t, s.PublishKeyValues(map[string]any{"alert": "low_battery"}, true))
	require.NoError(t, s.PublishKeyValues(map[string]any{"alert": "charging"}, true))

	assert.Len(t, ft.publishedTo("r/robot-1/custom"), 2)
}

func TestPublishMapAttachesDataOnlyOnChange(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	image := []byte{1, 2, 3, 4}
	require.NoError(t, s.PublishMap(image, "floor1", "map", 0, 0, 0.05, clock.Now(), false))
	clock.Advance(5000)
	require.NoError(t, s.PublishMap(image, "floor1", "map", 0, 0, 0.05, clock.Now(), false))
	clock.Advance(5000)
	require.NoError(t, s.PublishMap(image, "floor1", "map", 0, 0, 0.05, clock.Now(), true))

	msgs := ft.publishedTo("r/robot-1/map")
	require.Len(t, msgs, 3)

	var first, second, third wire.MapData
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &first))
	require.NoError(t, wire.Unmarshal(msgs[1].Payload, &second))
	require.NoError(t, wire.Unmarshal(msgs[2].Payload, &third))
	assert.Equal(t, image, first.Data)
	assert.Empty(t, second.Data)
	assert.Equal(t, image, third.Data)
	assert.Equal(t, first.DataHash, second.DataHash)
}

func TestPublishLasers(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	ranges := []float64{1.5, 2.5, math.Inf(1), math.Inf(1), 3.0}
	require.NoError(t, s.PublishLasers(ranges, 0, math.Pi, "laser", clock.Now()))

	msgs := ft.publishedTo("r/robot-1/ros/laser/data")
	require.Len(t, msgs, 1)
	var scan wire.LaserScan
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &scan))
	assert.Equal(t, "laser", scan.FrameID)
	decoded, err := wire.DecodeFloatingPointList(scan.Runs, scan.Values)
	require.NoError(t, err)
	assert.Equal(t, ranges, decoded)
}

func TestPublishPathSimplifiesLongPaths(t *testing.T) {
	s, ft, clock := newTestSession(t)
	require.NoError(t, s.Connect())

	points := make([]wire.PathPoint, 5000)
	for i := range points {
		points[i] = wire.PathPoint{X: float64(i), Y: math.Sin(float64(i) / 10)}
	}
	require.NoError(t, s.PublishPath(points, "path-1", clock.Now()))

	msgs := ft.publishedTo("r/robot-1/ros/loc/path")
	require.Len(t, msgs, 1)
	var path wire.PathData
	require.NoError(t, wire.Unmarshal(msgs[0].Payload, &path))
	assert.Equal(t, "path-1", path.PathID)
	assert.LessOrEqual(t, len(path.Points), maxPathPoints)
	assert.Equal(t, points[0], path.Points[0])
	assert.Equal(t, points[len(points)-1], path.Points[len(path.Points)-1])
}
