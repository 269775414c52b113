package robot

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sort"

	"github.com/inorbit-ai/edge-sdk-go/types"
	"github.com/inorbit-ai/edge-sdk-go/wire"
)

// maxPathPoints caps published path sizes; longer paths are simplified.
const maxPathPoints = 1000

func (s *RobotSession) encodeOnlineState() []byte {
	return wire.EncodeStateOnline(s.credential(), s.AgentVersion, s.RobotName)
}

func (s *RobotSession) encodeOfflineState() []byte {
	return wire.EncodeStateOffline(s.credential())
}

// PublishPose publishes the robot pose. The pose always feeds the
// waypoint check and the odometry accumulator, even when the publish
// itself is throttled away. A zero ts means now; an empty frame id
// defaults to "map".
func (s *RobotSession) PublishPose(x, y, yaw float64, frameID string, ts int64) error {
	if frameID == "" {
		frameID = "map"
	}
	if ts == 0 {
		ts = s.nowMs()
	}
	pose := types.Pose{FrameID: frameID, X: x, Y: y, Theta: yaw}

	s.poseMu.Lock()
	s.lastPose = &pose
	s.poseMu.Unlock()

	s.accumulator.Accumulate(pose, ts, false)

	if !s.throttle.ShouldPublish(methodPublishPose, "") {
		return nil
	}
	return s.publish(subtopicPose, 0, false, wire.EncodePoseData(ts, x, y, yaw, frameID))
}

// OdometryOverride supplies explicit distances for PublishOdometry
// instead of the accumulated ones.
type OdometryOverride struct {
	LinearDistance  float64
	AngularDistance float64
}

// PublishOdometry publishes distance traveled since the last odometry
// publish, draining the accumulator. The accumulator is only drained
// when the publish passes the throttle, so throttled calls lose
// nothing.
func (s *RobotSession) PublishOdometry(ts int64, override *OdometryOverride) error {
	if ts == 0 {
		ts = s.nowMs()
	}
	if !s.throttle.ShouldPublish(methodPublishOdometry, "") {
		return nil
	}
	linear, angular, startTs := s.accumulator.ValuesAndReset(ts)
	if override != nil {
		linear = override.LinearDistance
		angular = override.AngularDistance
	}
	payload, err := wire.Marshal(wire.OdometryData{
		TsStart:         startTs,
		Ts:              ts,
		LinearDistance:  linear,
		AngularDistance: angular,
	})
	if err != nil {
		return fmt.Errorf("encode odometry: %w", err)
	}
	return s.publish(subtopicOdometry, 0, false, payload)
}

// PublishKeyValues publishes custom key-value telemetry. Regular
// telemetry is throttled per key; event publishes (isEvent) bypass the
// throttle entirely. Values are JSON-encoded into the envelope.
func (s *RobotSession) PublishKeyValues(values map[string]any, isEvent bool) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]wire.KeyValue, 0, len(values))
	for _, k := range keys {
		if !isEvent && !s.throttle.ShouldPublish(methodPublishKeyValues, k) {
			continue
		}
		encoded, err := json.Marshal(values[k])
		if err != nil {
			s.logger.Warn("skipping unencodable key-value", "key", k, slog.Any("error", err))
			continue
		}
		pairs = append(pairs, wire.KeyValue{Key: k, Value: string(encoded)})
	}
	if len(pairs) == 0 {
		return nil
	}
	payload, err := wire.Marshal(wire.KeyValues{Ts: s.nowMs(), Pairs: pairs})
	if err != nil {
		return fmt.Errorf("encode key-values: %w", err)
	}
	return s.publish(subtopicKeyValues, 0, false, payload)
}

// PublishLasers publishes one laser scan. Ranges may contain +Inf for
// "no return"; they travel as a run-length encoded list.
func (s *RobotSession) PublishLasers(ranges []float64, angleStart, angleEnd float64, frameID string, ts int64) error {
	if ts == 0 {
		ts = s.nowMs()
	}
	if !s.throttle.ShouldPublish(methodPublishLasers, "") {
		return nil
	}
	runs, values, err := wire.EncodeFloatingPointList(ranges)
	if err != nil {
		return fmt.Errorf("encode laser ranges: %w", err)
	}
	payload, err := wire.Marshal(wire.LaserScan{
		Ts:         ts,
		FrameID:    frameID,
		AngleStart: angleStart,
		AngleEnd:   angleEnd,
		Runs:       runs,
		Values:     values,
	})
	if err != nil {
		return fmt.Errorf("encode laser scan: %w", err)
	}
	return s.publish(subtopicLasers, 0, false, payload)
}

// PublishPath publishes a navigation path, simplified to at most
// maxPathPoints vertices.
func (s *RobotSession) PublishPath(points []wire.PathPoint, pathID string, ts int64) error {
	if ts == 0 {
		ts = s.nowMs()
	}
	if !s.throttle.ShouldPublish(methodPublishPath, "") {
		return nil
	}
	payload, err := wire.Marshal(wire.PathData{
		Ts:     ts,
		PathID: pathID,
		Points: wire.SimplifyPath(points, maxPathPoints),
	})
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	return s.publish(subtopicPath, 0, false, payload)
}

// PublishMap publishes map metadata, attaching the image bytes only
// when their content hash differs from the last publish for that label
// (or force is set). The hash cache is shared with the transport
// callback goroutine and guarded by its own lock.
func (s *RobotSession) PublishMap(data []byte, label, frameID string, x, y, resolution float64, ts int64, force bool) error {
	if ts == 0 {
		ts = s.nowMs()
	}
	if !s.throttle.ShouldPublish(methodPublishMap, "") {
		return nil
	}
	hash := crc32.ChecksumIEEE(data)

	s.mapMu.Lock()
	changed := s.mapHashes[label] != hash
	s.mapHashes[label] = hash
	s.mapMu.Unlock()

	msg := wire.MapData{
		Ts:         ts,
		Label:      label,
		FrameID:    frameID,
		X:          x,
		Y:          y,
		Resolution: resolution,
		DataHash:   hash,
	}
	if changed || force {
		msg.Data = data
	}
	payload, err := wire.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode map: %w", err)
	}
	return s.publish(subtopicMap, 0, false, payload)
}

// ReachedWaypoint reports whether the last published pose is within
// tolerance of the waypoint. It is false before any pose has been
// published.
func (s *RobotSession) ReachedWaypoint(waypoint types.Pose, tolerance types.SpatialTolerance) bool {
	s.poseMu.Lock()
	last := s.lastPose
	s.poseMu.Unlock()
	if last == nil {
		return false
	}
	linear, angular := types.PoseDelta(*last, waypoint)
	return linear <= tolerance.PositionMeters && angular <= tolerance.AngularRadians
}
