package robot

import (
	"sync"

	"github.com/inorbit-ai/edge-sdk-go/types"
)

// Deltas older than this are considered stale and discarded: the robot
// was out of sight too long for the jump to be trusted as travel.
const accumulatorIntervalLimitMs = 30_000

// distanceAccumulator tracks linear and angular distance traveled
// between consecutive published poses. It is mutated from telemetry
// callers and the transport callback goroutine, so every method locks.
type distanceAccumulator struct {
	mu             sync.Mutex
	nowMs          func() int64
	linear         float64
	angular        float64
	lastPose       *types.Pose
	lastPoseTs     int64
	startTs        int64
	discardNext    bool
	linearEnabled  bool
	angularEnabled bool
}

func newDistanceAccumulator(nowMs func() int64) *distanceAccumulator {
	return &distanceAccumulator{
		nowMs:          nowMs,
		startTs:        nowMs(),
		linearEnabled:  true,
		angularEnabled: true,
	}
}

// Accumulate folds the delta between the previous pose and pose into
// the accumulators. The delta is dropped when discardDelta is set, when
// a discard was requested via DiscardNextDelta, or when more than the
// interval limit elapsed since the previous pose. The new pose always
// becomes the reference for the next call.
func (a *distanceAccumulator) Accumulate(pose types.Pose, tsMs int64, discardDelta bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastPose != nil {
		discard := discardDelta || a.discardNext || tsMs-a.lastPoseTs > accumulatorIntervalLimitMs
		if !discard {
			linear, angular := types.PoseDelta(*a.lastPose, pose)
			a.linear += linear
			a.angular += angular
		}
	}
	a.discardNext = false
	p := pose
	a.lastPose = &p
	a.lastPoseTs = tsMs
}

// DiscardNextDelta makes the next Accumulate call treat its pose as a
// fresh reference with no delta contribution. Used when an external
// pose injection or an offline period makes the next jump meaningless.
func (a *distanceAccumulator) DiscardNextDelta() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discardNext = true
}

// ValuesAndReset returns the accumulated distances and the start of the
// accumulation interval, then zeroes the accumulators and starts a new
// interval at tsMs (now when zero). Disabled dimensions report 0.
func (a *distanceAccumulator) ValuesAndReset(tsMs int64) (linear, angular float64, startTs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tsMs == 0 {
		tsMs = a.nowMs()
	}
	if a.linearEnabled {
		linear = a.linear
	}
	if a.angularEnabled {
		angular = a.angular
	}
	startTs = a.startTs

	a.linear = 0
	a.angular = 0
	a.startTs = tsMs
	return linear, angular, startTs
}

// SetEnabled toggles the linear and angular dimensions independently.
func (a *distanceAccumulator) SetEnabled(linear, angular bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linearEnabled = linear
	a.angularEnabled = angular
}
