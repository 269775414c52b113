package robot

import (
	"fmt"
	"sync"
)

// Throttled publish method names.
const (
	methodPublishPose      = "publish_pose"
	methodPublishOdometry  = "publish_odometry"
	methodPublishKeyValues = "publish_key_values"
	methodPublishLasers    = "publish_lasers"
	methodPublishPath      = "publish_path"
	methodPublishMap       = "publish_map"
)

type methodThrottle struct {
	minIntervalMs int64
	lastTs        int64
	// perKey holds lazily created last-publish timestamps for keyed
	// methods. Entries are never evicted.
	perKey map[string]int64
	keyed  bool
}

// publishThrottle gates how often each publish method may emit. Keyed
// methods (key-value telemetry) track one window per key.
type publishThrottle struct {
	mu      sync.Mutex
	nowMs   func() int64
	methods map[string]*methodThrottle
}

func newPublishThrottle(nowMs func() int64) *publishThrottle {
	return &publishThrottle{
		nowMs: nowMs,
		methods: map[string]*methodThrottle{
			methodPublishPose:      {minIntervalMs: 1000},
			methodPublishOdometry:  {minIntervalMs: 1000},
			methodPublishKeyValues: {minIntervalMs: 5000, keyed: true},
			methodPublishLasers:    {minIntervalMs: 500},
			methodPublishPath:      {minIntervalMs: 2000},
			methodPublishMap:       {minIntervalMs: 5000},
		},
	}
}

// ShouldPublish reports whether the method (and key, for keyed methods)
// is outside its throttle window, updating the window start when it is.
// Requesting an unconfigured method is a programming error.
func (t *publishThrottle) ShouldPublish(method, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.methods[method]
	if !ok {
		panic(fmt.Sprintf("throttle state requested for unknown method %q", method))
	}
	now := t.nowMs()
	if m.keyed && key != "" {
		if m.perKey == nil {
			m.perKey = make(map[string]int64)
		}
		if now-m.perKey[key] < m.minIntervalMs {
			return false
		}
		m.perKey[key] = now
		return true
	}
	if now-m.lastTs < m.minIntervalMs {
		return false
	}
	m.lastTs = now
	return true
}

// setMinInterval adjusts a method's throttle window.
func (t *publishThrottle) setMinInterval(method string, intervalMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.methods[method]
	if !ok {
		panic(fmt.Sprintf("throttle state requested for unknown method %q", method))
	}
	m.minIntervalMs = intervalMs
}

// reset clears a method's window so the next call publishes.
func (t *publishThrottle) reset(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.methods[method]
	if !ok {
		panic(fmt.Sprintf("throttle state requested for unknown method %q", method))
	}
	m.lastTs = 0
	m.perKey = nil
}
