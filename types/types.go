// Package types holds the small value types shared between the robot
// session and the mission engine.
package types

import "math"

// Pose is a robot pose in a named reference frame. Theta is the heading
// in radians.
type Pose struct {
	FrameID string
	X       float64
	Y       float64
	Theta   float64
}

// SpatialTolerance describes how close a robot must be to a waypoint to
// consider it reached.
type SpatialTolerance struct {
	PositionMeters float64
	AngularRadians float64
}

// PoseDelta returns the planar Euclidean distance and the minimal
// angular difference between two poses. The angular component is
// normalized into [0, π]; the frame ids play no part in the
// calculation.
func PoseDelta(a, b Pose) (linear, angular float64) {
	linear = math.Hypot(b.X-a.X, b.Y-a.Y)
	angular = NormalizeAngle(b.Theta - a.Theta)
	return linear, angular
}

// NormalizeAngle maps an angle difference in radians to its minimal
// absolute representation in [0, π].
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(math.Abs(angle), 2*math.Pi)
	if angle > math.Pi {
		angle = 2*math.Pi - angle
	}
	return angle
}
