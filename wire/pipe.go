package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// SetPose is an externally injected pose received on the set_pose
// subtopic, payload format "1|ts|x|y|theta".
type SetPose struct {
	Ts    int64
	X     float64
	Y     float64
	Theta float64
}

// DecodeSetPose parses a set_pose payload.
func DecodeSetPose(payload []byte) (SetPose, error) {
	parts := strings.Split(string(payload), "|")
	if len(parts) != 5 {
		return SetPose{}, fmt.Errorf("set_pose payload must have 5 fields, got %d", len(parts))
	}
	if parts[0] != "1" {
		return SetPose{}, fmt.Errorf("unsupported set_pose version %q", parts[0])
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SetPose{}, fmt.Errorf("bad set_pose timestamp: %w", err)
	}
	var coords [3]float64
	for i, p := range parts[2:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return SetPose{}, fmt.Errorf("bad set_pose coordinate %q: %w", p, err)
		}
		coords[i] = v
	}
	return SetPose{Ts: ts, X: coords[0], Y: coords[1], Theta: coords[2]}, nil
}

// EncodePoseData formats an outbound pose update.
func EncodePoseData(ts int64, x, y, yaw float64, frameID string) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s",
		ts,
		strconv.FormatFloat(x, 'f', -1, 64),
		strconv.FormatFloat(y, 'f', -1, 64),
		strconv.FormatFloat(yaw, 'f', -1, 64),
		frameID))
}

// EncodeStateOnline formats the retained online robot state payload.
func EncodeStateOnline(apiKey, agentVersion, robotName string) []byte {
	return []byte(fmt.Sprintf("1|%s|%s|%s", apiKey, agentVersion, robotName))
}

// EncodeStateOffline formats the retained offline robot state payload,
// also used as the connection's last will.
func EncodeStateOffline(apiKey string) []byte {
	return []byte(fmt.Sprintf("0|%s", apiKey))
}
