package wire

// Echo acknowledges an inbound message back to the cloud side. The
// string payload is a best-effort decode of the original bytes.
type Echo struct {
	Topic         string `cbor:"topic"`
	TimeStamp     int64  `cbor:"timeStamp"`
	StringPayload string `cbor:"stringPayload"`
}

// OdometryData carries the distance accumulated between TsStart and Ts.
type OdometryData struct {
	TsStart         int64   `cbor:"tsStart"`
	Ts              int64   `cbor:"ts"`
	LinearDistance  float64 `cbor:"linearDistance"`
	AngularDistance float64 `cbor:"angularDistance"`
}

// KeyValue is a single custom data pair. The value is JSON-encoded so
// arbitrary structures survive the envelope unchanged.
type KeyValue struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

// KeyValues is the custom data telemetry message.
type KeyValues struct {
	Ts    int64      `cbor:"ts"`
	Pairs []KeyValue `cbor:"pairs"`
}

// LaserScan carries one laser scan with its ranges encoded as a
// FloatingPointList (see EncodeFloatingPointList).
type LaserScan struct {
	Ts         int64     `cbor:"ts"`
	FrameID    string    `cbor:"frameId"`
	AngleStart float64   `cbor:"angleStart"`
	AngleEnd   float64   `cbor:"angleEnd"`
	Runs       []int     `cbor:"runs"`
	Values     []float64 `cbor:"values"`
}

// PathPoint is one vertex of a published path.
type PathPoint struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
}

// PathData carries a (possibly simplified) navigation path.
type PathData struct {
	Ts     int64       `cbor:"ts"`
	PathID string      `cbor:"pathId"`
	Points []PathPoint `cbor:"points"`
}

// MapData describes a map and optionally carries its image bytes. Data
// is omitted when the cloud side is known to hold an identical copy
// (matching DataHash).
type MapData struct {
	Ts         int64   `cbor:"ts"`
	Label      string  `cbor:"label"`
	FrameID    string  `cbor:"frameId"`
	X          float64 `cbor:"x"`
	Y          float64 `cbor:"y"`
	Resolution float64 `cbor:"resolution"`
	DataHash   uint32  `cbor:"dataHash"`
	Data       []byte  `cbor:"data,omitempty"`
}

// ScriptCommand is the inbound request to run a custom script.
type ScriptCommand struct {
	FileName    string   `cbor:"fileName"`
	ArgOptions  []string `cbor:"argOptions"`
	ExecutionID string   `cbor:"executionId"`
}

// ScriptStatus reports the outcome of a dispatched command, correlated
// by execution id.
type ScriptStatus struct {
	ExecutionID string `cbor:"executionId"`
	ReturnCode  int    `cbor:"returnCode"`
	Details     string `cbor:"details,omitempty"`
	Stdout      string `cbor:"stdout,omitempty"`
	Stderr      string `cbor:"stderr,omitempty"`
}
