package accel

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Sample represents a single 3-axis acceleration reading in m/s².
type Sample struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Accuracy mirrors the status tiers sensors report alongside their data.
type Accuracy int

const (
	AccuracyUnreliable Accuracy = iota
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyUnreliable:
		return "unreliable"
	case AccuracyLow:
		return "low"
	case AccuracyMedium:
		return "medium"
	case AccuracyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Listener receives samples from a source. A nil sample is a null event and
// must be ignored by implementations.
type Listener interface {
	OnSample(s *Sample)
	OnAccuracyChanged(a Accuracy)
}

// ListenerFunc adapts a plain function to Listener. Accuracy changes are
// dropped.
type ListenerFunc func(s *Sample)

func (f ListenerFunc) OnSample(s *Sample) {
	if s == nil {
		return
	}
	f(s)
}

func (f ListenerFunc) OnAccuracyChanged(Accuracy) {}

// countsPerG is the MPU9250 accelerometer sensitivity per full-scale
// selection: 0=±2g, 1=±4g, 2=±8g, 3=±16g.
var countsPerG = [4]float64{16384, 8192, 4096, 2048}

// FromRaw converts raw MPU9250 accelerometer counts to m/s² for the given
// full-scale selection. Out-of-range selections are treated as ±2g.
func FromRaw(ax, ay, az int16, rangeSel byte) Sample {
	div := countsPerG[0]
	if int(rangeSel) < len(countsPerG) {
		div = countsPerG[rangeSel]
	}
	scale := StandardGravity / div
	return Sample{
		X: float32(float64(ax) * scale),
		Y: float32(float64(ay) * scale),
		Z: float32(float64(az) * scale),
	}
}
