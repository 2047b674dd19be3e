package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
)

// fakeSource hands samples to whatever listener it was started with. Like a
// real sensor it keeps its listener reference after Stop, so Emit after Stop
// models a late callback that was already in flight.
type fakeSource struct {
	available bool
	startErr  error
	listener  accel.Listener
	running   bool
	starts    int
	stops     int
}

func (f *fakeSource) Available() bool { return f.available }

func (f *fakeSource) Start(l accel.Listener) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.listener = l
	f.running = true
	return nil
}

func (f *fakeSource) Stop() {
	f.stops++
	f.running = false
}

func (f *fakeSource) Emit(x, y, z float32) {
	if f.listener != nil {
		f.listener.OnSample(&accel.Sample{X: x, Y: y, Z: z})
	}
}

func TestGateSubscribesOnConstruction(t *testing.T) {
	src := &fakeSource{available: true}
	c := orientation.NewClassifier()
	g := New(src, c)

	assert.Equal(t, Active, g.State())
	assert.True(t, g.SensorAvailable())
	assert.Equal(t, 1, src.starts)
	assert.True(t, src.running)

	src.Emit(0, 0, 5)
	assert.Equal(t, orientation.Good, c.Verdict())
}

func TestGateSequence(t *testing.T) {
	src := &fakeSource{available: true}
	c := orientation.NewClassifier()
	New(src, c)

	src.Emit(0, 0, 5)
	assert.Equal(t, orientation.Good, c.Verdict())
	src.Emit(5, 0, 0)
	src.Emit(0, 5, 0)
	assert.Equal(t, orientation.Bad, c.Verdict())
}

func TestGatePauseFreezesVerdict(t *testing.T) {
	src := &fakeSource{available: true}
	c := orientation.NewClassifier()
	g := New(src, c)

	src.Emit(0, 0, 9.8)
	require.Equal(t, orientation.Good, c.Verdict())

	g.OnBackground()
	assert.Equal(t, Paused, g.State())
	assert.False(t, src.running)

	// late callbacks after pause do not touch the verdict
	src.Emit(9.8, 0, 0)
	src.Emit(0, 9.8, 0)
	assert.Equal(t, orientation.Good, c.Verdict())

	g.OnForeground()
	assert.Equal(t, Active, g.State())
	assert.True(t, src.running)

	src.Emit(9.8, 0, 0)
	assert.Equal(t, orientation.Bad, c.Verdict())
}

func TestGateTransitionsAreIdempotent(t *testing.T) {
	src := &fakeSource{available: true}
	g := New(src, orientation.NewClassifier())

	g.OnForeground()
	g.OnForeground()
	assert.Equal(t, 1, src.starts)

	g.OnBackground()
	g.OnBackground()
	assert.Equal(t, 1, src.stops)

	g.OnForeground()
	assert.Equal(t, 2, src.starts)
}

func TestGateWithoutSensor(t *testing.T) {
	src := &fakeSource{available: false}
	c := orientation.NewClassifier()
	g := New(src, c)

	assert.False(t, g.SensorAvailable())
	assert.Equal(t, Active, g.State())

	for i := 0; i < 5; i++ {
		g.OnBackground()
		g.OnForeground()
		assert.Equal(t, orientation.Bad, c.Verdict())
	}
	assert.Zero(t, src.starts)
	assert.Equal(t, orientation.Bad, c.Verdict())
}

func TestGateStartErrorIsAbsorbed(t *testing.T) {
	src := &fakeSource{available: true, startErr: errors.New("subscribe refused")}
	c := orientation.NewClassifier()
	g := New(src, c)

	g.OnBackground()
	g.OnForeground()
	assert.Equal(t, Active, g.State())
	assert.Equal(t, orientation.Bad, c.Verdict())
}

func TestGateDropsNullSamples(t *testing.T) {
	src := &fakeSource{available: true}
	c := orientation.NewClassifier()
	g := New(src, c)

	src.Emit(0, 0, 1)
	g.OnSample(nil)
	g.OnAccuracyChanged(accel.AccuracyLow)
	assert.Equal(t, orientation.Good, c.Verdict())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "paused", Paused.String())
}
