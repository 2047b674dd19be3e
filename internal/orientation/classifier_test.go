package orientation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_monitor/internal/accel"
)

func TestClassifierStartsBad(t *testing.T) {
	assert.Equal(t, Bad, NewClassifier().Verdict())
}

func TestClassifierSequence(t *testing.T) {
	c := NewClassifier()

	c.OnSample(&accel.Sample{X: 0, Y: 0, Z: 5})
	assert.Equal(t, Good, c.Verdict())

	c.OnSample(&accel.Sample{X: 5, Y: 0, Z: 0})
	c.OnSample(&accel.Sample{X: 0, Y: 5, Z: 0})
	assert.Equal(t, Bad, c.Verdict())
}

func TestClassifierIgnoresNullSample(t *testing.T) {
	c := NewClassifier()
	c.OnSample(&accel.Sample{Z: 9.8})
	c.OnSample(nil)
	c.OnAccuracyChanged(accel.AccuracyUnreliable)
	assert.Equal(t, Good, c.Verdict())
}

func TestClassifierFollowsNoisyInput(t *testing.T) {
	c := NewClassifier()
	// borderline readings flip the verdict on every sample, no smoothing
	samples := []accel.Sample{
		{X: 4.9, Z: 5.0},
		{X: 5.1, Z: 5.0},
		{X: 4.9, Z: 5.0},
		{X: 5.0, Z: 5.0},
	}
	want := []Verdict{Good, Bad, Good, Bad}
	for i := range samples {
		c.OnSample(&samples[i])
		assert.Equal(t, want[i], c.Verdict(), "after sample %d", i)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	c := NewClassifier()
	ch, cancel := c.Subscribe()
	defer cancel()

	c.OnSample(&accel.Sample{Z: 9.8})
	select {
	case v := <-ch:
		assert.Equal(t, Good, v)
	case <-time.After(time.Second):
		t.Fatal("no verdict change delivered")
	}

	// unchanged verdict is not re-announced
	c.OnSample(&accel.Sample{Z: 9.7})
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	default:
	}
}

func TestSubscribeKeepsLatestOnly(t *testing.T) {
	c := NewClassifier()
	ch, cancel := c.Subscribe()
	defer cancel()

	c.OnSample(&accel.Sample{Z: 9.8}) // good
	c.OnSample(&accel.Sample{X: 9.8}) // bad
	c.OnSample(&accel.Sample{Z: 9.8}) // good

	require.Len(t, ch, 1)
	assert.Equal(t, Good, <-ch)
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	c := NewClassifier()
	ch, cancel := c.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// no panic on notify after cancel
	c.OnSample(&accel.Sample{Z: 1})
}

func TestClassifierConcurrentReaders(t *testing.T) {
	c := NewClassifier()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					v := c.Verdict()
					if v != Good && v != Bad {
						t.Errorf("torn verdict %d", v)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			c.OnSample(&accel.Sample{Z: 1})
		} else {
			c.OnSample(&accel.Sample{X: 1})
		}
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, Bad, c.Verdict())
}
