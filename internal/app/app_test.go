package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_monitor/internal/accel"
	"github.com/relabs-tech/posture_monitor/internal/broker/brokertest"
	"github.com/relabs-tech/posture_monitor/internal/orientation"
	"github.com/relabs-tech/posture_monitor/internal/sensors"
)

// stubSource delivers samples on Emit to whichever listener it holds.
type stubSource struct {
	mu        sync.Mutex
	available bool
	listener  accel.Listener
	closed    bool
}

func (s *stubSource) Name() string    { return "stub" }
func (s *stubSource) Available() bool { return s.available }

func (s *stubSource) Start(l accel.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

func (s *stubSource) Stop() {}

func (s *stubSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSource) Emit(x, y, z float32) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.OnSample(&accel.Sample{X: x, Y: y, Z: z})
	}
}

func TestMonitorStatus(t *testing.T) {
	src := &stubSource{available: true}
	m := NewMonitor(src)

	st := m.Status()
	assert.Equal(t, orientation.Bad, st.Verdict)
	assert.False(t, st.Good)
	assert.Equal(t, "active", st.State)
	assert.True(t, st.SensorAvailable)
	assert.Equal(t, "stub", st.Source)

	src.Emit(0, 0, 9.8)
	assert.True(t, m.Status().Good)

	require.NoError(t, m.Close())
	assert.Equal(t, "paused", m.Status().State)
	assert.True(t, src.closed)
}

func TestMonitorFollowsBrokerOutage(t *testing.T) {
	client := brokertest.NewClient()
	src := sensors.NewMQTTSource(client, "posture/accel")
	client.Configure(src.ConnectOptions)
	m := NewMonitor(src)

	client.Drop(errors.New("broker restarted"))
	m.Gate.OnBackground()
	m.Gate.OnForeground()
	assert.True(t, m.Status().SensorAvailable)

	client.Connect()
	m.Gate.OnForeground()
	require.True(t, client.Deliver("posture/accel", []byte(`{"x":0,"y":0,"z":9.8}`)))

	st := m.Status()
	assert.Equal(t, "active", st.State)
	assert.Equal(t, orientation.Good, st.Verdict)
}

func TestPostureEndpoint(t *testing.T) {
	src := &stubSource{available: true}
	m := NewMonitor(src)
	srv := httptest.NewServer(NewWebHandler(m))
	defer srv.Close()

	src.Emit(0, 0, 9.8)

	resp, err := http.Get(srv.URL + "/api/posture")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, orientation.Good, st.Verdict)
	assert.True(t, st.Good)
}

func TestLifecycleEndpoints(t *testing.T) {
	src := &stubSource{available: true}
	m := NewMonitor(src)
	srv := httptest.NewServer(NewWebHandler(m))
	defer srv.Close()

	src.Emit(0, 0, 9.8)

	resp, err := http.Post(srv.URL+"/api/lifecycle/background", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", m.Status().State)

	// the verdict is frozen while paused
	src.Emit(9.8, 0, 0)
	assert.True(t, m.Status().Good)

	resp, err = http.Post(srv.URL+"/api/lifecycle/foreground", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "active", m.Status().State)

	src.Emit(9.8, 0, 0)
	assert.False(t, m.Status().Good)

	resp, err = http.Post(srv.URL+"/api/lifecycle/sideways", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/lifecycle/background")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPostureWebSocket(t *testing.T) {
	src := &stubSource{available: true}
	m := NewMonitor(src)
	srv := httptest.NewServer(NewWebHandler(m))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/posture"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var st Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, orientation.Bad, st.Verdict)

	src.Emit(0, 0, 9.8)
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, orientation.Good, st.Verdict)

	src.Emit(0, 9.8, 0)
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, orientation.Bad, st.Verdict)
}

func TestPublisherMirrorsChanges(t *testing.T) {
	src := &stubSource{available: true}
	m := NewMonitor(src)
	client := brokertest.NewClient()
	pub := NewPublisher(client, "posture/verdict", m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.Published()) == 1 }, time.Second, 5*time.Millisecond)

	src.Emit(0, 0, 9.8)
	require.Eventually(t, func() bool { return len(client.Published()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	msgs := client.Published()
	for _, p := range msgs {
		assert.Equal(t, "posture/verdict", p.Topic)
		assert.True(t, p.Retained)
	}

	var first, second VerdictMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &first))
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &second))
	assert.Equal(t, orientation.Bad, first.Verdict)
	assert.False(t, first.Good)
	assert.Equal(t, orientation.Good, second.Verdict)
	assert.True(t, second.Good)
}

func TestAccelPublisher(t *testing.T) {
	client := brokertest.NewClient()
	l := accelPublisher(client, "posture/accel")

	l.OnSample(nil)
	l.OnSample(&accel.Sample{X: 0.5, Y: -1, Z: 9.75})

	msgs := client.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "posture/accel", msgs[0].Topic)
	assert.False(t, msgs[0].Retained)
	assert.JSONEq(t, `{"x":0.5,"y":-1,"z":9.75}`, string(msgs[0].Payload))
}

func TestVerdictPrinter(t *testing.T) {
	client := brokertest.NewClient()
	var out bytes.Buffer
	client.Subscribe("posture/verdict", 0, verdictPrinter(&out))

	client.Deliver("posture/verdict", []byte(`{"verdict":"good","good":true,"time":"2026-01-02T03:04:05Z"}`))
	client.Deliver("posture/verdict", []byte(`{broken`))
	client.Deliver("posture/verdict", []byte(`{"verdict":"bad","good":false,"time":"2026-01-02T03:04:06Z"}`))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "GOOD POSTURE")
	assert.Contains(t, lines[1], "INADEQUATE POSTURE")
}
