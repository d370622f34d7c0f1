package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"skybridge/internal/wire"
	"skybridge/pkg/radar"
	"skybridge/pkg/simlink"
)

type fakeSimLink struct {
	state          simlink.State
	initialized    bool
	shutdown       bool
	allowReconnect bool
	initErr        error
}

func (f *fakeSimLink) State() simlink.State { return f.state }
func (f *fakeSimLink) Initialize(appName string) error {
	f.initialized = true
	f.state = simlink.StateConnected
	return f.initErr
}
func (f *fakeSimLink) Shutdown() {
	f.shutdown = true
	f.state = simlink.StateClosed
}
func (f *fakeSimLink) SetAllowReconnect(allow bool) { f.allowReconnect = allow }

type fakeDeviceServer struct {
	running  bool
	started  bool
	stopped  bool
	startErr error
}

func (f *fakeDeviceServer) Running() bool { return f.running }
func (f *fakeDeviceServer) Start(address string, port int) error {
	f.started = true
	f.running = true
	return f.startErr
}
func (f *fakeDeviceServer) Stop() {
	f.stopped = true
	f.running = false
}

func TestPushAndCommitTxDeliversInOrder(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var got []TxMessage
	b.Send = func(m TxMessage) { got = append(got, m) }

	b.PushTx(TxMessage{Topic: wire.TopicRadarAdd})
	b.PushTx(TxMessage{Topic: wire.TopicRadarRemove})
	b.CommitTx()

	require.Len(t, got, 2)
	require.Equal(t, wire.TopicRadarAdd, got[0].Topic)
	require.Equal(t, wire.TopicRadarRemove, got[1].Topic)

	// queue drained
	b.CommitTx()
	require.Len(t, got, 2, "expected no further delivery")
}

func TestSendSystemStateReflectsServerStatusLevels(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var last TxMessage
	b.Send = func(m TxMessage) { last = m }

	b.HandleServerStart()
	state := last.Payload.(wire.SystemState)
	require.Equal(t, 2, state.SrvStatus, "srvStatus after server start")

	b.HandleDeviceConnect()
	state = last.Payload.(wire.SystemState)
	require.Equal(t, 3, state.SrvStatus, "srvStatus once a device is connected")

	b.HandleSimConnect("FS2024")
	state = last.Payload.(wire.SystemState)
	require.Equal(t, 2, state.SimStatus)
	require.Equal(t, "FS2024", state.SimName)

	b.HandleSimDisconnect()
	state = last.Payload.(wire.SystemState)
	require.Equal(t, 1, state.SimStatus)
	require.Empty(t, state.SimName, "simName must be empty when disconnected")
}

func TestCommitRxChangeSimLinkStatusInitializesWhenDisconnected(t *testing.T) {
	sim := &fakeSimLink{state: simlink.StateClosed}
	b := NewBridge(sim, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	b.Send = func(TxMessage) {}

	b.PushRx(RxChangeSimLinkStatus, true)
	b.CommitRx(nil, nil, nil)

	require.True(t, sim.initialized, "expected Initialize to be called")
}

func TestCommitRxChangeSimLinkStatusShutsDownWhenConnected(t *testing.T) {
	sim := &fakeSimLink{state: simlink.StateConnected}
	b := NewBridge(sim, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	b.Send = func(TxMessage) {}

	b.PushRx(RxChangeSimLinkStatus, false)
	b.CommitRx(nil, nil, nil)

	require.True(t, sim.shutdown, "expected Shutdown to be called")
}

func TestCommitRxChangeSimLinkStatusIsNoOpWhenAlreadyInTargetState(t *testing.T) {
	sim := &fakeSimLink{state: simlink.StateConnected}
	b := NewBridge(sim, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	b.Send = func(TxMessage) {}

	b.PushRx(RxChangeSimLinkStatus, true)
	b.CommitRx(nil, nil, nil)

	require.False(t, sim.initialized || sim.shutdown, "already-connected link must not be re-initialized or shut down")
}

func TestCommitRxChangeServerStatusStartsAndStops(t *testing.T) {
	dev := &fakeDeviceServer{}
	b := NewBridge(&fakeSimLink{}, dev, "skybridge", "0.0.0.0", 4209, nil)
	b.Send = func(TxMessage) {}

	b.PushRx(RxChangeServerStatus, true)
	b.CommitRx(nil, nil, nil)
	require.True(t, dev.started, "expected server start")

	b.PushRx(RxChangeServerStatus, false)
	b.CommitRx(nil, nil, nil)
	require.True(t, dev.stopped, "expected server stop")
}

func TestCommitRxReconnectToSim(t *testing.T) {
	sim := &fakeSimLink{}
	b := NewBridge(sim, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	b.Send = func(TxMessage) {}

	b.PushRx(RxReconnectToSim, true)
	b.CommitRx(nil, nil, nil)

	require.True(t, sim.allowReconnect, "expected AllowReconnect(true)")
}

func TestResyncWaitsForBothHalves(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var got []TxMessage
	b.Send = func(m TxMessage) { got = append(got, m) }

	b.OnRadarResync([]radar.ResyncEntry{{ObjectID: 1}})
	b.CommitTx()
	require.Empty(t, got, "expected no message before the user half arrives")

	b.OnUserResync(1, radar.Identity{Model: "C172"}, radar.Track{})
	b.CommitTx()
	require.Len(t, got, 1)
	require.Equal(t, wire.TopicResync, got[0].Topic)
}

func TestCommitRxResyncWaitsForSpawnedUserHalf(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var got []TxMessage
	b.Send = func(m TxMessage) { got = append(got, m) }

	resyncRadar := func() { b.OnRadarResync([]radar.ResyncEntry{{ObjectID: 1}}) }
	resyncUser := func() { b.OnUserResync(1, radar.Identity{Model: "C172"}, radar.Track{}) }
	userSpawned := func() bool { return true }

	b.PushRx(RxResync, true)
	b.CommitRx(resyncRadar, resyncUser, userSpawned)
	b.CommitTx()

	require.Len(t, got, 1)
	require.Equal(t, wire.TopicResync, got[0].Topic)
	payload := got[0].Payload.(wire.ResyncPayload)
	require.NotNil(t, payload.User, "resync for a spawned user aircraft must not drop the user half")
}

func TestTriggerResyncPreSatisfiesUserHalfWhenNotSpawned(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var got []TxMessage
	b.Send = func(m TxMessage) { got = append(got, m) }

	radarCalled := false
	b.TriggerResync(func() {
		radarCalled = true
		b.OnRadarResync(nil)
	}, nil, false)
	b.CommitTx()

	require.True(t, radarCalled, "expected radar resync trigger to be called")
	require.Len(t, got, 1)
	require.Equal(t, wire.TopicResync, got[0].Topic)
}

func TestPlaneAddThenUpdateThenRemove(t *testing.T) {
	b := NewBridge(&fakeSimLink{}, &fakeDeviceServer{}, "skybridge", "0.0.0.0", 4209, nil)
	var got []TxMessage
	b.Send = func(m TxMessage) { got = append(got, m) }

	b.OnPlaneAdd(5, radar.Identity{Model: "A320", Callsign: "DLH1"}, radar.Track{})
	b.OnPlaneUpdate(5, radar.Track{Latitude: 1})
	b.OnPlaneRemove(5)
	b.CommitTx()

	require.Len(t, got, 3)
	require.Equal(t, wire.TopicRadarAdd, got[0].Topic)
	require.Equal(t, wire.TopicRadarUpdate, got[1].Topic)
	require.Equal(t, wire.TopicRadarRemove, got[2].Topic)

	update := got[1].Payload.(wire.RadarAircraft)
	require.Empty(t, update.Model, "radar-update payload must not carry identity fields")
	require.Empty(t, update.Callsign)
}
