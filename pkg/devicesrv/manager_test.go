package devicesrv

import "testing"

func TestManagerConnectFiresOnlyOnFirstRealPeer(t *testing.T) {
	sim := &fakeSimBinding{}
	m := NewManager(NewRadio(sim, nil), nil)

	fired := 0
	m.OnDeviceConnect = func() { fired++ }

	// The fake peer's own connect never reaches the manager (the
	// transport bypasses OnConnected for it); only real peer connects do.
	m.HandleConnect(2) // first real peer
	m.HandleConnect(3) // second real peer joining: must not re-fire

	if fired != 1 {
		t.Fatalf("expected exactly one connect event, got %d", fired)
	}
	if !m.Connected() {
		t.Fatal("expected Connected() to be true")
	}
}

func TestManagerDisconnectFiresOnlyOnLastRealPeer(t *testing.T) {
	sim := &fakeSimBinding{}
	m := NewManager(NewRadio(sim, nil), nil)
	m.HandleConnect(2)

	fired := 0
	m.OnDeviceDisconnect = func() { fired++ }

	m.HandleDisconnect(2) // still one real peer left
	m.HandleDisconnect(1) // last real peer gone

	if fired != 1 {
		t.Fatalf("expected exactly one disconnect event, got %d", fired)
	}
	if m.Connected() {
		t.Fatal("expected Connected() to be false")
	}
}

func TestManagerDispatchesRadioInput(t *testing.T) {
	sim := &fakeSimBinding{}
	radio := NewRadio(sim, nil)
	radio.Initialize()
	sim.sampleCB([]any{int32(118000000)})

	m := NewManager(radio, nil)
	m.HandleInput(0x85978597, uint32(int32(1)))

	if radio.StandbyKHz() != 118005 {
		t.Fatalf("expected input to tune radio up one step, got %d", radio.StandbyKHz())
	}
}

func TestManagerIgnoresUnknownInput(t *testing.T) {
	sim := &fakeSimBinding{}
	radio := NewRadio(sim, nil)
	radio.Initialize()
	sim.sampleCB([]any{int32(118000000)})

	m := NewManager(radio, nil)
	m.HandleInput(0xDEAD, 1)

	if radio.StandbyKHz() != 118000 {
		t.Fatalf("unknown input id must not change the radio, got %d", radio.StandbyKHz())
	}
}
