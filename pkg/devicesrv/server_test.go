package devicesrv

import "testing"

func TestServerStartFiresOnStartAndInitializesRadio(t *testing.T) {
	sim := &fakeSimBinding{}
	srv := NewServer(NewManager(NewRadio(sim, nil), nil), 4, nil)

	started := false
	srv.OnStart = func() { started = true }

	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	if !started {
		t.Fatal("expected OnStart to fire")
	}
	if !srv.Running() {
		t.Fatal("expected server to be running")
	}
	if sim.sampleCB == nil {
		t.Fatal("expected radio to have subscribed to the standby frequency")
	}
}

func TestServerStopFiresOnStopAndClosesSocket(t *testing.T) {
	sim := &fakeSimBinding{}
	srv := NewServer(NewManager(NewRadio(sim, nil), nil), 4, nil)
	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := false
	srv.OnStop = func() { stopped = true }
	srv.Stop()

	if !stopped {
		t.Fatal("expected OnStop to fire")
	}
	if srv.Running() {
		t.Fatal("expected server to be stopped")
	}
}

func TestServerStopIsNoOpWhenNotRunning(t *testing.T) {
	sim := &fakeSimBinding{}
	srv := NewServer(NewManager(NewRadio(sim, nil), nil), 4, nil)

	called := false
	srv.OnStop = func() { called = true }
	srv.Stop()

	if called {
		t.Fatal("OnStop must not fire when the server was never started")
	}
}
