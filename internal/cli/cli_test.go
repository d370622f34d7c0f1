package cli

import (
	"strings"
	"testing"

	"skybridge/pkg/devicenet"
)

type fakeDevice struct {
	running  bool
	kicked   []devicenet.SlotID
	kickAll  bool
	kickOK   bool
	statuses []string
}

func (f *fakeDevice) Running() bool            { return f.running }
func (f *fakeDevice) StatusLines() []string    { return f.statuses }
func (f *fakeDevice) KickAll()                 { f.kickAll = true }
func (f *fakeDevice) Kick(id devicenet.SlotID) bool {
	f.kicked = append(f.kicked, id)
	return f.kickOK
}

func TestStopCommandExitsCleanly(t *testing.T) {
	dev := &fakeDevice{}
	var out strings.Builder
	stopped := false
	c := NewConsole(strings.NewReader("stop\n"), &out, dev, nil)
	c.Stop = func() { stopped = true }

	code := c.Run()
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !stopped {
		t.Fatal("expected Stop to be called")
	}
}

func TestEOFExitsCleanly(t *testing.T) {
	dev := &fakeDevice{}
	var out strings.Builder
	c := NewConsole(strings.NewReader(""), &out, dev, nil)

	if code := c.Run(); code != 0 {
		t.Fatalf("expected exit code 0 on EOF, got %d", code)
	}
}

func TestKickAllDispatchesToDeviceServer(t *testing.T) {
	dev := &fakeDevice{}
	var out strings.Builder
	c := NewConsole(strings.NewReader("kickall\nstop\n"), &out, dev, nil)
	c.Run()

	if !dev.kickAll {
		t.Fatal("expected KickAll to be called")
	}
}

func TestKickParsesSlotID(t *testing.T) {
	dev := &fakeDevice{kickOK: true}
	var out strings.Builder
	c := NewConsole(strings.NewReader("kick 3\nstop\n"), &out, dev, nil)
	c.Run()

	if len(dev.kicked) != 1 || dev.kicked[0] != devicenet.SlotID(3) {
		t.Fatalf("expected kick(3), got %v", dev.kicked)
	}
}

func TestUnknownCommandDoesNotExit(t *testing.T) {
	dev := &fakeDevice{}
	var out strings.Builder
	c := NewConsole(strings.NewReader("bogus\nstop\n"), &out, dev, nil)
	code := c.Run()
	if code != 0 {
		t.Fatalf("expected eventual clean exit, got %d", code)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatal("expected an unknown-command message")
	}
}
