package devicesrv

import (
	"testing"

	"skybridge/pkg/simlink"
)

type fakeSimBinding struct {
	sampleCB func(row []any)
	eventCB  func(data uint32)
	sent     []uint32
}

func (f *fakeSimBinding) RegisterDataModel(vars []simlink.VarSpec) (simlink.ModelId, bool) {
	return 1, true
}

func (f *fakeSimBinding) RequestDataOnSimObject(objectID uint32, model simlink.ModelId, period simlink.Period, cb func(row []any)) (simlink.RequestId, error) {
	f.sampleCB = cb
	return 1, nil
}

func (f *fakeSimBinding) MapEvent(name string, cb func(data uint32)) (simlink.EventId, error) {
	f.eventCB = cb
	return 1, nil
}

func (f *fakeSimBinding) AddEventToGroup(group uint32, evt simlink.EventId) error { return nil }

func (f *fakeSimBinding) TransmitEvent(objectID uint32, evt simlink.EventId, value uint32) error {
	f.sent = append(f.sent, value)
	return nil
}

func TestRadioInitialSampleSetsStandby(t *testing.T) {
	sim := &fakeSimBinding{}
	r := NewRadio(sim, nil)
	if !r.Initialize() {
		t.Fatal("Initialize failed")
	}

	sim.sampleCB([]any{int32(121500000)})
	if r.StandbyKHz() != 121500 {
		t.Fatalf("expected 121500 kHz, got %d", r.StandbyKHz())
	}
}

func TestRadioTickStepsAndWraps(t *testing.T) {
	sim := &fakeSimBinding{}
	r := NewRadio(sim, nil)
	r.Initialize()
	sim.sampleCB([]any{int32(118000000)})

	r.InterpretTick(1)
	if r.StandbyKHz() != 118005 {
		t.Fatalf("expected 118005 after one tick up, got %d", r.StandbyKHz())
	}
	if len(sim.sent) != 1 || sim.sent[0] != 118005000 {
		t.Fatalf("expected transmit of 118005000 Hz, got %v", sim.sent)
	}

	r.InterpretTick(-1)
	if r.StandbyKHz() != 118000 {
		t.Fatalf("expected back to 118000 after tick down, got %d", r.StandbyKHz())
	}
}

func TestRadioTickWrapsBelowBand(t *testing.T) {
	sim := &fakeSimBinding{}
	r := NewRadio(sim, nil)
	r.Initialize()
	sim.sampleCB([]any{int32(118000000)})

	r.InterpretTick(-1)
	if r.StandbyKHz() < stbyMinKHz || r.StandbyKHz() > stbyMaxKHz {
		t.Fatalf("standby frequency out of band after wraparound: %d", r.StandbyKHz())
	}
}

func TestRadioTickSkipsLegacySpacing(t *testing.T) {
	sim := &fakeSimBinding{}
	r := NewRadio(sim, nil)
	r.Initialize()
	// 118015 + 5 = 118020, which is a legacy 8.33kHz-spacing value to skip.
	sim.sampleCB([]any{int32(118015000)})

	r.InterpretTick(1)
	if r.StandbyKHz()%100 == 20 {
		t.Fatalf("expected the legacy spacing value to be skipped, got %d", r.StandbyKHz())
	}
}
