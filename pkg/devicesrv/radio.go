// Package devicesrv turns physical-device input into simulator commands:
// today, a single COM standby radio tuner driven by rotary tick input.
package devicesrv

import (
	"log/slog"
	"sync"

	"skybridge/pkg/simlink"
)

// defaultGroup is the SimConnect notification group radio events are
// added to; the original C++ used a single default priority group for
// everything, so this package does the same.
const defaultGroup uint32 = 0

const (
	stbyMinKHz = 118_000
	stbyMaxKHz = 136_975
	stepKHz    = 5
)

// SimBinding is the narrow slice of simlink.Link the radio needs:
// register its frequency model, subscribe to it, map and fire the
// standby-set event.
type SimBinding interface {
	RegisterDataModel(vars []simlink.VarSpec) (simlink.ModelId, bool)
	RequestDataOnSimObject(objectID uint32, model simlink.ModelId, period simlink.Period, cb func(row []any)) (simlink.RequestId, error)
	MapEvent(name string, cb func(data uint32)) (simlink.EventId, error)
	AddEventToGroup(group uint32, evt simlink.EventId) error
	TransmitEvent(objectID uint32, evt simlink.EventId, value uint32) error
}

// Radio tracks the COM standby frequency and translates rotary tick input
// into COM_STBY_RADIO_SET_HZ transmissions.
type Radio struct {
	mu sync.Mutex

	sim    SimBinding
	logger *slog.Logger

	comStbyKHz  int
	stbyChange  simlink.EventId

	OnStandbyChanged func(khz int)
}

// NewRadio constructs a Radio starting at the COM band's low edge, as the
// original firmware does before the simulator's first sample arrives.
func NewRadio(sim SimBinding, logger *slog.Logger) *Radio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Radio{sim: sim, logger: logger.With("component", "radio"), comStbyKHz: stbyMinKHz}
}

// Initialize registers the frequency DataModel, subscribes to the user
// aircraft's standby frequency, and maps the set-frequency event.
func (r *Radio) Initialize() bool {
	model, ok := r.sim.RegisterDataModel([]simlink.VarSpec{
		{Name: "COM STANDBY FREQUENCY:1", Units: "Hz", Kind: simlink.VarInt32},
	})
	if !ok {
		return false
	}

	_, err := r.sim.RequestDataOnSimObject(0, model, simlink.PeriodSecond, r.handleSample)
	if err != nil {
		r.logger.Warn("standby frequency subscription failed", "error", err)
		return false
	}

	evt, err := r.sim.MapEvent("COM_STBY_RADIO_SET_HZ", r.handleEventEcho)
	if err != nil {
		r.logger.Warn("map COM_STBY_RADIO_SET_HZ failed", "error", err)
		return false
	}
	if err := r.sim.AddEventToGroup(defaultGroup, evt); err != nil {
		r.logger.Warn("add event to group failed", "error", err)
	}

	r.mu.Lock()
	r.stbyChange = evt
	r.mu.Unlock()
	return true
}

func (r *Radio) handleSample(row []any) {
	hz := simlink.RowInt(row, 0)
	if v, ok := row[0].(int32); ok {
		hz = int64(v)
	}
	r.setFromHz(uint32(hz))
}

func (r *Radio) handleEventEcho(data uint32) {
	r.setFromHz(data)
}

func (r *Radio) setFromHz(hz uint32) {
	khz := int(hz / 1000)
	r.mu.Lock()
	r.comStbyKHz = khz
	cb := r.OnStandbyChanged
	r.mu.Unlock()
	if cb != nil {
		cb(khz)
	}
}

// InterpretTick applies one rotary-encoder tick (positive or negative) to
// the standby frequency, skipping the legacy 8.33kHz-spacing values the
// original firmware never lands on, then transmits the result.
func (r *Radio) InterpretTick(direction int32) {
	r.mu.Lock()
	freq := r.comStbyKHz + int(direction)*stepKHz

	switch {
	case freq < stbyMinKHz:
		freq = stbyMaxKHz - stbyMinKHz + stepKHz + freq
	case freq > stbyMaxKHz:
		freq = stbyMinKHz - stbyMaxKHz - stepKHz + freq
	}

	if direction > 0 {
		freq = skipForward(freq)
	} else {
		freq = skipBackward(freq)
	}

	r.comStbyKHz = freq
	sim := r.sim
	evt := r.stbyChange
	r.mu.Unlock()

	_ = sim.TransmitEvent(0, evt, uint32(freq)*1000)
}

func skipForward(freq int) int {
	if isLegacySkipValue(freq) {
		return freq + stepKHz
	}
	return freq
}

func skipBackward(freq int) int {
	if isLegacySkipValue(freq) {
		return freq - stepKHz
	}
	return freq
}

func isLegacySkipValue(freq int) bool {
	switch freq % 100 {
	case 20, 45, 70, 95:
		return true
	default:
		return false
	}
}

// StandbyKHz returns the current standby frequency in kHz.
func (r *Radio) StandbyKHz() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.comStbyKHz
}
