// Package mock provides an in-process simlink.Transport double that
// stands in for SimConnect.dll, driving one synthetic user aircraft and a
// handful of synthetic traffic targets. It backs the "sim.provider: mock"
// configuration setting and integration tests that need an end-to-end transport without the
// Windows-only vendor DLL.
package mock

import (
	"math"
	"strconv"
	"sync"
	"time"

	"skybridge/internal/clock"
	"skybridge/pkg/simlink"
)

const (
	// UserObjectID is the object id RequestDataOnSimObject(0, ...) resolves
	// to. Type queries never include it.
	UserObjectID uint32 = 1
	tickInterval        = 250 * time.Millisecond
)

// Object is one synthetic simulator entity: the user aircraft or a piece
// of traffic.
type Object struct {
	ID        uint32
	Type      simlink.ObjectType
	Airline   string
	Flight    string
	Model     string
	Title     string
	IsUserSim bool

	Lat, Lon          float64
	HeadingTrue       float64
	HeadingGyro       float64
	AltIndicated      float64
	AltTrue           float64
	AltAGL            float64
	IAS               float64
	GroundSpeed       float64
	VerticalSpeed     float64
	TurnRateDegPerSec float64
}

func (o *Object) step(dt float64) {
	o.HeadingTrue += o.TurnRateDegPerSec * dt
	for o.HeadingTrue >= 360 {
		o.HeadingTrue -= 360
	}
	for o.HeadingTrue < 0 {
		o.HeadingTrue += 360
	}
	o.HeadingGyro = o.HeadingTrue

	distDeg := (o.GroundSpeed * 0.514444 * dt) / 111_320.0
	rad := o.HeadingTrue * math.Pi / 180
	o.Lat += distDeg * math.Cos(rad)
	o.Lon += distDeg * math.Sin(rad)
}

// subscription tracks one live RequestDataOnSimObject(Type) registration.
type subscription struct {
	req      simlink.RequestId
	model    simlink.DataModel
	objectID uint32
	objType  simlink.ObjectType
	period   simlink.Period
	byType   bool
	lastSent int64
}

// Transport is a simlink.Transport backed by an in-memory synthetic world.
type Transport struct {
	mu sync.Mutex

	opened bool
	models map[simlink.ModelId][]simlink.VarSpec

	objects map[uint32]*Object
	subs    map[simlink.RequestId]*subscription

	pending []simlink.Message
	lastTick int64
}

// NewTransport constructs a mock transport with one user aircraft and
// traffic count synthetic AI targets circling nearby.
func NewTransport(startLat, startLon float64, traffic int) *Transport {
	t := &Transport{
		models:  make(map[simlink.ModelId][]simlink.VarSpec),
		objects: make(map[uint32]*Object),
		subs:    make(map[simlink.RequestId]*subscription),
	}

	t.objects[UserObjectID] = &Object{
		ID: UserObjectID, Type: simlink.ObjectTypeAircraft, IsUserSim: true,
		Airline: "", Flight: "", Model: "B738", Title: "Boeing 737-800",
		Lat: startLat, Lon: startLon, HeadingTrue: 90, HeadingGyro: 90,
		AltIndicated: 5000, AltTrue: 5000, AltAGL: 4500,
		IAS: 250, GroundSpeed: 260, VerticalSpeed: 0,
	}

	for i := 0; i < traffic; i++ {
		id := uint32(101 + i)
		t.objects[id] = &Object{
			ID: id, Type: simlink.ObjectTypeAircraft,
			Airline: "DLH", Flight: strconv.Itoa(100 + i), Model: "A320", Title: "Airbus A320neo",
			Lat: startLat + 0.05*float64(i+1), Lon: startLon + 0.05*float64(i+1),
			HeadingTrue: float64(30 * i), HeadingGyro: float64(30 * i),
			AltIndicated: 6000 + float64(i)*1000, AltTrue: 6000 + float64(i)*1000, AltAGL: 5500,
			IAS: 230, GroundSpeed: 240, TurnRateDegPerSec: float64(i%3) - 1,
		}
	}

	return t
}

func (t *Transport) Open(appName string) error {
	t.mu.Lock()
	t.opened = true
	t.lastTick = clock.SteadyNowMS()
	t.pending = append(t.pending, simlink.Message{Kind: simlink.MsgOpen, ApplicationName: appName})
	for id, obj := range t.objects {
		if id == UserObjectID {
			continue
		}
		t.pending = append(t.pending, simlink.Message{Kind: simlink.MsgObjectAdded, ObjectID: id, AddedRemovedType: obj.Type})
	}
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.opened = false
	t.subs = make(map[simlink.RequestId]*subscription)
	t.mu.Unlock()
	return nil
}

func (t *Transport) AddToDataDefinition(model simlink.ModelId, spec simlink.VarSpec) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[model] = append(t.models[model], spec)
	return nil
}

func (t *Transport) ClearDataDefinition(model simlink.ModelId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.models, model)
	return nil
}

func (t *Transport) RequestDataOnSimObject(req simlink.RequestId, model simlink.ModelId, objectID uint32, period simlink.Period) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	vars := t.models[model]
	t.subs[req] = &subscription{req: req, model: simlink.DataModel{ID: model, Vars: vars}, objectID: objectID, period: period}
	return nil
}

func (t *Transport) RequestDataOnSimObjectType(req simlink.RequestId, model simlink.ModelId, radiusM float64, objType simlink.ObjectType) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	vars := t.models[model]
	t.subs[req] = &subscription{req: req, model: simlink.DataModel{ID: model, Vars: vars}, objType: objType, byType: true, period: simlink.PeriodOnce}
	return nil
}

func (t *Transport) CancelDataOnSimObject(req simlink.RequestId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, req)
	return nil
}

func (t *Transport) MapClientEventToSimEvent(simlink.EventId, string) error         { return nil }
func (t *Transport) AddClientEventToNotificationGroup(uint32, simlink.EventId) error { return nil }
func (t *Transport) TransmitClientEvent(uint32, simlink.EventId, uint32) error       { return nil }
func (t *Transport) TransmitClientEventEx(uint32, simlink.EventId, uint32, uint32) error {
	return nil
}
func (t *Transport) SubscribeToSystemEvent(simlink.EventId, string) error { return nil }

// Poll advances the synthetic world at most once per tickInterval and
// drains the pending message queue it produces.
func (t *Transport) Poll() (simlink.Message, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := clock.SteadyNowMS()
	if now-t.lastTick >= tickInterval.Milliseconds() {
		dt := float64(now-t.lastTick) / 1000.0
		t.lastTick = now
		for _, obj := range t.objects {
			obj.step(dt)
		}
		t.fillDueLocked(now)
	}

	if len(t.pending) == 0 {
		return simlink.Message{}, false, nil
	}
	msg := t.pending[0]
	t.pending = t.pending[1:]
	return msg, true, nil
}

func (t *Transport) fillDueLocked(now int64) {
	for req, sub := range t.subs {
		if sub.byType {
			matches := make([]*Object, 0)
			for _, obj := range t.objects {
				if obj.ID == UserObjectID {
					continue
				}
				if sub.objType == simlink.ObjectTypeAll || obj.Type == sub.objType {
					matches = append(matches, obj)
				}
			}
			for i, obj := range matches {
				row := buildRow(sub.model, obj)
				t.pending = append(t.pending, simlink.Message{
					Kind: simlink.MsgObjectDataByType, RequestID: req, ObjectID: obj.ID,
					Row: row, EntryNumber: uint32(i), OutOf: uint32(len(matches)),
				})
			}
			delete(t.subs, req)
			continue
		}

		if sub.period == simlink.PeriodNever {
			continue
		}

		interval := periodIntervalMS(sub.period)
		if sub.lastSent != 0 && now-sub.lastSent < interval {
			continue
		}
		sub.lastSent = now

		obj, ok := t.objects[sub.objectID]
		if sub.objectID == 0 {
			obj, ok = t.objects[UserObjectID]
		}
		if !ok {
			continue
		}
		row := buildRow(sub.model, obj)
		t.pending = append(t.pending, simlink.Message{Kind: simlink.MsgObjectData, RequestID: req, ObjectID: obj.ID, Row: row})

		if sub.period == simlink.PeriodOnce {
			delete(t.subs, req)
		}
	}
}

func periodIntervalMS(p simlink.Period) int64 {
	switch p {
	case simlink.PeriodVisualFrame:
		return 33
	case simlink.PeriodSimFrame:
		return 16
	case simlink.PeriodSecond:
		return 1000
	default:
		return 0
	}
}

// buildRow resolves every variable in model against obj by name, falling
// back to zero for names this synthetic world doesn't know about.
func buildRow(model simlink.DataModel, obj *Object) []any {
	row := make([]any, len(model.Vars))
	for i, v := range model.Vars {
		row[i] = resolveVar(v.Name, obj)
	}
	return row
}

func resolveVar(name string, obj *Object) any {
	switch name {
	case "PLANE LATITUDE":
		return obj.Lat
	case "PLANE LONGITUDE":
		return obj.Lon
	case "PLANE HEADING DEGREES TRUE":
		return obj.HeadingTrue
	case "PLANE HEADING DEGREES GYRO", "HEADING INDICATOR":
		return obj.HeadingGyro
	case "INDICATED ALTITUDE":
		return obj.AltIndicated
	case "PLANE ALTITUDE":
		return obj.AltTrue
	case "PLANE ALT ABOVE GROUND":
		return obj.AltAGL
	case "AIRSPEED INDICATED":
		return obj.IAS
	case "GROUND VELOCITY":
		return obj.GroundSpeed
	case "VERTICAL SPEED":
		return obj.VerticalSpeed
	case "ATC AIRLINE":
		return obj.Airline
	case "ATC FLIGHT NUMBER":
		return obj.Flight
	case "ATC MODEL":
		return obj.Model
	case "TITLE":
		return obj.Title
	case "IS USER SIM":
		if obj.IsUserSim {
			return int64(1)
		}
		return int64(0)
	default:
		return float64(0)
	}
}
