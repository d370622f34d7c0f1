package radar

import (
	"sync"
	"testing"

	"skybridge/pkg/simlink"
)

// fakeRequester is a test double for Requester: it records requests and
// lets the test deliver results synchronously.
type fakeRequester struct {
	mu          sync.Mutex
	nextID      simlink.RequestId
	nextModelID simlink.ModelId

	// singleByObject holds the most recent RequestDataOnSimObject callback
	// registered for each object, keyed by object id.
	singleByObject map[uint32]func(row []any)
	idToObject     map[simlink.RequestId]uint32

	typeQueries []func(objectID uint32, row []any)

	cancelled []simlink.RequestId
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{
		singleByObject: make(map[uint32]func(row []any)),
		idToObject:     make(map[simlink.RequestId]uint32),
		nextModelID:    1,
	}
}

func (f *fakeRequester) RegisterDataModel(vars []simlink.VarSpec) (simlink.ModelId, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextModelID
	f.nextModelID++
	return id, true
}

func (f *fakeRequester) RequestDataOnSimObject(objectID uint32, model simlink.ModelId, period simlink.Period, cb func(row []any)) (simlink.RequestId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.singleByObject[objectID] = cb
	f.idToObject[id] = objectID
	return id, nil
}

func (f *fakeRequester) RequestDataOnSimObjectType(objType simlink.ObjectType, model simlink.ModelId, radiusM float64, cb func(objectID uint32, row []any)) (simlink.RequestId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.typeQueries = append(f.typeQueries, cb)
	return id, nil
}

func (f *fakeRequester) CancelDataOnSimObject(id simlink.RequestId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if objectID, ok := f.idToObject[id]; ok {
		delete(f.singleByObject, objectID)
	}
	return nil
}

// deliverFor delivers row to the callback most recently registered for
// objectID via RequestDataOnSimObject (ident or track, whichever was
// requested last).
func (f *fakeRequester) deliverFor(objectID uint32, row []any) {
	f.mu.Lock()
	cb := f.singleByObject[objectID]
	f.mu.Unlock()
	if cb != nil {
		cb(row)
	}
}

func identRow(airline, flight, model, title string, isUser bool) []any {
	u := int64(0)
	if isUser {
		u = 1
	}
	return []any{airline, flight, model, title, u}
}

func trackRow(lon, lat, headingTrue, headingGyro, altInd, altTrue, altAGL, ias, gs, vs float64) []any {
	return []any{lon, lat, headingTrue, headingGyro, altInd, altTrue, altAGL, ias, gs, vs}
}

func TestUserTrackerIdentifyAndTrack(t *testing.T) {
	req := newFakeRequester()
	tr := NewUserTracker(req, nil)
	if !tr.RegisterModels() {
		t.Fatal("RegisterModels failed")
	}

	var added bool
	var updated bool
	tr.OnAdd = func(objectID uint32, identity Identity, track Track) { added = true }
	tr.OnUpdate = func(objectID uint32, track Track) { updated = true }

	tr.Set(42)
	if tr.State() != UserIdentifying {
		t.Fatalf("expected Identifying, got %v", tr.State())
	}

	req.deliverFor(42, identRow("UAL", "123", "B738", "Boeing 737-800", false))

	// Debounced sample: near (0,0), low altitude.
	req.deliverFor(42, trackRow(0, 0, 0, 0, 0, 0, 0, 0, 0, 0))
	if added {
		t.Fatal("debounced sample should not fire on_add")
	}

	req.deliverFor(42, trackRow(8.5, 47.5, 90, 90, 5000, 5000, 4500, 250, 260, 0))
	if !added {
		t.Fatal("expected on_add after first accepted sample")
	}
	if tr.State() != UserTracking {
		t.Fatalf("expected Tracking, got %v", tr.State())
	}

	req.deliverFor(42, trackRow(8.6, 47.6, 91, 91, 5100, 5100, 4600, 251, 261, 100))
	if !updated {
		t.Fatal("expected on_update for second accepted sample")
	}
}

func TestUserTrackerRemoveFiresOnlyIfSpawned(t *testing.T) {
	req := newFakeRequester()
	tr := NewUserTracker(req, nil)
	tr.RegisterModels()

	removed := 0
	tr.OnRemove = func(objectID uint32) { removed++ }

	tr.Set(7)
	tr.Remove()
	if removed != 0 {
		t.Fatalf("expected no on_remove before spawn, got %d", removed)
	}

	tr.Set(7)
	req.deliverFor(7, identRow("", "", "B738", "Boeing 737-800", false))
	req.deliverFor(7, trackRow(8.5, 47.5, 90, 90, 5000, 5000, 4500, 250, 260, 0))
	tr.Remove()
	if removed != 1 {
		t.Fatalf("expected exactly one on_remove, got %d", removed)
	}
}

func TestRadarIdentifyHandsOffUserAircraft(t *testing.T) {
	req := newFakeRequester()
	var sunk uint32
	sink := userSinkFunc(func(objectID uint32) { sunk = objectID })

	r := NewRadar(req, sink, nil)
	if !r.Initialize() {
		t.Fatal("Initialize failed")
	}

	r.HandleObjectAdded(99, simlink.ObjectTypeAircraft)
	r.Tick(1 << 62) // force the +5s delay to have elapsed

	req.deliverFor(99, identRow("", "", "", "", true))

	if sunk != 99 {
		t.Fatalf("expected user sink to receive object 99, got %d", sunk)
	}
	if r.Count() != 0 {
		t.Fatalf("user aircraft must not remain in radar's own table, count=%d", r.Count())
	}
}

func TestRadarTracksNonUserAircraft(t *testing.T) {
	req := newFakeRequester()
	r := NewRadar(req, nil, nil)
	r.Initialize()

	var addedID uint32
	r.OnPlaneAdd = func(objectID uint32, identity Identity, track Track) { addedID = objectID }

	r.HandleObjectAdded(50, simlink.ObjectTypeAircraft)
	r.Tick(1 << 62)
	req.deliverFor(50, identRow("DLH", "400", "A320", "Airbus A320neo", false))
	req.deliverFor(50, trackRow(8.5, 47.5, 10, 10, 6000, 6000, 5500, 230, 240, 0))

	if addedID != 50 {
		t.Fatalf("expected on_plane_add for object 50, got %d", addedID)
	}

	removed := false
	r.OnPlaneRemove = func(objectID uint32) { removed = true }
	r.Remove(50)
	if !removed {
		t.Fatal("expected on_plane_remove for a spawned aircraft")
	}
}

func TestRadarResyncSkipsUnspawnedAndUser(t *testing.T) {
	req := newFakeRequester()
	r := NewRadar(req, userSinkFunc(func(uint32) {}), nil)
	r.Initialize()

	r.HandleObjectAdded(1, simlink.ObjectTypeAircraft)
	r.HandleObjectAdded(2, simlink.ObjectTypeAircraft)
	r.HandleObjectAdded(3, simlink.ObjectTypeAircraft)
	r.Tick(1 << 62)

	// Object 1: fully spawned.
	req.deliverFor(1, identRow("DLH", "1", "A320", "Airbus", false))
	req.deliverFor(1, trackRow(8.5, 47.5, 10, 10, 6000, 6000, 5500, 230, 240, 0))

	// Object 3: identified as the user aircraft and handed off.
	req.deliverFor(3, identRow("", "", "B738", "Boeing", true))

	var entries []ResyncEntry
	r.OnResync = func(e []ResyncEntry) { entries = e }
	r.Resync()

	if len(entries) != 1 || entries[0].ObjectID != 1 {
		t.Fatalf("expected resync to contain only the spawned object, got %+v", entries)
	}
}

type userSinkFunc func(objectID uint32)

func (f userSinkFunc) Set(objectID uint32) { f(objectID) }
