package radar

import (
	"log/slog"
	"sync"

	"skybridge/internal/clock"
	"skybridge/pkg/simlink"
)

const (
	identifyDelayMS = 5_000
	queryRadiusM    = 200_000
	spawnPending    = int64(1<<63 - 1) // sentinel: identification already in flight
)

// aircraft is one radar-tracked object. spawnTime is either a future
// instant at which identification should begin, or spawnPending once
// identification has been issued.
type aircraft struct {
	objectID  uint32
	spawnTime int64
	identity  Identity
	spawned   bool
	last      Track
	isUser    bool
}

// Radar tracks every non-user AIRCRAFT/HELICOPTER object the simulator
// reports, grounded on AirplaneRadar.cpp's add/identify/track pipeline.
// It hands is_user_sim objects off to a UserSink rather than tracking
// them itself.
type Radar struct {
	mu sync.Mutex

	requester Requester
	userSink  UserSink
	logger    *slog.Logger

	identModel  simlink.ModelId
	trackModel  simlink.ModelId
	modelsReady bool

	aircraft map[uint32]*aircraft

	OnPlaneAdd    func(objectID uint32, identity Identity, track Track)
	OnPlaneUpdate func(objectID uint32, track Track)
	OnPlaneRemove func(objectID uint32)
	OnResync      func([]ResyncEntry)
}

// ResyncEntry is one row of a Resync snapshot.
type ResyncEntry struct {
	ObjectID uint32
	Identity Identity
	Track    Track
}

// NewRadar constructs a Radar. userSink receives objects identified as
// is_user_sim; it is held, not owned.
func NewRadar(requester Requester, userSink UserSink, logger *slog.Logger) *Radar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Radar{
		requester: requester,
		userSink:  userSink,
		logger:    logger.With("component", "radar"),
		aircraft:  make(map[uint32]*aircraft),
	}
}

// Initialize registers the ident/radar_info models and issues the initial
// type query over all AIRCRAFT and HELICOPTER objects within 200km.
// Object-added/removed events are expected to reach HandleObjectAdded and
// HandleObjectRemoved from the caller's simlink.Link wiring.
func (r *Radar) Initialize() bool {
	identModel, ok := r.requester.RegisterDataModel(identVars)
	if !ok {
		return false
	}
	trackModel, ok := r.requester.RegisterDataModel(trackVars)
	if !ok {
		return false
	}

	r.mu.Lock()
	r.identModel = identModel
	r.trackModel = trackModel
	r.modelsReady = true
	r.mu.Unlock()

	for _, objType := range []simlink.ObjectType{simlink.ObjectTypeAircraft, simlink.ObjectTypeHelicopter} {
		_, err := r.requester.RequestDataOnSimObjectType(objType, identModel, queryRadiusM, func(objectID uint32, row []any) {
			r.seenNow(objectID)
		})
		if err != nil {
			r.logger.Warn("initial type query failed", "object_type", objType, "error", err)
		}
	}
	return true
}

// HandleObjectAdded should be wired to the Link's OnObjectAdded callback.
func (r *Radar) HandleObjectAdded(objectID uint32, objType simlink.ObjectType) {
	if objType != simlink.ObjectTypeAircraft && objType != simlink.ObjectTypeHelicopter {
		return
	}
	r.add(objectID)
}

// HandleObjectRemoved should be wired to the Link's OnObjectRemoved
// callback.
func (r *Radar) HandleObjectRemoved(objectID uint32, _ simlink.ObjectType) {
	r.Remove(objectID)
}

// seenNow treats objectID as freshly observed via the initial type query:
// schedule its +5s identification exactly as add() would.
func (r *Radar) seenNow(objectID uint32) {
	r.add(objectID)
}

// add inserts a record with spawn_time = now + 5s, or returns the existing
// one if objectID is already tracked.
func (r *Radar) add(objectID uint32) *aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.aircraft[objectID]; ok {
		return a
	}
	a := &aircraft{objectID: objectID, spawnTime: clock.SteadyNowMS() + identifyDelayMS}
	r.aircraft[objectID] = a
	return a
}

// Tick drives the identification schedule: any record whose spawn_time
// has elapsed is marked identifying and an ident request is issued. Call
// this periodically (e.g. once per RunCallbacks idle poll).
func (r *Radar) Tick(now int64) {
	r.mu.Lock()
	var due []uint32
	identModel := r.identModel
	modelsReady := r.modelsReady
	for id, a := range r.aircraft {
		if a.spawnTime != spawnPending && a.spawnTime <= now {
			a.spawnTime = spawnPending
			due = append(due, id)
		}
	}
	r.mu.Unlock()

	if !modelsReady {
		return
	}
	for _, objectID := range due {
		objectID := objectID
		_, err := r.requester.RequestDataOnSimObject(objectID, identModel, simlink.PeriodOnce, func(row []any) {
			r.handleIdent(objectID, row)
		})
		if err != nil {
			r.logger.Warn("ident request failed", "object_id", objectID, "error", err)
		}
	}
}

func (r *Radar) handleIdent(objectID uint32, row []any) {
	identity, isUserSim := identityFromRow(row)

	r.mu.Lock()
	a, ok := r.aircraft[objectID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if isUserSim {
		a.isUser = true
		delete(r.aircraft, objectID)
		r.mu.Unlock()
		if r.userSink != nil {
			r.userSink.Set(objectID)
		}
		return
	}
	a.identity = identity
	trackModel := r.trackModel
	r.mu.Unlock()

	_, err := r.requester.RequestDataOnSimObject(objectID, trackModel, simlink.PeriodSecond, func(row []any) {
		r.handleTrack(objectID, row)
	})
	if err != nil {
		r.logger.Warn("track request failed", "object_id", objectID, "error", err)
	}
}

func (r *Radar) handleTrack(objectID uint32, row []any) {
	track := trackFromRow(row)
	if inLoadingLimbo(track) {
		return
	}

	r.mu.Lock()
	a, ok := r.aircraft[objectID]
	if !ok || a.isUser {
		r.mu.Unlock()
		return
	}
	wasSpawned := a.spawned
	a.last = track
	identity := a.identity
	if !wasSpawned {
		a.spawned = true
	}
	addCb, updateCb := r.OnPlaneAdd, r.OnPlaneUpdate
	r.mu.Unlock()

	if !wasSpawned {
		if addCb != nil {
			addCb(objectID, identity, track)
		}
		return
	}
	if updateCb != nil {
		updateCb(objectID, track)
	}
}

// Remove drops objectID, firing on_plane_remove iff it had been spawned
// (never for an identifying record, never for is_user).
func (r *Radar) Remove(objectID uint32) {
	r.mu.Lock()
	a, ok := r.aircraft[objectID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.aircraft, objectID)
	wasSpawned := a.spawned && !a.isUser
	cb := r.OnPlaneRemove
	r.mu.Unlock()

	if wasSpawned && cb != nil {
		cb(objectID)
	}
}

// Resync fires on_resync with every currently spawned, non-user aircraft.
func (r *Radar) Resync() {
	r.mu.Lock()
	entries := make([]ResyncEntry, 0, len(r.aircraft))
	for id, a := range r.aircraft {
		if !a.spawned || a.isUser {
			continue
		}
		entries = append(entries, ResyncEntry{ObjectID: id, Identity: a.identity, Track: a.last})
	}
	cb := r.OnResync
	r.mu.Unlock()

	if cb != nil {
		cb(entries)
	}
}

// Count returns the number of currently tracked (any lifecycle stage)
// aircraft, for metrics/diagnostics.
func (r *Radar) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aircraft)
}
