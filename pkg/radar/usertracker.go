package radar

import (
	"log/slog"
	"sync"

	"skybridge/pkg/simlink"
)

// UserState is the single-object lifecycle state of the user aircraft.
type UserState int

const (
	UserNotSet UserState = iota
	UserIdentifying
	UserTracking
)

func (s UserState) String() string {
	switch s {
	case UserIdentifying:
		return "identifying"
	case UserTracking:
		return "tracking"
	default:
		return "not_set"
	}
}

// UserTracker tracks the single aircraft the simulator reports as the
// player's own, grounded on the LocalAircraft state machine: NotSet ->
// Identifying -> Tracking, with a debounced first sample gating the
// add event.
type UserTracker struct {
	mu sync.Mutex

	requester Requester
	logger    *slog.Logger

	identModel  simlink.ModelId
	trackModel  simlink.ModelId
	modelsReady bool

	state    UserState
	objectID uint32
	identity Identity
	last     Track
	spawned  bool

	trackRequest simlink.RequestId

	OnAdd    func(objectID uint32, identity Identity, track Track)
	OnUpdate func(objectID uint32, track Track)
	OnRemove func(objectID uint32)
	OnResync func(objectID uint32, identity Identity, track Track)
}

// NewUserTracker constructs a UserTracker bound to requester. Call
// RegisterModels once the link is connected before the first Set.
func NewUserTracker(requester Requester, logger *slog.Logger) *UserTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserTracker{requester: requester, logger: logger.With("component", "user_tracker"), state: UserNotSet}
}

// RegisterModels registers the ident and tracking DataModels. Must
// succeed before Set is called.
func (t *UserTracker) RegisterModels() bool {
	identModel, ok := t.requester.RegisterDataModel(identVars)
	if !ok {
		return false
	}
	trackModel, ok := t.requester.RegisterDataModel(trackVars)
	if !ok {
		return false
	}
	t.mu.Lock()
	t.identModel = identModel
	t.trackModel = trackModel
	t.modelsReady = true
	t.mu.Unlock()
	return true
}

// Set designates objectID as the user aircraft. A no-op if objectID is
// already the current one; otherwise the prior aircraft is removed
// (firing on_remove if spawned) and identification of the new one begins.
func (t *UserTracker) Set(objectID uint32) {
	t.mu.Lock()
	if t.state != UserNotSet && t.objectID == objectID {
		t.mu.Unlock()
		return
	}
	modelsReady := t.modelsReady
	identModel := t.identModel
	t.mu.Unlock()

	t.Remove()

	if !modelsReady {
		t.logger.Warn("Set called before RegisterModels", "object_id", objectID)
		return
	}

	t.mu.Lock()
	t.state = UserIdentifying
	t.objectID = objectID
	t.mu.Unlock()

	_, err := t.requester.RequestDataOnSimObject(objectID, identModel, simlink.PeriodOnce, func(row []any) {
		t.handleIdent(objectID, row)
	})
	if err != nil {
		t.logger.Warn("ident request failed", "object_id", objectID, "error", err)
	}
}

func (t *UserTracker) handleIdent(objectID uint32, row []any) {
	identity, _ := identityFromRow(row)

	t.mu.Lock()
	if t.state == UserNotSet || t.objectID != objectID {
		t.mu.Unlock()
		return
	}
	t.identity = identity
	trackModel := t.trackModel
	t.mu.Unlock()

	reqID, err := t.requester.RequestDataOnSimObject(objectID, trackModel, simlink.PeriodSecond, func(row []any) {
		t.handleTrack(objectID, row)
	})
	if err != nil {
		t.logger.Warn("track request failed", "object_id", objectID, "error", err)
		return
	}
	t.mu.Lock()
	t.trackRequest = reqID
	t.mu.Unlock()
}

func (t *UserTracker) handleTrack(objectID uint32, row []any) {
	track := trackFromRow(row)
	if inLoadingLimbo(track) {
		return
	}

	t.mu.Lock()
	if t.objectID != objectID || t.state == UserNotSet {
		t.mu.Unlock()
		return
	}
	wasSpawned := t.spawned
	t.last = track
	identity := t.identity
	if !wasSpawned {
		t.spawned = true
		t.state = UserTracking
	}
	addCb, updateCb := t.OnAdd, t.OnUpdate
	t.mu.Unlock()

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

// Remove clears all tracked state, firing on_remove iff the aircraft had
// been spawned.
func (t *UserTracker) Remove() {
	t.mu.Lock()
	if t.state == UserNotSet {
		t.mu.Unlock()
		return
	}
	objectID := t.objectID
	wasSpawned := t.spawned
	trackRequest := t.trackRequest
	cb := t.OnRemove
	t.state = UserNotSet
	t.objectID = 0
	t.identity = Identity{}
	t.last = Track{}
	t.spawned = false
	t.trackRequest = 0
	t.mu.Unlock()

	if trackRequest != 0 {
		_ = t.requester.CancelDataOnSimObject(trackRequest)
	}
	if wasSpawned && cb != nil {
		cb(objectID)
	}
}

// Resync fires a single synthetic on_resync carrying the last accepted
// sample, iff the aircraft is currently spawned.
func (t *UserTracker) Resync() {
	t.mu.Lock()
	if !t.spawned {
		t.mu.Unlock()
		return
	}
	objectID, identity, track := t.objectID, t.identity, t.last
	cb := t.OnResync
	t.mu.Unlock()

	if cb != nil {
		cb(objectID, identity, track)
	}
}

// State returns the current lifecycle state.
func (t *UserTracker) State() UserState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Spawned reports whether Resync would fire an on_resync callback.
func (t *UserTracker) Spawned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spawned
}

// ObjectID returns the currently tracked user object id, or 0 if none is
// set. Callers use it to filter a simulator-wide object-removed event down
// to "is this the user aircraft".
func (t *UserTracker) ObjectID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == UserNotSet {
		return 0
	}
	return t.objectID
}
