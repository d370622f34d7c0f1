package simlink

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"skybridge/internal/clock"
)

// ErrAlreadyOpen is returned by Initialize when the link is not Closed.
var ErrAlreadyOpen = errors.New("simlink: session already open")

// ErrUnknownRequest is returned by CancelDataOnSimObject for an id that is
// not currently tracked.
var ErrUnknownRequest = errors.New("simlink: unknown request id")

// State is the session lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

const (
	oneShotDeadlineMS   = 60_000
	handshakeTimeoutMS  = 5 * 60_000
	reconnectBackoffMS  = 60_000
	reconnectNeverSentinel int64 = 1<<63 - 1

	evtSimStart EventId = 0xFFFF0001
	evtSimStop  EventId = 0xFFFF0002
	evtPause    EventId = 0xFFFF0003
)

type request struct {
	id         RequestId
	model      ModelId
	objectID   uint32
	period     Period
	byType     bool
	deadlineMS int64
	cb         func(row []any)
	cbByType   func(objectID uint32, row []any)
}

// Link implements the Simulator Link session: DataModel/request
// bookkeeping and the Closed/Opening/Connected state machine, over a
// Transport boundary to the vendor channel.
type Link struct {
	mu sync.Mutex

	transport Transport
	logger    *slog.Logger

	appName         string
	state           State
	allowReconnect  bool
	nextReconnectMS int64

	nextModelID   ModelId
	nextRequestID RequestId
	nextEventID   EventId

	models   map[ModelId]*DataModel
	requests map[RequestId]*request
	events   map[EventId]func(data uint32)

	OnConnect       func(ConnectInfo)
	OnDisconnect    func()
	OnException     func(ExceptionInfo)
	OnObjectAdded   func(objectID uint32, objType ObjectType)
	OnObjectRemoved func(objectID uint32, objType ObjectType)
	OnSimStart      func()
	OnSimStop       func()
	OnPause         func(paused bool)
}

// NewLink constructs a Link over the given Transport. The link starts
// Closed; call Initialize to open a session.
func NewLink(transport Transport, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		transport:      transport,
		logger:         logger.With("component", "simlink"),
		allowReconnect: true,
		state:          StateClosed,
		models:         make(map[ModelId]*DataModel),
		requests:       make(map[RequestId]*request),
		events:         make(map[EventId]func(data uint32)),
	}
}

// State returns the current session state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetAllowReconnect toggles automatic reconnection. Setting it to false
// while Closed pins next_reconnect to NEVER.
func (l *Link) SetAllowReconnect(allow bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowReconnect = allow
	if !allow && l.state == StateClosed {
		l.nextReconnectMS = reconnectNeverSentinel
	}
}

// Initialize opens a session under appName, resetting id counters and all
// registered models/requests.
func (l *Link) Initialize(appName string) error {
	l.mu.Lock()
	if l.state != StateClosed {
		l.mu.Unlock()
		return ErrAlreadyOpen
	}
	l.appName = appName
	l.mu.Unlock()

	return l.openLocked()
}

func (l *Link) openLocked() error {
	l.mu.Lock()
	appName := l.appName
	l.mu.Unlock()

	if err := l.transport.Open(appName); err != nil {
		l.mu.Lock()
		l.state = StateClosed
		l.nextReconnectMS = clock.SteadyNowMS() + reconnectBackoffMS
		l.mu.Unlock()
		l.logger.Debug("open failed", "error", err)
		return err
	}

	l.mu.Lock()
	l.state = StateOpening
	l.nextModelID = 1
	l.nextRequestID = 1
	l.nextEventID = 1
	l.models = make(map[ModelId]*DataModel)
	l.requests = make(map[RequestId]*request)
	l.events = make(map[EventId]func(data uint32))
	// Armed in case the handshake (MsgOpen) never arrives.
	l.nextReconnectMS = clock.SteadyNowMS() + handshakeTimeoutMS
	l.mu.Unlock()

	if err := l.transport.SubscribeToSystemEvent(evtSimStart, "SimStart"); err != nil {
		l.logger.Warn("subscribe SimStart failed", "error", err)
	}
	if err := l.transport.SubscribeToSystemEvent(evtSimStop, "SimStop"); err != nil {
		l.logger.Warn("subscribe SimStop failed", "error", err)
	}
	if err := l.transport.SubscribeToSystemEvent(evtPause, "Pause"); err != nil {
		l.logger.Warn("subscribe Pause failed", "error", err)
	}

	return nil
}

// Shutdown closes the session and clears all registered callbacks and
// pending requests.
func (l *Link) Shutdown() {
	l.mu.Lock()
	l.state = StateClosed
	l.models = make(map[ModelId]*DataModel)
	l.requests = make(map[RequestId]*request)
	l.events = make(map[EventId]func(data uint32))
	l.mu.Unlock()

	if err := l.transport.Close(); err != nil {
		l.logger.Warn("transport close failed", "error", err)
	}
}

// RegisterDataModel assigns a ModelId to vars and adds each to the
// underlying data definition. On failure the model is unregistered (id
// zero) and false is returned.
func (l *Link) RegisterDataModel(vars []VarSpec) (ModelId, bool) {
	l.mu.Lock()
	id := l.nextModelID
	l.nextModelID++
	if l.nextModelID == 0 {
		l.nextModelID = 1
	}
	l.mu.Unlock()

	for _, v := range vars {
		if err := l.transport.AddToDataDefinition(id, v); err != nil {
			l.logger.Warn("data definition rejected", "model", id, "var", v.Name, "error", err)
			_ = l.transport.ClearDataDefinition(id)
			return 0, false
		}
	}

	l.mu.Lock()
	l.models[id] = &DataModel{ID: id, Vars: vars}
	l.mu.Unlock()
	return id, true
}

func (l *Link) allocRequestID() RequestId {
	id := l.nextRequestID
	l.nextRequestID++
	if l.nextRequestID == 0 {
		l.nextRequestID = 1
	}
	return id
}

// RequestDataOnSimObject subscribes cb to model's variables on objectID at
// the given period. PeriodOnce requests auto-expire after first delivery
// or at a 60s deadline.
func (l *Link) RequestDataOnSimObject(objectID uint32, model ModelId, period Period, cb func(row []any)) (RequestId, error) {
	l.mu.Lock()
	id := l.allocRequestID()
	l.mu.Unlock()

	if err := l.transport.RequestDataOnSimObject(id, model, objectID, period); err != nil {
		return 0, err
	}

	req := &request{id: id, model: model, objectID: objectID, period: period, cb: cb}
	if period == PeriodOnce {
		req.deadlineMS = clock.SteadyNowMS() + oneShotDeadlineMS
	}

	l.mu.Lock()
	l.requests[id] = req
	l.mu.Unlock()
	return id, nil
}

// RequestDataOnSimObjectType issues a non-repeating query over all objects
// of objType within radiusM, invoking cb once per matching object.
func (l *Link) RequestDataOnSimObjectType(objType ObjectType, model ModelId, radiusM float64, cb func(objectID uint32, row []any)) (RequestId, error) {
	l.mu.Lock()
	id := l.allocRequestID()
	l.mu.Unlock()

	if err := l.transport.RequestDataOnSimObjectType(id, model, radiusM, objType); err != nil {
		return 0, err
	}

	req := &request{id: id, model: model, byType: true, cbByType: cb, deadlineMS: clock.SteadyNowMS() + oneShotDeadlineMS}
	l.mu.Lock()
	l.requests[id] = req
	l.mu.Unlock()
	return id, nil
}

// CancelDataOnSimObject stops a repeating request.
func (l *Link) CancelDataOnSimObject(id RequestId) error {
	l.mu.Lock()
	_, ok := l.requests[id]
	delete(l.requests, id)
	l.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}
	return l.transport.CancelDataOnSimObject(id)
}

// MapEvent registers a named simulator event and an optional callback
// invoked when that event is later observed via a system-event dispatch.
func (l *Link) MapEvent(name string, cb func(data uint32)) (EventId, error) {
	l.mu.Lock()
	id := l.nextEventID
	l.nextEventID++
	if l.nextEventID == 0 {
		l.nextEventID = 1
	}
	l.mu.Unlock()

	if err := l.transport.MapClientEventToSimEvent(id, name); err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.events[id] = cb
	l.mu.Unlock()
	return id, nil
}

// AddEventToGroup assigns evt to a notification group for transmit
// ordering.
func (l *Link) AddEventToGroup(group uint32, evt EventId) error {
	return l.transport.AddClientEventToNotificationGroup(group, evt)
}

// TransmitEvent fires evt at objectID carrying value.
func (l *Link) TransmitEvent(objectID uint32, evt EventId, value uint32) error {
	return l.transport.TransmitClientEvent(objectID, evt, value)
}

// TransmitEventEx fires evt at objectID through an explicit group.
func (l *Link) TransmitEventEx(objectID uint32, evt EventId, value uint32, group uint32) error {
	return l.transport.TransmitClientEventEx(objectID, evt, value, group)
}

// RunCallbacks pumps at most one event from the transport. It returns
// whether more may be immediately pending; it never blocks.
func (l *Link) RunCallbacks() bool {
	l.mu.Lock()
	state := l.state
	now := clock.SteadyNowMS()
	l.mu.Unlock()

	if state == StateClosed {
		l.mu.Lock()
		due := l.allowReconnect && l.nextReconnectMS != reconnectNeverSentinel && now >= l.nextReconnectMS
		l.mu.Unlock()
		if due {
			_ = l.openLocked()
		}
		return false
	}

	if state == StateOpening {
		l.mu.Lock()
		handshakeExpired := now >= l.nextReconnectMS
		l.mu.Unlock()
		if handshakeExpired {
			_ = l.transport.Close()
			_ = l.openLocked()
			return false
		}
	}

	msg, ok, err := l.transport.Poll()
	if err != nil {
		l.logger.Error("transport poll failed", "error", err)
		l.disconnect()
		return false
	}
	if !ok {
		l.reapExpired(now)
		return false
	}

	l.dispatch(msg)
	return true
}

func (l *Link) reapExpired(now int64) {
	l.mu.Lock()
	var expired []RequestId
	for id, req := range l.requests {
		if req.deadlineMS != 0 && now >= req.deadlineMS {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(l.requests, id)
	}
	l.mu.Unlock()
}

func (l *Link) disconnect() {
	l.mu.Lock()
	wasConnected := l.state != StateClosed
	l.state = StateClosed
	if l.allowReconnect {
		l.nextReconnectMS = clock.SteadyNowMS() + reconnectBackoffMS
	} else {
		l.nextReconnectMS = reconnectNeverSentinel
	}
	cb := l.OnDisconnect
	l.mu.Unlock()

	if wasConnected && cb != nil {
		cb()
	}
}

func (l *Link) dispatch(msg Message) {
	switch msg.Kind {
	case MsgOpen:
		l.mu.Lock()
		l.state = StateConnected
		cb := l.OnConnect
		l.mu.Unlock()
		if cb != nil {
			cb(ConnectInfo{ApplicationName: msg.ApplicationName})
		}

	case MsgQuit:
		l.disconnect()

	case MsgException:
		l.mu.Lock()
		cb := l.OnException
		l.mu.Unlock()
		if cb != nil {
			cb(ExceptionInfo{
				Code:     msg.ExceptionCode,
				SendID:   msg.SendID,
				ArgIndex: msg.ArgIndex,
				Name:     exceptionName(msg.ExceptionCode),
			})
		}

	case MsgObjectData:
		l.mu.Lock()
		req, found := l.requests[msg.RequestID]
		if found && req.period == PeriodOnce {
			delete(l.requests, msg.RequestID)
		}
		l.mu.Unlock()
		if found && req.cb != nil {
			req.cb(msg.Row)
		}

	case MsgObjectDataByType:
		l.mu.Lock()
		req, found := l.requests[msg.RequestID]
		last := msg.EntryNumber+1 >= msg.OutOf
		if found && last {
			delete(l.requests, msg.RequestID)
		}
		l.mu.Unlock()
		if found && req.cbByType != nil {
			req.cbByType(msg.ObjectID, msg.Row)
		}

	case MsgObjectAdded:
		l.mu.Lock()
		cb := l.OnObjectAdded
		l.mu.Unlock()
		if cb != nil {
			cb(msg.ObjectID, msg.AddedRemovedType)
		}

	case MsgObjectRemoved:
		l.mu.Lock()
		cb := l.OnObjectRemoved
		l.mu.Unlock()
		if cb != nil {
			cb(msg.ObjectID, msg.AddedRemovedType)
		}

	case MsgSystemEvent:
		l.mu.Lock()
		evtCb := l.events[msg.EventID]
		var builtin func()
		var pauseCb func(bool)
		switch msg.EventID {
		case evtSimStart:
			builtin = l.OnSimStart
		case evtSimStop:
			builtin = l.OnSimStop
		case evtPause:
			pauseCb = l.OnPause
		}
		l.mu.Unlock()

		if evtCb != nil {
			evtCb(msg.Data)
		}
		if builtin != nil {
			builtin()
		}
		if pauseCb != nil {
			pauseCb(msg.Data != 0)
		}
	}
}

func exceptionName(code uint32) string {
	if name, ok := exceptionNames[code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", code)
}

// exceptionNames covers the common SimConnect exception codes; unmapped
// codes fall back to a numeric placeholder rather than failing the call.
var exceptionNames = map[uint32]string{
	0:  "NONE",
	1:  "ERROR",
	2:  "SIZE_MISMATCH",
	3:  "UNRECOGNIZED_ID",
	4:  "UNOPENED",
	5:  "VERSION_MISMATCH",
	6:  "TOO_MANY_GROUPS",
	7:  "NAME_UNRECOGNIZED",
	8:  "TOO_MANY_EVENT_NAMES",
	9:  "EVENT_ID_DUPLICATE",
	10: "TOO_MANY_MAPS",
	11: "TOO_MANY_OBJECTS",
	12: "TOO_MANY_REQUESTS",
	13: "CREATE_OBJECT_FAILED",
	14: "OUT_OF_BOUNDS",
	15: "ALREADY_SUBSCRIBED",
	16: "INVALID_DATA_TYPE",
	17: "INVALID_DATA_SIZE",
	18: "DATA_ERROR",
	19: "INVALID_ARRAY",
	20: "ALREADY_CREATED",
}
