package simlink

// Transport is the narrow boundary to the vendor-provided telemetry
// channel (SimConnect or a stand-in). Everything on the other side of this
// interface is out of scope: simlink never reaches past it.
type Transport interface {
	// Open establishes a session under the given application name.
	Open(appName string) error
	// Close tears down the session. Safe to call when not open.
	Close() error

	// AddToDataDefinition appends one variable to a data definition. The
	// model id groups a run of calls into one named schema.
	AddToDataDefinition(model ModelId, spec VarSpec) error
	// ClearDataDefinition removes a data definition so its id can be
	// reused with a new variable list.
	ClearDataDefinition(model ModelId) error

	// RequestDataOnSimObject subscribes to a model on a specific object.
	RequestDataOnSimObject(req RequestId, model ModelId, objectID uint32, period Period) error
	// RequestDataOnSimObjectType issues a one-shot query over all objects
	// of a type within radiusM of the user aircraft.
	RequestDataOnSimObjectType(req RequestId, model ModelId, radiusM float64, objType ObjectType) error
	// CancelDataOnSimObject stops a previously issued repeating request.
	CancelDataOnSimObject(req RequestId) error

	// MapClientEventToSimEvent binds a client-side EventId to a named
	// simulator event.
	MapClientEventToSimEvent(evt EventId, name string) error
	// AddClientEventToNotificationGroup assigns an event to a priority
	// group for transmit ordering.
	AddClientEventToNotificationGroup(group uint32, evt EventId) error
	// TransmitClientEvent fires a mapped event at an object with a data
	// value.
	TransmitClientEvent(objectID uint32, evt EventId, value uint32) error
	// TransmitClientEventEx is TransmitClientEvent against an explicit
	// notification group rather than the object's default.
	TransmitClientEventEx(objectID uint32, evt EventId, value uint32, group uint32) error

	// SubscribeToSystemEvent subscribes to a named system event
	// (SimStart, SimStop, Pause, ObjectAdded, ObjectRemoved, ...).
	SubscribeToSystemEvent(evt EventId, name string) error

	// Poll retrieves at most one pending message. ok is false when
	// nothing was waiting; it must never block.
	Poll() (msg Message, ok bool, err error)
}

// MessageKind tags the variant of a decoded Message.
type MessageKind int

const (
	MsgNone MessageKind = iota
	MsgOpen
	MsgQuit
	MsgException
	MsgObjectData
	MsgObjectDataByType
	MsgObjectAdded
	MsgObjectRemoved
	MsgSimStart
	MsgSimStop
	MsgPause
	MsgSystemEvent
)

// Message is the decoded form of one dispatch from the transport. Fields
// are populated according to Kind; zero value elsewhere.
type Message struct {
	Kind MessageKind

	// MsgOpen
	ApplicationName string

	// MsgException
	ExceptionCode uint32
	SendID        uint32
	ArgIndex      uint32

	// MsgObjectData / MsgObjectDataByType
	RequestID   RequestId
	ObjectID    uint32
	ObjType     ObjectType
	Row         []any // decoded per the registered DataModel's Vars order
	EntryNumber uint32
	OutOf       uint32

	// MsgObjectAdded / MsgObjectRemoved
	AddedRemovedType ObjectType

	// MsgSystemEvent
	EventID EventId
	Data    uint32
}
