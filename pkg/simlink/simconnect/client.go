//go:build windows

package simconnect

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"skybridge/pkg/simlink"
)

// Adapter implements simlink.Transport over the real SimConnect.dll via
// syscall.LazyDLL bindings.
type Adapter struct {
	mu       sync.Mutex
	handle   uintptr
	dllPath  string
	models   map[simlink.ModelId][]simlink.VarSpec
	opened   bool
	logger   *slog.Logger
}

// NewAdapter constructs a SimConnect Transport adapter. If dllPath is
// empty, FindDLL is used to auto-discover it.
func NewAdapter(dllPath string, logger *slog.Logger) (*Adapter, error) {
	if dllPath == "" {
		var err error
		dllPath, err = FindDLL()
		if err != nil {
			return nil, fmt.Errorf("failed to find SimConnect.dll: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := LoadDLL(dllPath); err != nil {
		return nil, err
	}
	return &Adapter{dllPath: dllPath, models: make(map[simlink.ModelId][]simlink.VarSpec), logger: logger.With("component", "simconnect")}, nil
}

func (a *Adapter) Open(appName string) error {
	handle, err := openSim(appName)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.handle = handle
	a.opened = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	handle := a.handle
	a.opened = false
	a.handle = 0
	a.mu.Unlock()
	if handle == 0 {
		return nil
	}
	return closeSim(handle)
}

func toWireKind(k simlink.VarKind) varKindWire {
	switch k {
	case simlink.VarInt32:
		return wireInt32
	case simlink.VarInt64:
		return wireInt64
	case simlink.VarFloat32:
		return wireFloat32
	case simlink.VarFloat64:
		return wireFloat64
	case simlink.VarString8:
		return wireString8
	case simlink.VarString32:
		return wireString32
	case simlink.VarString64:
		return wireString64
	case simlink.VarString128:
		return wireString128
	default:
		return wireString256
	}
}

func (a *Adapter) AddToDataDefinition(model simlink.ModelId, spec simlink.VarSpec) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()

	if err := addToDataDefinition(handle, uint32(model), spec.Name, spec.Units, toWireKind(spec.Kind)); err != nil {
		return err
	}

	a.mu.Lock()
	a.models[model] = append(a.models[model], spec)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) ClearDataDefinition(model simlink.ModelId) error {
	a.mu.Lock()
	handle := a.handle
	delete(a.models, model)
	a.mu.Unlock()
	return clearDataDefinition(handle, uint32(model))
}

func (a *Adapter) RequestDataOnSimObject(req simlink.RequestId, model simlink.ModelId, objectID uint32, period simlink.Period) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return requestDataOnSimObject(handle, uint32(req), uint32(model), objectID, wirePeriod(period))
}

func (a *Adapter) RequestDataOnSimObjectType(req simlink.RequestId, model simlink.ModelId, radiusM float64, objType simlink.ObjectType) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return requestDataOnSimObjectType(handle, uint32(req), uint32(model), radiusM, wireObjectType(objType))
}

func (a *Adapter) CancelDataOnSimObject(req simlink.RequestId) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	// A period-NEVER re-request cancels a repeating subscription.
	return requestDataOnSimObject(handle, uint32(req), 0, 0, wirePeriod(simlink.PeriodNever))
}

func (a *Adapter) MapClientEventToSimEvent(evt simlink.EventId, name string) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return mapClientEventToSimEvent(handle, uint32(evt), name)
}

func (a *Adapter) AddClientEventToNotificationGroup(group uint32, evt simlink.EventId) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return addClientEventToNotificationGroup(handle, group, uint32(evt))
}

func (a *Adapter) TransmitClientEvent(objectID uint32, evt simlink.EventId, value uint32) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return transmitClientEvent(handle, objectID, uint32(evt), value)
}

func (a *Adapter) TransmitClientEventEx(objectID uint32, evt simlink.EventId, value, group uint32) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return transmitClientEventEx(handle, objectID, uint32(evt), value, group)
}

func (a *Adapter) SubscribeToSystemEvent(evt simlink.EventId, name string) error {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	return subscribeToSystemEvent(handle, uint32(evt), name)
}

// Poll retrieves and decodes at most one dispatch message.
func (a *Adapter) Poll() (simlink.Message, bool, error) {
	a.mu.Lock()
	handle := a.handle
	a.mu.Unlock()
	if handle == 0 {
		return simlink.Message{}, false, nil
	}

	ppData, _, err := getNextDispatch(handle)
	if err != nil {
		return simlink.Message{}, false, err
	}
	if ppData == nil {
		return simlink.Message{}, false, nil
	}

	return a.decode(ppData), true, nil
}

func (a *Adapter) decode(ppData unsafe.Pointer) simlink.Message {
	header := (*recv)(ppData)

	switch header.ID {
	case recvIDOpen:
		open := (*recvOpen)(ppData)
		return simlink.Message{Kind: simlink.MsgOpen, ApplicationName: cString(open.ApplicationName[:])}

	case recvIDQuit:
		return simlink.Message{Kind: simlink.MsgQuit}

	case recvIDException:
		ex := (*recvException)(ppData)
		return simlink.Message{Kind: simlink.MsgException, ExceptionCode: ex.Exception, SendID: ex.SendID, ArgIndex: ex.Index}

	case recvIDEvent:
		evt := (*recvEvent)(ppData)
		return simlink.Message{Kind: simlink.MsgSystemEvent, EventID: simlink.EventId(evt.UEventID), Data: evt.Data}

	case recvIDObjectAdded, recvIDObjectRemoved:
		evt := (*recvEventObjectAddRemove)(ppData)
		kind := simlink.MsgObjectAdded
		if header.ID == recvIDObjectRemoved {
			kind = simlink.MsgObjectRemoved
		}
		return simlink.Message{Kind: kind, ObjectID: evt.Data, AddedRemovedType: wireToObjectType(evt.Type)}

	case recvIDSimobjectData, recvIDSimobjectDataByType:
		data := (*recvSimobjectData)(ppData)
		payload := unsafe.Pointer(uintptr(ppData) + unsafe.Sizeof(recvSimobjectData{}))

		a.mu.Lock()
		vars := a.models[simlink.ModelId(data.DefineID)]
		a.mu.Unlock()

		model := simlink.DataModel{ID: simlink.ModelId(data.DefineID), Vars: vars}
		size := 0
		for _, v := range vars {
			size += v.Kind.Stride()
		}
		raw := unsafe.Slice((*byte)(payload), size)
		row, err := simlink.DecodeRow(model, raw)
		if err != nil {
			a.logger.Warn("failed to decode object data", "error", err)
			row = nil
		}

		kind := simlink.MsgObjectData
		if header.ID == recvIDSimobjectDataByType {
			kind = simlink.MsgObjectDataByType
		}
		return simlink.Message{
			Kind:        kind,
			RequestID:   simlink.RequestId(data.RequestID),
			ObjectID:    data.ObjectID,
			Row:         row,
			EntryNumber: data.EntryNumber,
			OutOf:       data.OutOf,
		}

	default:
		return simlink.Message{Kind: simlink.MsgNone}
	}
}

func cString(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		return string(b[:idx])
	}
	return string(b)
}

func wirePeriod(p simlink.Period) uint32 {
	switch p {
	case simlink.PeriodOnce:
		return 1
	case simlink.PeriodVisualFrame:
		return 2
	case simlink.PeriodSimFrame:
		return 3
	case simlink.PeriodSecond:
		return 4
	default:
		return 0
	}
}

func wireObjectType(t simlink.ObjectType) uint32 {
	switch t {
	case simlink.ObjectTypeAll:
		return 1
	case simlink.ObjectTypeAircraft:
		return 2
	case simlink.ObjectTypeHelicopter:
		return 3
	case simlink.ObjectTypeBoat:
		return 4
	case simlink.ObjectTypeGround:
		return 5
	default:
		return 0
	}
}

func wireToObjectType(w uint32) simlink.ObjectType {
	switch w {
	case 1:
		return simlink.ObjectTypeAll
	case 2:
		return simlink.ObjectTypeAircraft
	case 3:
		return simlink.ObjectTypeHelicopter
	case 4:
		return simlink.ObjectTypeBoat
	case 5:
		return simlink.ObjectTypeGround
	default:
		return simlink.ObjectTypeUser
	}
}
