//go:build windows

// Package simconnect provides direct bindings to SimConnect.dll and an
// adapter implementing simlink.Transport over them.
package simconnect

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"
)

var (
	dll                                *syscall.LazyDLL
	procOpen                           *syscall.LazyProc
	procClose                          *syscall.LazyProc
	procAddToDataDefinition            *syscall.LazyProc
	procClearDataDefinition            *syscall.LazyProc
	procRequestDataOnSimObject         *syscall.LazyProc
	procRequestDataOnSimObjectType     *syscall.LazyProc
	procGetNextDispatch                *syscall.LazyProc
	procMapClientEventToSimEvent       *syscall.LazyProc
	procAddClientEventToNotifGroup     *syscall.LazyProc
	procTransmitClientEvent            *syscall.LazyProc
	procTransmitClientEventEx          *syscall.LazyProc
	procSubscribeToSystemEvent         *syscall.LazyProc
)

// Error codes
const (
	EFAIL = 0x80004005
)

// Recv IDs
const (
	recvIDNull                uint32 = 0
	recvIDException           uint32 = 1
	recvIDOpen                uint32 = 2
	recvIDQuit                uint32 = 3
	recvIDEvent               uint32 = 4
	recvIDSimobjectData       uint32 = 8
	recvIDSimobjectDataByType uint32 = 9
	recvIDAssignedObjectID    uint32 = 12
	recvIDObjectAdded         uint32 = 19
	recvIDObjectRemoved       uint32 = 20
)

// FindDLL returns the path to SimConnect.dll: the embedded copy if bundled
// at build time, else an SDK install location.
func FindDLL() (string, error) {
	if path, err := extractEmbeddedDLL(); err == nil {
		return path, nil
	}

	var paths []string
	if sdkPath := os.Getenv("MSFS_SDK"); sdkPath != "" {
		paths = append(paths, filepath.Join(sdkPath, "SimConnect SDK", "lib", "SimConnect.dll"))
	}
	paths = append(paths,
		`C:\MSFS 2024 SDK\SimConnect SDK\lib\SimConnect.dll`,
		`C:\MSFS SDK\SimConnect SDK\lib\SimConnect.dll`,
		`C:\Program Files (x86)\Microsoft Flight Simulator SDK\SimConnect SDK\lib\SimConnect.dll`,
	)
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("SimConnect.dll not found; embedded DLL missing and no SDK installed")
}

// LoadDLL loads SimConnect.dll from path and resolves the procedures used
// by this adapter.
func LoadDLL(path string) error {
	dll = syscall.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return fmt.Errorf("failed to load SimConnect.dll: %w", err)
	}

	procOpen = dll.NewProc("SimConnect_Open")
	procClose = dll.NewProc("SimConnect_Close")
	procAddToDataDefinition = dll.NewProc("SimConnect_AddToDataDefinition")
	procClearDataDefinition = dll.NewProc("SimConnect_ClearDataDefinition")
	procRequestDataOnSimObject = dll.NewProc("SimConnect_RequestDataOnSimObject")
	procRequestDataOnSimObjectType = dll.NewProc("SimConnect_RequestDataOnSimObjectType")
	procGetNextDispatch = dll.NewProc("SimConnect_GetNextDispatch")
	procMapClientEventToSimEvent = dll.NewProc("SimConnect_MapClientEventToSimEvent")
	procAddClientEventToNotifGroup = dll.NewProc("SimConnect_AddClientEventToNotificationGroup")
	procTransmitClientEvent = dll.NewProc("SimConnect_TransmitClientEvent")
	procTransmitClientEventEx = dll.NewProc("SimConnect_TransmitClientEvent_EX1")
	procSubscribeToSystemEvent = dll.NewProc("SimConnect_SubscribeToSystemEvent")
	return nil
}

// IsLoaded reports whether the DLL and its procedures are resolved.
func IsLoaded() bool {
	return dll != nil && procOpen != nil
}

func dllDataType(kind varKindWire) uint32 { return uint32(kind) }

// varKindWire mirrors SIMCONNECT_DATATYPE values.
type varKindWire uint32

const (
	wireInt32   varKindWire = 1
	wireInt64   varKindWire = 2
	wireFloat32 varKindWire = 3
	wireFloat64 varKindWire = 4
	wireString8 varKindWire = 5
	wireString32 varKindWire = 6
	wireString64 varKindWire = 7
	wireString128 varKindWire = 8
	wireString256 varKindWire = 9
)

func openSim(name string) (uintptr, error) {
	if !IsLoaded() {
		return 0, fmt.Errorf("SimConnect DLL not loaded")
	}
	var handle uintptr
	namePtr, _ := syscall.UTF16PtrFromString(name)

	r1, _, err := procOpen.Call(
		uintptr(unsafe.Pointer(&handle)),
		uintptr(unsafe.Pointer(namePtr)),
		0, 0, 0, 0,
	)
	if int32(r1) < 0 {
		return 0, fmt.Errorf("SimConnect_Open failed: %v (0x%x)", err, r1)
	}
	return handle, nil
}

func closeSim(handle uintptr) error {
	if !IsLoaded() {
		return nil
	}
	r1, _, err := procClose.Call(handle)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_Close failed: %v (0x%x)", err, r1)
	}
	return nil
}

func addToDataDefinition(handle uintptr, defineID uint32, datumName, unitsName string, datumType varKindWire) error {
	namePtr := append([]byte(datumName), 0)
	var unitsArg uintptr
	if unitsName != "" {
		unitsPtr := append([]byte(unitsName), 0)
		unitsArg = uintptr(unsafe.Pointer(&unitsPtr[0]))
	}

	r1, _, err := procAddToDataDefinition.Call(
		handle,
		uintptr(defineID),
		uintptr(unsafe.Pointer(&namePtr[0])),
		unitsArg,
		uintptr(dllDataType(datumType)),
		uintptr(0),
		uintptr(0xFFFFFFFF),
	)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_AddToDataDefinition failed for %s: %v (0x%x)", datumName, err, r1)
	}
	return nil
}

func clearDataDefinition(handle uintptr, defineID uint32) error {
	r1, _, err := procClearDataDefinition.Call(handle, uintptr(defineID))
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_ClearDataDefinition failed: %v (0x%x)", err, r1)
	}
	return nil
}

func requestDataOnSimObject(handle uintptr, requestID, defineID, objectID, period uint32) error {
	r1, _, err := procRequestDataOnSimObject.Call(
		handle, uintptr(requestID), uintptr(defineID), uintptr(objectID), uintptr(period),
		0, 0, 0, 0,
	)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_RequestDataOnSimObject failed: %v (0x%x)", err, r1)
	}
	return nil
}

func requestDataOnSimObjectType(handle uintptr, requestID, defineID uint32, radiusM float64, objType uint32) error {
	r1, _, err := procRequestDataOnSimObjectType.Call(
		handle, uintptr(requestID), uintptr(defineID), uintptr(uint32(radiusM)), uintptr(objType),
	)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_RequestDataOnSimObjectType failed: %v (0x%x)", err, r1)
	}
	return nil
}

func getNextDispatch(handle uintptr) (ppData unsafe.Pointer, cbData uint32, err error) {
	r1, _, _ := procGetNextDispatch.Call(
		handle,
		uintptr(unsafe.Pointer(&ppData)),
		uintptr(unsafe.Pointer(&cbData)),
	)
	if uint32(r1) == EFAIL {
		return nil, 0, nil
	}
	if int32(r1) < 0 {
		return nil, 0, fmt.Errorf("SimConnect_GetNextDispatch failed: 0x%x", r1)
	}
	return ppData, cbData, nil
}

func mapClientEventToSimEvent(handle uintptr, eventID uint32, name string) error {
	namePtr := append([]byte(name), 0)
	r1, _, err := procMapClientEventToSimEvent.Call(handle, uintptr(eventID), uintptr(unsafe.Pointer(&namePtr[0])))
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_MapClientEventToSimEvent failed for %s: %v (0x%x)", name, err, r1)
	}
	return nil
}

func addClientEventToNotificationGroup(handle uintptr, group, eventID uint32) error {
	r1, _, err := procAddClientEventToNotifGroup.Call(handle, uintptr(group), uintptr(eventID), 0)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_AddClientEventToNotificationGroup failed: %v (0x%x)", err, r1)
	}
	return nil
}

func transmitClientEvent(handle uintptr, objectID, eventID, value uint32) error {
	r1, _, err := procTransmitClientEvent.Call(handle, uintptr(objectID), uintptr(eventID), uintptr(value), uintptr(1) /* group priority */, 0)
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_TransmitClientEvent failed: %v (0x%x)", err, r1)
	}
	return nil
}

func transmitClientEventEx(handle uintptr, objectID, eventID, value, group uint32) error {
	r1, _, err := procTransmitClientEventEx.Call(handle, uintptr(objectID), uintptr(eventID), uintptr(group), uintptr(value))
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_TransmitClientEvent_EX1 failed: %v (0x%x)", err, r1)
	}
	return nil
}

func subscribeToSystemEvent(handle uintptr, eventID uint32, name string) error {
	namePtr := append([]byte(name), 0)
	r1, _, err := procSubscribeToSystemEvent.Call(handle, uintptr(eventID), uintptr(unsafe.Pointer(&namePtr[0])))
	if int32(r1) < 0 {
		return fmt.Errorf("SimConnect_SubscribeToSystemEvent failed for %s: %v (0x%x)", name, err, r1)
	}
	return nil
}
