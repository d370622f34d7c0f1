package simlink

import (
	"testing"

	"skybridge/internal/clock"
)

// fakeTransport is a minimal, single-test-case Transport double. It lets
// tests enqueue Messages and inspect calls without any real vendor
// dependency.
type fakeTransport struct {
	openErr  error
	opened   bool
	queue    []Message
	requests []RequestId
}

func (f *fakeTransport) Open(appName string) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}
func (f *fakeTransport) Close() error { f.opened = false; return nil }
func (f *fakeTransport) AddToDataDefinition(ModelId, VarSpec) error       { return nil }
func (f *fakeTransport) ClearDataDefinition(ModelId) error                { return nil }
func (f *fakeTransport) RequestDataOnSimObject(req RequestId, _ ModelId, _ uint32, _ Period) error {
	f.requests = append(f.requests, req)
	return nil
}
func (f *fakeTransport) RequestDataOnSimObjectType(req RequestId, _ ModelId, _ float64, _ ObjectType) error {
	f.requests = append(f.requests, req)
	return nil
}
func (f *fakeTransport) CancelDataOnSimObject(RequestId) error { return nil }
func (f *fakeTransport) MapClientEventToSimEvent(EventId, string) error { return nil }
func (f *fakeTransport) AddClientEventToNotificationGroup(uint32, EventId) error { return nil }
func (f *fakeTransport) TransmitClientEvent(uint32, EventId, uint32) error { return nil }
func (f *fakeTransport) TransmitClientEventEx(uint32, EventId, uint32, uint32) error { return nil }
func (f *fakeTransport) SubscribeToSystemEvent(EventId, string) error { return nil }

func (f *fakeTransport) Poll() (Message, bool, error) {
	if len(f.queue) == 0 {
		return Message{}, false, nil
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, true, nil
}

func (f *fakeTransport) push(msg Message) { f.queue = append(f.queue, msg) }

func TestInitializeOpensAndHandshakes(t *testing.T) {
	ft := &fakeTransport{}
	link := NewLink(ft, nil)

	if err := link.Initialize("skybridge"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if link.State() != StateOpening {
		t.Fatalf("expected Opening, got %v", link.State())
	}

	connected := false
	link.OnConnect = func(ConnectInfo) { connected = true }

	ft.push(Message{Kind: MsgOpen, ApplicationName: "skybridge"})
	link.RunCallbacks()

	if !connected {
		t.Error("expected OnConnect to fire")
	}
	if link.State() != StateConnected {
		t.Fatalf("expected Connected, got %v", link.State())
	}
}

func TestInitializeFailureArmsBackoff(t *testing.T) {
	ft := &fakeTransport{openErr: errTestOpen}
	link := NewLink(ft, nil)

	if err := link.Initialize("skybridge"); err == nil {
		t.Fatal("expected Initialize to fail")
	}
	if link.State() != StateClosed {
		t.Fatalf("expected Closed after failed open, got %v", link.State())
	}

	link.mu.Lock()
	next := link.nextReconnectMS
	link.mu.Unlock()
	if next <= clock.SteadyNowMS() {
		t.Error("expected reconnect to be armed in the future")
	}
}

func TestDisconnectArmsReconnectUnlessDisallowed(t *testing.T) {
	ft := &fakeTransport{}
	link := NewLink(ft, nil)
	_ = link.Initialize("skybridge")
	ft.push(Message{Kind: MsgOpen})
	link.RunCallbacks()

	link.SetAllowReconnect(false)
	ft.push(Message{Kind: MsgQuit})
	link.RunCallbacks()

	link.mu.Lock()
	next := link.nextReconnectMS
	link.mu.Unlock()
	if next != reconnectNeverSentinel {
		t.Errorf("expected NEVER sentinel, got %d", next)
	}
}

func TestRequestDataOnSimObjectOnceAutoRemoves(t *testing.T) {
	ft := &fakeTransport{}
	link := NewLink(ft, nil)
	_ = link.Initialize("skybridge")
	ft.push(Message{Kind: MsgOpen})
	link.RunCallbacks()

	var got []any
	id, err := link.RequestDataOnSimObject(0, 1, PeriodOnce, func(row []any) { got = row })
	if err != nil {
		t.Fatalf("RequestDataOnSimObject failed: %v", err)
	}

	ft.push(Message{Kind: MsgObjectData, RequestID: id, Row: []any{42.0}})
	link.RunCallbacks()

	if got == nil || got[0].(float64) != 42.0 {
		t.Fatalf("expected callback with row, got %v", got)
	}

	link.mu.Lock()
	_, stillTracked := link.requests[id]
	link.mu.Unlock()
	if stillTracked {
		t.Error("expected one-shot request to be removed after delivery")
	}
}

func TestOneShotDeadlineExpires(t *testing.T) {
	ft := &fakeTransport{}
	link := NewLink(ft, nil)
	_ = link.Initialize("skybridge")
	ft.push(Message{Kind: MsgOpen})
	link.RunCallbacks()

	id, _ := link.RequestDataOnSimObject(0, 1, PeriodOnce, func([]any) {})

	link.mu.Lock()
	// A non-zero deadline already in the past; zero marks a request with
	// no deadline, which SteadyNowMS()-1 would be one millisecond after
	// process start.
	link.requests[id].deadlineMS = -1
	link.mu.Unlock()

	link.RunCallbacks() // no message queued: triggers reapExpired

	link.mu.Lock()
	_, stillTracked := link.requests[id]
	link.mu.Unlock()
	if stillTracked {
		t.Error("expected expired one-shot request to be dropped")
	}
}

var errTestOpen = &openError{"simulated open failure"}

type openError struct{ msg string }

func (e *openError) Error() string { return e.msg }
