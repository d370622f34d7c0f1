package mock

import (
	"testing"
	"time"

	"skybridge/pkg/simlink"
)

func TestOpenEmitsHandshakeAndTraffic(t *testing.T) {
	tr := NewTransport(47.0, 8.0, 2)
	if err := tr.Open("test"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	msg, ok, err := tr.Poll()
	if err != nil || !ok {
		t.Fatalf("expected MsgOpen, got ok=%v err=%v", ok, err)
	}
	if msg.Kind != simlink.MsgOpen {
		t.Fatalf("expected MsgOpen, got %v", msg.Kind)
	}

	seenAdded := 0
	for {
		msg, ok, err := tr.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if !ok {
			break
		}
		if msg.Kind == simlink.MsgObjectAdded {
			seenAdded++
		}
	}
	if seenAdded != 2 {
		t.Fatalf("expected 2 MsgObjectAdded, got %d", seenAdded)
	}
}

func TestRequestDataOnSimObjectDeliversUserRow(t *testing.T) {
	tr := NewTransport(47.0, 8.0, 0)
	tr.Open("test")
	drain(tr)

	model := simlink.ModelId(1)
	tr.AddToDataDefinition(model, simlink.VarSpec{Name: "PLANE LATITUDE", Kind: simlink.VarFloat64})
	tr.AddToDataDefinition(model, simlink.VarSpec{Name: "PLANE LONGITUDE", Kind: simlink.VarFloat64})

	req := simlink.RequestId(10)
	if err := tr.RequestDataOnSimObject(req, model, 0, simlink.PeriodSecond); err != nil {
		t.Fatalf("RequestDataOnSimObject: %v", err)
	}

	tr.lastTick -= tickInterval.Milliseconds()
	msg := waitFor(t, tr, simlink.MsgObjectData)
	if msg.RequestID != req {
		t.Fatalf("expected request id %d, got %d", req, msg.RequestID)
	}
	if len(msg.Row) != 2 {
		t.Fatalf("expected 2 decoded values, got %d", len(msg.Row))
	}
	lat, ok := msg.Row[0].(float64)
	if !ok || lat != 47.0 {
		t.Fatalf("expected lat 47.0, got %v", msg.Row[0])
	}
}

func TestRequestDataOnSimObjectTypeDeliversAllAndRemoves(t *testing.T) {
	tr := NewTransport(47.0, 8.0, 3)
	tr.Open("test")
	drain(tr)

	model := simlink.ModelId(2)
	tr.AddToDataDefinition(model, simlink.VarSpec{Name: "ATC MODEL", Kind: simlink.VarString32})

	req := simlink.RequestId(20)
	if err := tr.RequestDataOnSimObjectType(req, model, 50000, simlink.ObjectTypeAircraft); err != nil {
		t.Fatalf("RequestDataOnSimObjectType: %v", err)
	}
	tr.lastTick -= tickInterval.Milliseconds()

	count := 0
	for {
		msg, ok, err := tr.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if !ok {
			break
		}
		if msg.Kind == simlink.MsgObjectDataByType {
			count++
			if msg.OutOf != 3 {
				t.Fatalf("expected OutOf=3, got %d", msg.OutOf)
			}
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 MsgObjectDataByType deliveries, got %d", count)
	}

	tr.mu.Lock()
	_, stillSubscribed := tr.subs[req]
	tr.mu.Unlock()
	if stillSubscribed {
		t.Fatalf("one-shot type request should be removed after delivery")
	}
}

func drain(tr *Transport) {
	for {
		_, ok, _ := tr.Poll()
		if !ok {
			return
		}
	}
}

func waitFor(t *testing.T, tr *Transport, kind simlink.MessageKind) simlink.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok, err := tr.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if ok && msg.Kind == kind {
			return msg
		}
		if !ok {
			tr.lastTick -= tickInterval.Milliseconds()
		}
	}
	t.Fatalf("timed out waiting for message kind %v", kind)
	return simlink.Message{}
}
