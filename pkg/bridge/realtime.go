// Package bridge decouples the 20ms real-time simulator/device tick loop
// from the outward-facing WebSocket and CLI surfaces, with tagged
// command queues in between.
package bridge

import (
	"sync"
	"time"
)

const tickInterval = 20 * time.Millisecond

// RealTimeThread runs a single goroutine that, once per tick, services the
// device server, polls the simulator link, advances the radar, and
// finally runs Tick. The loop holds cmdMu for the full duration of each
// iteration and releases it only while sleeping, so EnterCmdMode lets
// another goroutine safely interleave a blocking call (e.g. reading the
// simulator name) between ticks.
type RealTimeThread struct {
	cmdMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}

	PollSimLink func()
	UpdateRadar func()
	PollDevices func()
	Tick        func()
}

// NewRealTimeThread constructs a stopped RealTimeThread.
func NewRealTimeThread() *RealTimeThread {
	return &RealTimeThread{}
}

// Start launches the tick loop. Calling Start twice without an
// intervening Stop is a programming error.
func (rt *RealTimeThread) Start() {
	rt.stop = make(chan struct{})
	rt.done = make(chan struct{})
	go rt.run()
}

func (rt *RealTimeThread) run() {
	defer close(rt.done)

	rt.cmdMu.Lock()
	for {
		select {
		case <-rt.stop:
			rt.cmdMu.Unlock()
			return
		default:
		}

		if rt.PollDevices != nil {
			rt.PollDevices()
		}
		if rt.PollSimLink != nil {
			rt.PollSimLink()
		}
		if rt.UpdateRadar != nil {
			rt.UpdateRadar()
		}
		if rt.Tick != nil {
			rt.Tick()
		}

		rt.cmdMu.Unlock()
		time.Sleep(tickInterval)
		rt.cmdMu.Lock()
	}
}

// Stop requests the loop to exit and blocks until it has.
func (rt *RealTimeThread) Stop() {
	if rt.stop == nil {
		return
	}
	close(rt.stop)
	<-rt.done
}

// EnterCmdMode runs fn while holding the same mutex the tick loop holds
// during each iteration, so fn never races with a tick in progress.
func (rt *RealTimeThread) EnterCmdMode(fn func()) {
	rt.cmdMu.Lock()
	defer rt.cmdMu.Unlock()
	fn()
}
