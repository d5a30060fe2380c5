package netxp

// scheduler.go holds the structs, methods and data structures that
// advance simulation time.  An EventQueue holds every pending event of
// a run, ordered by firing time and, among events with identical firing
// times, by the order in which they were scheduled.  Handlers that run
// from inside the queue may schedule further events; these are interleaved
// by time with everything already pending.

// The EventQueue is not safe for concurrent use.  All scheduling is expected
// to happen from the goroutine that calls Run (from handlers), or from the
// builder before Run is called.  Callers that need to schedule from other
// goroutines must serialize access themselves.

import (
	"container/heap"
	"fmt"
	"math"
)

// SimTime is simulated time, in seconds
type SimTime float64

// Seconds returns the time as a float64 number of seconds
func (t SimTime) Seconds() float64 {
	return float64(t)
}

// EventHandler is the signature of a function called when an event fires.
// context and data are whatever was handed to the scheduling call.
type EventHandler func(evq *EventQueue, context any, data any)

// Event describes one scheduled handler call
type Event struct {
	Time    SimTime // when the event fires
	Seq     int     // order of scheduling, breaks ties among equal Time
	context any
	data    any
	hdlr    EventHandler
}

// evtHeap and its methods implement a min-priority heap on
// (Time, Seq) of pending events
type evtHeap []*Event

func (h evtHeap) Len() int { return len(h) }
func (h evtHeap) Less(i, j int) bool {
	if h[i].Time == h[j].Time {
		return h[i].Seq < h[j].Seq
	}
	return h[i].Time < h[j].Time
}
func (h evtHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *evtHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *evtHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// EventQueue holds the simulation clock and all pending events
type EventQueue struct {
	now       SimTime // current simulation time
	nxtSeq    int     // sequence number given to the next scheduled event
	pending   evtHeap // events not yet fired
	running   bool    // true while Run is executing
	destroyed bool    // true after Destroy
	fired     int     // number of events executed
}

// CreateEventQueue is a constructor
func CreateEventQueue() *EventQueue {
	evq := new(EventQueue)
	evq.pending = make(evtHeap, 0)
	heap.Init(&evq.pending)
	return evq
}

// CurrentTime returns the simulation time of the event being executed,
// or of the last one executed
func (evq *EventQueue) CurrentTime() SimTime {
	return evq.now
}

// CurrentSeconds returns CurrentTime as a float64
func (evq *EventQueue) CurrentSeconds() float64 {
	return float64(evq.now)
}

// IsEmpty reports whether any events are pending
func (evq *EventQueue) IsEmpty() bool {
	return len(evq.pending) == 0
}

// Len returns the number of pending events
func (evq *EventQueue) Len() int {
	return len(evq.pending)
}

// Fired returns the number of events executed so far
func (evq *EventQueue) Fired() int {
	return evq.fired
}

// ScheduleAt places a call to hdlr at absolute simulation time t.
// The returned value is the event's sequence number.
func (evq *EventQueue) ScheduleAt(t SimTime, context any, data any, hdlr EventHandler) (int, error) {
	if evq.destroyed {
		return -1, fmt.Errorf("%w: schedule on destroyed event queue", ErrConfiguration)
	}
	if hdlr == nil {
		return -1, fmt.Errorf("%w: nil event handler", ErrConfiguration)
	}
	ft := float64(t)
	if math.IsNaN(ft) || math.IsInf(ft, 0) || ft < 0.0 {
		return -1, fmt.Errorf("%w: event time %v has no finite non-negative representation", ErrConfiguration, ft)
	}
	if t < evq.now {
		return -1, fmt.Errorf("%w: event time %v precedes current time %v", ErrInvalidTime, ft, float64(evq.now))
	}

	evt := &Event{Time: t, Seq: evq.nxtSeq, context: context, data: data, hdlr: hdlr}
	evq.nxtSeq += 1
	heap.Push(&evq.pending, evt)

	return evt.Seq, nil
}

// Schedule places a call to hdlr offset seconds after the current time
func (evq *EventQueue) Schedule(context any, data any, hdlr EventHandler, offset float64) (int, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return -1, fmt.Errorf("%w: event offset %v is not finite", ErrConfiguration, offset)
	}
	if offset < 0.0 {
		return -1, fmt.Errorf("%w: negative event offset %v", ErrInvalidTime, offset)
	}
	return evq.ScheduleAt(evq.now+SimTime(offset), context, data, hdlr)
}

// PopNext removes and returns the earliest pending event without executing it.
// The clock is advanced to the event's time.
func (evq *EventQueue) PopNext() (*Event, bool) {
	if len(evq.pending) == 0 {
		return nil, false
	}
	evt := heap.Pop(&evq.pending).(*Event)
	evq.now = evt.Time
	return evt, true
}

// peek returns the earliest pending event, leaving it in place
func (evq *EventQueue) peek() *Event {
	if len(evq.pending) == 0 {
		return nil
	}
	return evq.pending[0]
}

// Run executes events in time order until the queue empties or the next
// event's time reaches stopTime.  Events at stopTime or later do not fire;
// they stay in the queue.  A finite stopTime leaves the clock at stopTime;
// an infinite one runs the queue dry and leaves the clock at the last event.
func (evq *EventQueue) Run(stopTime SimTime) error {
	st := float64(stopTime)
	if math.IsNaN(st) || st < 0.0 {
		return fmt.Errorf("%w: stop time %v", ErrConfiguration, st)
	}
	if evq.running {
		return fmt.Errorf("%w: Run called from inside an event handler", ErrConfiguration)
	}
	if evq.destroyed {
		return fmt.Errorf("%w: Run on destroyed event queue", ErrConfiguration)
	}

	evq.running = true
	defer func() { evq.running = false }()

	for {
		nxt := evq.peek()
		if nxt == nil || nxt.Time >= stopTime {
			break
		}
		evt, _ := evq.PopNext()
		evq.fired += 1
		evt.hdlr(evq, evt.context, evt.data)
	}

	if !math.IsInf(st, 1) && stopTime > evq.now {
		evq.now = stopTime
	}
	return nil
}

// Destroy drops every pending event.  The queue cannot be used afterward.
func (evq *EventQueue) Destroy() {
	evq.pending = nil
	evq.destroyed = true
}
