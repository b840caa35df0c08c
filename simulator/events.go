package simulator

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/unixpickle/essentials"
)

// ErrDeadlock is returned by EventLoop.Run when every
// Handle is polling and no pending timer can wake any of
// them.
//
// In an SPMD program, this is what happens when the ranks
// disagree on the sequence of collective operations.
var ErrDeadlock = errors.New("deadlock: all Handles are polling")

// An EventStream is a one-way channel of events that an
// EventLoop delivers.
//
// A stream belongs to the loop that created it. Events
// that arrive while nobody polls the stream are buffered
// in arrival order.
type EventStream struct {
	loop    *EventLoop
	pending []interface{}
}

func (s *EventStream) pop() (interface{}, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	msg := s.pending[0]
	essentials.OrderedDelete(&s.pending, 0)
	return msg, true
}

// An Event is a message received on some EventStream.
type Event struct {
	Message interface{}
	Stream  *EventStream
}

// A Timer is one event that will be delivered at a fixed
// point in virtual time.
type Timer struct {
	time  float64
	event *Event

	// index is the Timer's position in the loop's queue,
	// or -1 once it has fired or been canceled.
	index int
}

// Time is the virtual time at which the timer fires.
//
// While the loop's clock is below Time(), the timer has
// certainly not fired.
func (t *Timer) Time() float64 {
	return t.time
}

// A Handle is one Goroutine's access to an EventLoop.
//
// Each simulated rank owns exactly one Handle, and Handles
// must not be shared between Goroutines.
type Handle struct {
	*EventLoop

	// waiting is set while the Goroutine is blocked in
	// Poll.
	waiting *pollRequest
}

type pollRequest struct {
	streams []*EventStream
	result  chan *Event
}

func (p *pollRequest) accepts(stream *EventStream) bool {
	for _, s := range p.streams {
		if s == stream {
			return true
		}
	}
	return false
}

// Poll blocks until an event arrives on one of streams.
//
// Buffered events are taken first, checking the streams in
// the order they are listed.
func (h *Handle) Poll(streams ...*EventStream) *Event {
	req := &pollRequest{streams: streams, result: make(chan *Event, 1)}
	h.modifyHandles(func() {
		if h.waiting != nil {
			panic("Handle is shared between Goroutines")
		}
		for _, s := range streams {
			if msg, ok := s.pop(); ok {
				req.result <- &Event{Message: msg, Stream: s}
				return
			}
		}
		h.waiting = req
	})
	return <-req.result
}

// Schedule delivers msg on stream after delay units of
// virtual time.
func (h *Handle) Schedule(stream *EventStream, msg interface{}, delay float64) *Timer {
	if stream.loop != h.EventLoop {
		panic("EventStream is not associated with the correct EventLoop")
	}
	var timer *Timer
	h.modify(func() {
		deadline := h.time + delay
		if math.IsInf(deadline, 0) || math.IsNaN(deadline) {
			panic(fmt.Sprintf("invalid deadline: %f", deadline))
		}
		timer = &Timer{time: deadline, event: &Event{Message: msg, Stream: stream}}
		heap.Push(&h.timers, timer)
	})
	return timer
}

// Cancel stops a timer that has not fired yet.
//
// Canceling a timer that already fired, or was already
// canceled, does nothing.
func (h *Handle) Cancel(t *Timer) {
	h.modify(func() {
		if t.index >= 0 && t.index < len(h.timers) && h.timers[t.index] == t {
			heap.Remove(&h.timers, t.index)
		}
	})
}

// Sleep waits for delay units of virtual time.
func (h *Handle) Sleep(delay float64) {
	stream := h.Stream()
	h.Schedule(stream, nil, delay)
	h.Poll(stream)
}

// Uniform draws a number in [0, 1) from the loop's random
// source.
//
// Networks use this instead of the global source so that
// a seeded loop replays the same message timings.
func (h *Handle) Uniform() float64 {
	var res float64
	h.modify(func() {
		res = h.rng.Float64()
	})
	return res
}

// An EventLoop schedules events in virtual time for a
// group of simulated ranks.
//
// Every Goroutine that touches the loop must be started
// with Go. Virtual time only advances while all of them
// are blocked in Poll, so local computation is free.
type EventLoop struct {
	lock    sync.Mutex
	timers  timerQueue
	handles []*Handle
	rng     *rand.Rand

	time float64

	running bool
	wake    chan struct{}
}

// NewEventLoop creates an event loop seeded from the
// wall clock.
//
// The loop's clock starts at 0.
func NewEventLoop() *EventLoop {
	return NewEventLoopSeed(time.Now().UnixNano())
}

// NewEventLoopSeed creates an event loop whose tie-breaking
// and network randomness is drawn from the given seed.
//
// Two loops with the same seed running the same program
// deliver events in the same order.
func NewEventLoopSeed(seed int64) *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Stream creates a new EventStream.
func (e *EventLoop) Stream() *EventStream {
	return &EventStream{loop: e}
}

// Go runs f in a new Goroutine with its own Handle.
func (e *EventLoop) Go(f func(h *Handle)) {
	h := &Handle{EventLoop: e}
	e.modify(func() {
		e.handles = append(e.handles, h)
	})
	go func() {
		defer e.modifyHandles(func() {
			e.release(h)
		})
		f(h)
	}()
}

// Run drives the loop until every Goroutine started with
// Go has returned.
//
// It returns ErrDeadlock if the remaining Goroutines can
// never be woken. Run must not be called concurrently.
func (e *EventLoop) Run() error {
	e.modify(func() {
		if e.running {
			panic("EventLoop is already running")
		}
		e.running = true
	})
	defer e.modify(func() {
		e.running = false
	})

	for range e.wake {
		if done, err := e.step(); done {
			return err
		}
	}
	panic("unreachable")
}

// MustRun is like Run, but it panics on a deadlock.
func (e *EventLoop) MustRun() {
	if err := e.Run(); err != nil {
		panic(err)
	}
}

// Time gets the current virtual time.
func (e *EventLoop) Time() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.time
}

// modify runs f with the loop locked. f must not change
// whether any Handle is polling.
func (e *EventLoop) modify(f func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	f()
}

// modifyHandles is like modify, but f may start or stop a
// poll, so the loop is woken afterwards.
func (e *EventLoop) modifyHandles(f func()) {
	e.lock.Lock()
	defer func() {
		e.lock.Unlock()
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}()
	f()
}

func (e *EventLoop) release(h *Handle) {
	for i, other := range e.handles {
		if other == h {
			essentials.UnorderedDelete(&e.handles, i)
			return
		}
	}
	panic("cannot free handle that does not exist")
}

// step fires timers until one of them wakes a Handle.
//
// It reports done once no Handles remain, or when every
// Handle is polling and the timers run out.
func (e *EventLoop) step() (done bool, err error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if len(e.handles) == 0 {
		return true, nil
	}
	for _, h := range e.handles {
		if h.waiting == nil {
			// Some Goroutine is still computing.
			return false, nil
		}
	}

	for e.timers.Len() > 0 {
		timer := e.nextTimer()
		e.time = math.Max(e.time, timer.time)
		if e.deliver(timer.event) {
			return false, nil
		}
	}
	return true, ErrDeadlock
}

// nextTimer pops the earliest timer. Among timers with the
// same deadline, one is picked at random.
func (e *EventLoop) nextTimer() *Timer {
	first := heap.Pop(&e.timers).(*Timer)
	tied := []*Timer{first}
	for e.timers.Len() > 0 && e.timers[0].time == first.time {
		tied = append(tied, heap.Pop(&e.timers).(*Timer))
	}
	pick := e.rng.Intn(len(tied))
	for i, t := range tied {
		if i != pick {
			heap.Push(&e.timers, t)
		}
	}
	return tied[pick]
}

// deliver hands event to a random Handle polling its
// stream, or buffers it if there is none.
func (e *EventLoop) deliver(event *Event) bool {
	var ready []*Handle
	for _, h := range e.handles {
		if h.waiting != nil && h.waiting.accepts(event.Stream) {
			ready = append(ready, h)
		}
	}
	if len(ready) == 0 {
		event.Stream.pending = append(event.Stream.pending, event.Message)
		return false
	}
	h := ready[e.rng.Intn(len(ready))]
	h.waiting.result <- event
	h.waiting = nil
	return true
}

// timerQueue is a min-heap of timers by deadline.
type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool { return q[i].time < q[j].time }

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() interface{} {
	old := *q
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	t.index = -1
	return t
}
