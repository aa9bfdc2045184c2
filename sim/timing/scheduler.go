// Package timing provides the simulation kernel: virtual time, events, and a
// cooperative scheduler that runs processes one at a time.
package timing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/id"
)

// HookPosBeforeProcess triggers right before a process is resumed. The item
// is the *Process.
var HookPosBeforeProcess = &hooking.HookPos{Name: "BeforeProcess"}

// HookPosAfterProcess triggers right after a process suspends or terminates.
// The item is the *Process.
var HookPosAfterProcess = &hooking.HookPos{Name: "AfterProcess"}

// HookPosTimeAdvance triggers when the clock moves forward. The item is the
// new VTime.
var HookPosTimeAdvance = &hooking.HookPos{Name: "TimeAdvance"}

// A Scheduler owns the virtual clock and drives processes.
//
// At a fixed time, the scheduler runs ready processes in the order they
// became ready, including processes made ready while the pass is running.
// Only when nothing is ready does the clock move to the earliest pending
// wakeup. When nothing is ready and no wakeup is pending, Run returns.
type Scheduler struct {
	hooking.HookableBase

	timeLock sync.RWMutex
	now      VTime

	idGen     id.IDGenerator
	processes []*Process
	nameIndex map[string]*Process
	ready     readyQueue
	timed     wakeupQueue
	current   *Process
	yield     chan struct{}

	stopRequested   bool
	closed          bool
	deltaCycles     uint64
	dispatchedAtNow bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	stepLock      sync.Mutex
	singleRunLock sync.Mutex
}

// NewScheduler creates a Scheduler at time zero with no processes.
func NewScheduler() *Scheduler {
	return &Scheduler{
		idGen:     id.NewIDGenerator(),
		nameIndex: make(map[string]*Process),
		yield:     make(chan struct{}),
	}
}

// Name returns the name of the scheduler.
func (s *Scheduler) Name() string {
	return "Scheduler"
}

// Spawn registers a process and puts it at the end of the ready queue. It
// must be called either before Run or from a running process.
func (s *Scheduler) Spawn(p *Process) {
	if s.closed {
		panic("cannot spawn on a closed scheduler")
	}

	if p.sched != nil {
		panic(fmt.Sprintf("process %s already spawned", p.name))
	}

	if _, dup := s.nameIndex[p.name]; dup {
		panic(fmt.Sprintf("process %s already registered", p.name))
	}

	p.sched = s
	p.id = s.idGen.Generate()
	p.state = ProcessReady

	s.processes = append(s.processes, p)
	s.nameIndex[p.name] = p
	s.ready.Push(p)
}

// WaitFor suspends the running process until the event is notified.
func (s *Scheduler) WaitFor(e *Event) {
	s.mustHaveCurrent("WaitFor").WaitFor(e)
}

// Delay suspends the running process for d. It returns a *ConfigError if d
// is negative.
func (s *Scheduler) Delay(d VTime) error {
	if d < 0 {
		return &ConfigError{Field: "delay", Value: d, Reason: "must not be negative"}
	}

	return s.mustHaveCurrent("Delay").Delay(d)
}

// Current returns the running process, or nil when called outside one.
func (s *Scheduler) Current() *Process {
	return s.current
}

func (s *Scheduler) mustHaveCurrent(op string) *Process {
	if s.current == nil {
		panic(InvariantViolation{
			Where: "Scheduler." + op,
			What:  "called outside of a process",
		})
	}

	return s.current
}

// RequestStop asks Run to return once the current delta cycle has drained.
func (s *Scheduler) RequestStop() {
	s.stopRequested = true
}

// Run executes processes until quiescence or until a stop is requested.
//
// Run returns the first error a process body returns. A panic raised inside
// a process body is raised again from Run.
func (s *Scheduler) Run() error {
	s.singleRunLock.Lock()
	defer s.singleRunLock.Unlock()

	if s.closed {
		panic("cannot run a closed scheduler")
	}

	for {
		done, err := s.step()
		if err != nil || done {
			return err
		}
	}
}

func (s *Scheduler) step() (done bool, err error) {
	s.pauseLock.Lock()
	defer s.pauseLock.Unlock()

	s.stepLock.Lock()
	defer s.stepLock.Unlock()

	if s.ready.Len() > 0 {
		return false, s.dispatch(s.ready.Pop())
	}

	if s.dispatchedAtNow {
		s.deltaCycles++
		s.dispatchedAtNow = false
	}

	if s.stopRequested {
		s.stopRequested = false
		return true, nil
	}

	if s.timed.Len() == 0 {
		return true, nil
	}

	s.advance()

	return false, nil
}

func (s *Scheduler) dispatch(p *Process) error {
	s.current = p
	s.dispatchedAtNow = true
	p.state = ProcessRunning
	s.invokeHookIfAny(HookPosBeforeProcess, p)

	if !p.started {
		p.started = true
		go p.main()
	} else {
		p.resume <- struct{}{}
	}

	<-s.yield
	s.current = nil

	s.invokeHookIfAny(HookPosAfterProcess, p)

	if p.panicValue != nil {
		v := p.panicValue
		p.panicValue = nil
		panic(v)
	}

	if p.state == ProcessTerminated && p.err != nil {
		return fmt.Errorf("process %s: %w", p.name, p.err)
	}

	return nil
}

func (s *Scheduler) advance() {
	next := s.timed.Peek().at
	now := s.readNow()

	mustHold(next > now, "Scheduler.advance",
		fmt.Sprintf("next wakeup %s is not after now %s", next, now))

	s.writeNow(next)

	for s.timed.Len() > 0 && s.timed.Peek().at == next {
		w := s.timed.Pop()
		w.process.state = ProcessReady
		s.ready.Push(w.process)
	}

	s.invokeHookIfAny(HookPosTimeAdvance, next)
}

func (s *Scheduler) invokeHookIfAny(pos *hooking.HookPos, item any) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   item,
		Detail: s.readNow(),
	})
}

func (s *Scheduler) readNow() VTime {
	s.timeLock.RLock()
	t := s.now
	s.timeLock.RUnlock()

	return t
}

func (s *Scheduler) writeNow(t VTime) {
	s.timeLock.Lock()
	s.now = t
	s.timeLock.Unlock()
}

// Now returns the current virtual time.
func (s *Scheduler) Now() VTime {
	return s.readNow()
}

// DeltaCycles returns the number of delta cycles that ran at least one
// process.
func (s *Scheduler) DeltaCycles() uint64 {
	return s.deltaCycles
}

// Processes returns all the registered processes in spawn order.
func (s *Scheduler) Processes() []*Process {
	ps := make([]*Process, len(s.processes))
	copy(ps, s.processes)

	return ps
}

// ProcessByName returns the registered process with the name, or nil.
func (s *Scheduler) ProcessByName(name string) *Process {
	return s.nameIndex[name]
}

// Suspended returns the processes that have not terminated. After Run
// returns on quiescence, these are the processes stuck waiting on an event
// that nobody will notify.
func (s *Scheduler) Suspended() []*Process {
	var ps []*Process

	for _, p := range s.processes {
		if p.state != ProcessTerminated {
			ps = append(ps, p)
		}
	}

	return ps
}

// Pause prevents the scheduler from dispatching more processes until
// Continue is called. A process that is running finishes its step first.
func (s *Scheduler) Pause() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if s.isPaused {
		return
	}

	s.pauseLock.Lock()
	s.isPaused = true
}

// Continue resumes dispatching after a Pause.
func (s *Scheduler) Continue() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if !s.isPaused {
		return
	}

	s.pauseLock.Unlock()
	s.isPaused = false
}

// Inspect runs fn between two scheduler steps, so fn sees a consistent
// snapshot of every object driven by the scheduler. It may be called from
// any goroutine, but not from inside a process.
func (s *Scheduler) Inspect(fn func()) {
	s.stepLock.Lock()
	defer s.stepLock.Unlock()

	fn()
}

// Close terminates every process that has not finished and releases its
// goroutine. The scheduler cannot be used afterwards.
func (s *Scheduler) Close() {
	s.singleRunLock.Lock()
	defer s.singleRunLock.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	for _, p := range s.processes {
		if p.state == ProcessTerminated {
			continue
		}

		if !p.started {
			p.state = ProcessTerminated
			continue
		}

		close(p.resume)
		<-s.yield
	}

	s.ready.Clear()
	s.timed.Clear()
}
