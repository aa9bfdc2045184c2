package timing

import "fmt"

// ProcessState tells where a process is in its life cycle.
type ProcessState int

// The states of a process.
const (
	ProcessCreated ProcessState = iota
	ProcessReady
	ProcessRunning
	ProcessWaitingEvent
	ProcessWaitingTime
	ProcessTerminated
)

func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "created"
	case ProcessReady:
		return "ready"
	case ProcessRunning:
		return "running"
	case ProcessWaitingEvent:
		return "waiting-event"
	case ProcessWaitingTime:
		return "waiting-time"
	case ProcessTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

// Body is the code a process executes. It may suspend by calling WaitFor or
// Delay on the process it receives. Returning ends the process for good; a
// non-nil error ends the whole run.
type Body func(p *Process) error

// A Process is a cooperative task driven by a Scheduler.
//
// Each process runs on its own goroutine, but the scheduler hands control to
// exactly one of them at a time, so process bodies never run in parallel.
type Process struct {
	id    string
	name  string
	body  Body
	sched *Scheduler

	state     ProcessState
	started   bool
	resume    chan struct{}
	waitingOn *Event
	wakeAt    VTime

	err        error
	panicValue any
}

// processKilled unwinds a suspended process when its scheduler closes.
type processKilled struct{}

// NewProcess creates a process that is not yet registered with any
// scheduler.
func NewProcess(name string, body Body) *Process {
	if body == nil {
		panic("process body must not be nil")
	}

	return &Process{
		name:   name,
		body:   body,
		resume: make(chan struct{}),
	}
}

// Name returns the name of the process.
func (p *Process) Name() string {
	return p.name
}

// ID returns the ID assigned by the scheduler when the process is spawned.
func (p *Process) ID() string {
	return p.id
}

// State returns the current state of the process.
func (p *Process) State() ProcessState {
	return p.state
}

// Err returns the error the body returned, if it has terminated.
func (p *Process) Err() error {
	return p.err
}

// WaitingOn returns the event the process is waiting for, or nil.
func (p *Process) WaitingOn() *Event {
	return p.waitingOn
}

// WakeAt returns the time a process in ProcessWaitingTime resumes.
func (p *Process) WakeAt() VTime {
	return p.wakeAt
}

// Scheduler returns the scheduler the process is registered with.
func (p *Process) Scheduler() *Scheduler {
	return p.sched
}

// Now returns the current virtual time.
func (p *Process) Now() VTime {
	return p.sched.Now()
}

// WaitFor suspends the process until the event is notified.
func (p *Process) WaitFor(e *Event) {
	p.mustBeRunning("WaitFor")

	if e.sched != p.sched {
		panic(InvariantViolation{
			Where: "Process.WaitFor",
			What:  fmt.Sprintf("event %s belongs to another scheduler", e.name),
		})
	}

	e.addWaiter(p)
	p.waitingOn = e
	p.state = ProcessWaitingEvent
	p.suspend()
}

// Delay suspends the process until virtual time has advanced by d. A zero
// delay puts the process at the back of the ready queue without advancing
// time.
func (p *Process) Delay(d VTime) error {
	if d < 0 {
		return &ConfigError{
			Field:  "delay",
			Value:  d,
			Reason: "must not be negative",
		}
	}

	p.mustBeRunning("Delay")

	s := p.sched
	if d == 0 {
		p.state = ProcessReady
		s.ready.Push(p)
	} else {
		p.wakeAt = s.Now() + d
		p.state = ProcessWaitingTime
		s.timed.Push(p.wakeAt, p)
	}

	p.suspend()

	return nil
}

func (p *Process) mustBeRunning(op string) {
	if p.sched == nil || p.sched.current != p {
		panic(InvariantViolation{
			Where: "Process." + op,
			What:  fmt.Sprintf("process %s is not the running process", p.name),
		})
	}
}

func (p *Process) main() {
	defer func() {
		if r := recover(); r != nil {
			if _, killed := r.(processKilled); !killed {
				p.panicValue = r
			}
		}

		p.state = ProcessTerminated
		p.waitingOn = nil
		p.sched.yield <- struct{}{}
	}()

	p.err = p.body(p)
}

func (p *Process) suspend() {
	p.sched.yield <- struct{}{}

	if _, ok := <-p.resume; !ok {
		panic(processKilled{})
	}
}
