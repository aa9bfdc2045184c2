package timing

// An Event is a notification point that processes can wait on.
//
// Notify wakes every process that is waiting at the moment of the call. An
// Event keeps no memory of past notifications: a process that starts waiting
// after Notify returns waits for the next one.
type Event struct {
	id      string
	name    string
	sched   *Scheduler
	waiters []*Process
}

// NewEvent creates an Event that belongs to the scheduler.
func (s *Scheduler) NewEvent(name string) *Event {
	return &Event{
		id:    s.idGen.Generate(),
		name:  name,
		sched: s,
	}
}

// Name returns the name of the event.
func (e *Event) Name() string {
	return e.name
}

// ID returns the unique ID of the event within its scheduler.
func (e *Event) ID() string {
	return e.id
}

// NumWaiters returns the number of processes currently waiting on the event.
func (e *Event) NumWaiters() int {
	return len(e.waiters)
}

// Notify moves all current waiters to the end of the ready queue, in the
// order they started waiting. They run in the current delta cycle.
func (e *Event) Notify() {
	waiters := e.waiters
	e.waiters = nil

	for _, p := range waiters {
		p.waitingOn = nil
		p.state = ProcessReady
		e.sched.ready.Push(p)
	}
}

func (e *Event) addWaiter(p *Process) {
	e.waiters = append(e.waiters, p)
}
