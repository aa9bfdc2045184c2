package timing

// A Signal holds a value and notifies an event whenever the value changes.
// Writing the value it already holds does nothing.
type Signal[T comparable] struct {
	name    string
	value   T
	changed *Event
}

// NewSignal creates a signal with an initial value.
func NewSignal[T comparable](s *Scheduler, name string, init T) *Signal[T] {
	return &Signal[T]{
		name:    name,
		value:   init,
		changed: s.NewEvent(name + ".ValueChanged"),
	}
}

// Name returns the name of the signal.
func (sig *Signal[T]) Name() string {
	return sig.name
}

// Read returns the current value.
func (sig *Signal[T]) Read() T {
	return sig.value
}

// Write sets the value and wakes the processes waiting on
// ValueChangedEvent if the value differs from the current one.
func (sig *Signal[T]) Write(v T) {
	if v == sig.value {
		return
	}

	sig.value = v
	sig.changed.Notify()
}

// ValueChangedEvent returns the event notified on every change.
func (sig *Signal[T]) ValueChangedEvent() *Event {
	return sig.changed
}
