package timing

import "fmt"

// ConfigError reports an invalid construction parameter or call argument.
// It is fatal to the run that produced it.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// InvariantViolation is the panic value used when the scheduler or a channel
// finds its own state broken. It is never recovered by the simulator.
type InvariantViolation struct {
	Where string
	What  string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", v.Where, v.What)
}

func mustHold(cond bool, where, what string) {
	if !cond {
		panic(InvariantViolation{Where: where, What: what})
	}
}
