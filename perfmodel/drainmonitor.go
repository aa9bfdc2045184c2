package perfmodel

import (
	"fmt"

	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// HookPosDrained triggers once when the monitor sees the producer done and
// the channel empty. The item is the DrainReport.
var HookPosDrained = &hooking.HookPos{Name: "Drained"}

// DrainReport is what the monitor emits when the model has drained.
type DrainReport struct {
	Time    timing.VTime    `json:"time"`
	Channel queueing.Report `json:"channel"`
}

func (r DrainReport) String() string {
	return fmt.Sprintf("Monitor: producer done and %s empty at %s",
		r.Channel.Name, r.Time)
}

type drainable interface {
	IsEmpty() bool
	Report() queueing.Report
}

// DrainMonitor waits for the done signal, then polls the channel until it
// is empty, then reports.
//
// Emptiness is polled because the channel does not notify when it becomes
// empty, so the drain time is only as precise as the poll interval.
type DrainMonitor struct {
	hooking.HookableBase

	name         string
	done         *timing.Signal[bool]
	ch           drainable
	pollInterval timing.VTime
	stopOnDrain  bool

	report *DrainReport
}

// Name returns the name of the monitor process.
func (m *DrainMonitor) Name() string {
	return m.name
}

// Report returns the drain report, or nil if the model has not drained.
func (m *DrainMonitor) Report() *DrainReport {
	return m.report
}

// Body is the monitor process.
func (m *DrainMonitor) Body(proc *timing.Process) error {
	for !m.done.Read() {
		proc.WaitFor(m.done.ValueChangedEvent())
	}

	for !m.ch.IsEmpty() {
		if err := proc.Delay(m.pollInterval); err != nil {
			return err
		}
	}

	m.report = &DrainReport{
		Time:    proc.Now(),
		Channel: m.ch.Report(),
	}

	if m.NumHooks() > 0 {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosDrained,
			Item:   *m.report,
			Detail: proc.Now(),
		})
	}

	if m.stopOnDrain {
		proc.Scheduler().RequestStop()
	}

	return nil
}
