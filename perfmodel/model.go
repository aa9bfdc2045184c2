package perfmodel

import (
	"fmt"
	"strings"

	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// A Model is a built producer/consumer simulation. The harness owns it.
type Model struct {
	Name      string
	Scheduler *timing.Scheduler
	Channel   *queueing.Channel[uint32]
	Done      *timing.Signal[bool]
	Producer  *Producer
	Consumer  *Consumer
	Monitor   *DrainMonitor
}

// Result describes how a run ended.
type Result struct {
	// Drained is true if the monitor saw the producer done and the channel
	// empty. A run that ends without draining has stalled.
	Drained   bool            `json:"drained"`
	DrainTime timing.VTime    `json:"drain_time"`
	EndTime   timing.VTime    `json:"end_time"`
	Channel   queueing.Report `json:"channel"`

	// Pending lists the processes still suspended when the run ended.
	Pending []string `json:"pending"`
}

func (r Result) String() string {
	var b strings.Builder

	if r.Drained {
		fmt.Fprintf(&b, "Drained at %s, run ended at %s\n", r.DrainTime, r.EndTime)
	} else {
		fmt.Fprintf(&b, "Stalled at %s, pending: %s\n",
			r.EndTime, strings.Join(r.Pending, ", "))
	}

	b.WriteString(r.Channel.String())

	return b.String()
}

// Run drives the model until it stops or quiesces.
func (m *Model) Run() (Result, error) {
	if err := m.Scheduler.Run(); err != nil {
		return Result{}, err
	}

	res := Result{
		EndTime: m.Scheduler.Now(),
		Channel: m.Channel.Report(),
	}

	if report := m.Monitor.Report(); report != nil {
		res.Drained = true
		res.DrainTime = report.Time
	}

	for _, p := range m.Scheduler.Suspended() {
		res.Pending = append(res.Pending, p.Name())
	}

	return res, nil
}

// Close releases every process of the model.
func (m *Model) Close() {
	m.Scheduler.Close()
}
