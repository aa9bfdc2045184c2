package perfmodel

import (
	"math/rand/v2"

	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// Producer writes bursts of items into a channel until its budget runs out,
// then raises the done signal.
type Producer struct {
	name string
	out  queueing.Writer[uint32]
	done *timing.Signal[bool]
	rng  *rand.Rand

	remaining         int
	burstMin          int
	burstMax          int
	interval          timing.VTime
	continuousPayload bool

	written uint64
	bursts  uint64
}

// Name returns the name of the producer process.
func (p *Producer) Name() string {
	return p.name
}

// Remaining returns how many items are left in the budget.
func (p *Producer) Remaining() int {
	return p.remaining
}

// Written returns the number of items written so far.
func (p *Producer) Written() uint64 {
	return p.written
}

// Bursts returns the number of bursts started so far.
func (p *Producer) Bursts() uint64 {
	return p.bursts
}

// Body is the producer process.
//
// Unless continuous payloads are enabled, the payload counter restarts at 1
// in every burst.
func (p *Producer) Body(proc *timing.Process) error {
	var payload uint32

	for {
		burst := p.burstMin + p.rng.IntN(p.burstMax-p.burstMin+1)
		p.bursts++

		if !p.continuousPayload {
			payload = 0
		}

		for i := 0; i < burst; i++ {
			payload++
			p.out.Write(payload)
			p.written++
			p.remaining--

			if p.remaining == 0 {
				p.done.Write(true)
				return nil
			}
		}

		if err := proc.Delay(p.interval); err != nil {
			return err
		}
	}
}
