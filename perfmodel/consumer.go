package perfmodel

import (
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// Consumer drains a channel, one item per interval, forever. The run ends
// when the scheduler stops or has nothing left to do.
type Consumer struct {
	name     string
	in       queueing.Reader[uint32]
	interval timing.VTime

	received uint64
	last     uint32
}

// Name returns the name of the consumer process.
func (c *Consumer) Name() string {
	return c.name
}

// Received returns the number of items read so far.
func (c *Consumer) Received() uint64 {
	return c.received
}

// Last returns the most recently read item.
func (c *Consumer) Last() uint32 {
	return c.last
}

// Body is the consumer process.
func (c *Consumer) Body(proc *timing.Process) error {
	for {
		c.last = c.in.Read()
		c.received++

		if err := proc.Delay(c.interval); err != nil {
			return err
		}
	}
}
