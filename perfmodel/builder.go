// Package perfmodel is a producer/consumer performance model of a bounded
// FIFO. A producer writes random-length bursts, a consumer drains at a fixed
// rate, and a monitor reports when everything has gone through.
package perfmodel

import (
	"math/rand/v2"

	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// Builder can build performance models.
type Builder struct {
	capacity          int
	budget            int
	burstMin          int
	burstMax          int
	seed              uint64
	producerInterval  timing.VTime
	consumerInterval  timing.VTime
	pollInterval      timing.VTime
	stopOnDrain       bool
	continuousPayload bool
	schedulerHooks    []hooking.Hook
	channelHooks      []hooking.Hook
	monitorHooks      []hooking.Hook
}

// MakeBuilder creates a builder with the default model parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity:         10,
		budget:           10000,
		burstMin:         1,
		burstMax:         19,
		seed:             1,
		producerInterval: 1000 * timing.NS,
		consumerInterval: 100 * timing.NS,
		pollInterval:     100 * timing.NS,
		stopOnDrain:      true,
	}
}

// WithCapacity sets the channel capacity.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithBudget sets the total number of items the producer writes.
func (b Builder) WithBudget(budget int) Builder {
	b.budget = budget
	return b
}

// WithBurstRange sets the inclusive bounds of the burst length.
func (b Builder) WithBurstRange(minLen, maxLen int) Builder {
	b.burstMin = minLen
	b.burstMax = maxLen
	return b
}

// WithSeed sets the seed of the burst length generator.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// WithProducerInterval sets the delay between two bursts.
func (b Builder) WithProducerInterval(d timing.VTime) Builder {
	b.producerInterval = d
	return b
}

// WithConsumerInterval sets the delay after each read.
func (b Builder) WithConsumerInterval(d timing.VTime) Builder {
	b.consumerInterval = d
	return b
}

// WithPollInterval sets how often the monitor checks for an empty channel.
func (b Builder) WithPollInterval(d timing.VTime) Builder {
	b.pollInterval = d
	return b
}

// WithStopOnDrain sets whether the run ends as soon as the monitor reports.
// Otherwise the run goes on until nothing can make progress.
func (b Builder) WithStopOnDrain(stop bool) Builder {
	b.stopOnDrain = stop
	return b
}

// WithContinuousPayload makes the producer number items with one ascending
// sequence instead of restarting at 1 in every burst.
func (b Builder) WithContinuousPayload(continuous bool) Builder {
	b.continuousPayload = continuous
	return b
}

// WithSchedulerHook attaches a hook to the scheduler.
func (b Builder) WithSchedulerHook(h hooking.Hook) Builder {
	b.schedulerHooks = append(b.schedulerHooks[:len(b.schedulerHooks):len(b.schedulerHooks)], h)
	return b
}

// WithChannelHook attaches a hook to the channel.
func (b Builder) WithChannelHook(h hooking.Hook) Builder {
	b.channelHooks = append(b.channelHooks[:len(b.channelHooks):len(b.channelHooks)], h)
	return b
}

// WithMonitorHook attaches a hook to the drain monitor.
func (b Builder) WithMonitorHook(h hooking.Hook) Builder {
	b.monitorHooks = append(b.monitorHooks[:len(b.monitorHooks):len(b.monitorHooks)], h)
	return b
}

func (b Builder) parametersMustBeValid() error {
	switch {
	case b.budget < 1:
		return &timing.ConfigError{Field: "budget", Value: b.budget, Reason: "must be at least 1"}
	case b.burstMin < 1:
		return &timing.ConfigError{Field: "burst minimum", Value: b.burstMin, Reason: "must be at least 1"}
	case b.burstMax < b.burstMin:
		return &timing.ConfigError{Field: "burst maximum", Value: b.burstMax, Reason: "must not be below the minimum"}
	case b.producerInterval < 0:
		return &timing.ConfigError{Field: "producer interval", Value: b.producerInterval, Reason: "must not be negative"}
	case b.consumerInterval < 0:
		return &timing.ConfigError{Field: "consumer interval", Value: b.consumerInterval, Reason: "must not be negative"}
	case b.pollInterval <= 0:
		return &timing.ConfigError{Field: "poll interval", Value: b.pollInterval, Reason: "must be positive"}
	}

	return nil
}

// Build creates the scheduler, the channel, and the three processes, and
// registers the processes in the order monitor, producer, consumer.
func (b Builder) Build(name string) (*Model, error) {
	if err := b.parametersMustBeValid(); err != nil {
		return nil, err
	}

	sched := timing.NewScheduler()

	ch, err := queueing.MakeChannelBuilder[uint32]().
		WithScheduler(sched).
		WithCapacity(b.capacity).
		Build(name + ".Fifo")
	if err != nil {
		return nil, err
	}

	done := timing.NewSignal(sched, name+".ProducerDone", false)

	m := &Model{
		Name:      name,
		Scheduler: sched,
		Channel:   ch,
		Done:      done,
		Producer: &Producer{
			name:              name + ".Producer",
			out:               ch,
			done:              done,
			rng:               rand.New(rand.NewPCG(b.seed, b.seed)),
			remaining:         b.budget,
			burstMin:          b.burstMin,
			burstMax:          b.burstMax,
			interval:          b.producerInterval,
			continuousPayload: b.continuousPayload,
		},
		Consumer: &Consumer{
			name:     name + ".Consumer",
			in:       ch,
			interval: b.consumerInterval,
		},
		Monitor: &DrainMonitor{
			name:         name + ".Monitor",
			done:         done,
			ch:           ch,
			pollInterval: b.pollInterval,
			stopOnDrain:  b.stopOnDrain,
		},
	}

	for _, h := range b.schedulerHooks {
		sched.AcceptHook(h)
	}

	for _, h := range b.channelHooks {
		ch.AcceptHook(h)
	}

	for _, h := range b.monitorHooks {
		m.Monitor.AcceptHook(h)
	}

	sched.Spawn(timing.NewProcess(m.Monitor.Name(), m.Monitor.Body))
	sched.Spawn(timing.NewProcess(m.Producer.Name(), m.Producer.Body))
	sched.Spawn(timing.NewProcess(m.Consumer.Name(), m.Consumer.Body))

	return m, nil
}
