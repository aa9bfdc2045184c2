package queueing

import (
	"fmt"

	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/timing"
)

// HookPosChannelWrite marks when an element is written into a channel. The
// item is the element and the detail is the occupancy after the write.
var HookPosChannelWrite = &hooking.HookPos{Name: "Channel Write"}

// HookPosChannelRead marks when an element is read from a channel. The item
// is the element and the detail is the occupancy after the read.
var HookPosChannelRead = &hooking.HookPos{Name: "Channel Read"}

// Writer is the write side of a channel.
type Writer[T any] interface {
	Write(v T)
	IsFull() bool
	Reset()
}

// Reader is the read side of a channel.
type Reader[T any] interface {
	Read() T
	IsEmpty() bool
	Size() int
}

// ChannelBuilder builds channels.
type ChannelBuilder[T any] struct {
	sched    *timing.Scheduler
	capacity int
}

// MakeChannelBuilder creates a ChannelBuilder with a capacity of 10.
func MakeChannelBuilder[T any]() ChannelBuilder[T] {
	return ChannelBuilder[T]{
		capacity: 10,
	}
}

// WithScheduler sets the scheduler whose processes use the channel.
func (b ChannelBuilder[T]) WithScheduler(
	s *timing.Scheduler,
) ChannelBuilder[T] {
	b.sched = s
	return b
}

// WithCapacity sets the number of elements the channel can hold.
func (b ChannelBuilder[T]) WithCapacity(capacity int) ChannelBuilder[T] {
	b.capacity = capacity
	return b
}

// Build creates a new channel.
func (b ChannelBuilder[T]) Build(name string) (*Channel[T], error) {
	if b.capacity < 1 {
		return nil, &timing.ConfigError{
			Field:  "capacity",
			Value:  b.capacity,
			Reason: "must be at least 1",
		}
	}

	if b.sched == nil {
		return nil, &timing.ConfigError{
			Field:  "scheduler",
			Value:  nil,
			Reason: "channel " + name + " needs a scheduler",
		}
	}

	c := &Channel[T]{
		name:     name,
		sched:    b.sched,
		data:     make([]T, b.capacity),
		notEmpty: b.sched.NewEvent(name + ".NotEmpty"),
		notFull:  b.sched.NewEvent(name + ".NotFull"),
	}

	return c, nil
}

// A Channel is a bounded FIFO shared by processes of one scheduler.
//
// Write blocks the calling process while the channel is full and Read
// blocks it while the channel is empty. Because the scheduler runs one
// process at a time, the channel needs no locking.
type Channel[T any] struct {
	hooking.HookableBase

	name  string
	sched *timing.Scheduler

	data      []T
	occupancy int
	writeIdx  int
	readIdx   int

	notEmpty *timing.Event
	notFull  *timing.Event

	stats Stats
}

// Name returns the name of the channel.
func (c *Channel[T]) Name() string {
	return c.name
}

// Capacity returns the maximum number of elements the channel holds.
func (c *Channel[T]) Capacity() int {
	return len(c.data)
}

// Size returns the number of elements in the channel.
func (c *Channel[T]) Size() int {
	return c.occupancy
}

// IsEmpty tells if the channel holds no element.
func (c *Channel[T]) IsEmpty() bool {
	return c.occupancy == 0
}

// IsFull tells if the channel is at capacity.
func (c *Channel[T]) IsFull() bool {
	return c.occupancy == len(c.data)
}

// Write appends v, suspending the calling process while the channel is full.
func (c *Channel[T]) Write(v T) {
	for c.IsFull() {
		c.sched.WaitFor(c.notFull)
	}

	c.mustHoldOccupancy("Write", c.occupancy < len(c.data))

	c.data[c.writeIdx] = v
	c.writeIdx = (c.writeIdx + 1) % len(c.data)
	c.occupancy++

	c.stats.Writes++
	if c.occupancy > c.stats.MaxOccupancy {
		c.stats.MaxOccupancy = c.occupancy
	}

	c.invokeHookIfAny(HookPosChannelWrite, v)
	c.notEmpty.Notify()
}

// Read removes and returns the oldest element, suspending the calling
// process while the channel is empty.
func (c *Channel[T]) Read() T {
	for c.IsEmpty() {
		c.sched.WaitFor(c.notEmpty)
	}

	c.mustHoldOccupancy("Read", c.occupancy > 0 && c.occupancy <= len(c.data))

	c.stats.LastReadTime = c.sched.Now()
	c.stats.OccupancySum += uint64(c.occupancy)

	var zero T

	v := c.data[c.readIdx]
	c.data[c.readIdx] = zero
	c.readIdx = (c.readIdx + 1) % len(c.data)
	c.occupancy--

	c.stats.Reads++

	c.invokeHookIfAny(HookPosChannelRead, v)
	c.notFull.Notify()

	return v
}

// Reset drops all the elements without touching the statistics. Writers
// blocked on a full channel are woken.
func (c *Channel[T]) Reset() {
	wasFull := c.IsFull()

	clear(c.data)
	c.occupancy = 0
	c.writeIdx = 0
	c.readIdx = 0

	if wasFull {
		c.notFull.Notify()
	}
}

// Stats returns the statistics accumulated so far.
func (c *Channel[T]) Stats() Stats {
	return c.stats
}

// Report summarizes the channel statistics.
func (c *Channel[T]) Report() Report {
	return Report{
		Name:                c.name,
		Capacity:            len(c.data),
		AverageOccupancy:    c.stats.AverageOccupancy(),
		AverageReadInterval: c.stats.AverageReadInterval(),
		TotalReads:          c.stats.Reads,
		TotalTime:           c.stats.LastReadTime,
		MaxOccupancy:        c.stats.MaxOccupancy,
	}
}

func (c *Channel[T]) mustHoldOccupancy(op string, cond bool) {
	if cond {
		return
	}

	panic(timing.InvariantViolation{
		Where: "Channel." + op,
		What: fmt.Sprintf("channel %s occupancy %d out of range [0, %d]",
			c.name, c.occupancy, len(c.data)),
	})
}

func (c *Channel[T]) invokeHookIfAny(pos *hooking.HookPos, item T) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
		Detail: c.occupancy,
	})
}
