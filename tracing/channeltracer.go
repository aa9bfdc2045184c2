// Package tracing records what happens to channels into a data recorder.
package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/fifosim/datarecording"
	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

// Table names used by the ChannelTracer.
const (
	SampleTable  = "channel_samples"
	SummaryTable = "channel_summaries"
)

type sampleEntry struct {
	Time      int64
	Channel   string
	Op        string
	Value     string
	Occupancy int
}

type summaryEntry struct {
	Channel             string
	Capacity            int
	AverageOccupancy    float64
	AverageReadInterval int64
	TotalReads          int64
	TotalTime           int64
	MaxOccupancy        int
}

type named interface {
	Name() string
}

// A ChannelTracer is a hook that stores every channel read and write as a
// row. Times are in picoseconds.
type ChannelTracer struct {
	mu         sync.Mutex
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	numSamples int
}

// NewChannelTracer creates a ChannelTracer and the tables it writes to.
func NewChannelTracer(
	timeTeller timing.TimeTeller,
	backend datarecording.DataRecorder,
) *ChannelTracer {
	t := &ChannelTracer{
		timeTeller: timeTeller,
		backend:    backend,
	}

	backend.CreateTable(SampleTable, sampleEntry{})
	backend.CreateTable(SummaryTable, summaryEntry{})

	return t
}

// NumSamples returns the number of channel operations recorded.
func (t *ChannelTracer) NumSamples() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.numSamples
}

// Func records a channel operation.
func (t *ChannelTracer) Func(ctx hooking.HookCtx) {
	var op string

	switch ctx.Pos {
	case queueing.HookPosChannelWrite:
		op = "write"
	case queueing.HookPosChannelRead:
		op = "read"
	default:
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := sampleEntry{
		Time:      int64(t.timeTeller.Now()),
		Channel:   ctx.Domain.(named).Name(),
		Op:        op,
		Value:     fmt.Sprint(ctx.Item),
		Occupancy: ctx.Detail.(int),
	}

	t.backend.InsertData(SampleTable, entry)
	t.numSamples++
}

// RecordReport stores the end-of-run report of a channel.
func (t *ChannelTracer) RecordReport(r queueing.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.InsertData(SummaryTable, summaryEntry{
		Channel:             r.Name,
		Capacity:            r.Capacity,
		AverageOccupancy:    r.AverageOccupancy,
		AverageReadInterval: int64(r.AverageReadInterval),
		TotalReads:          int64(r.TotalReads),
		TotalTime:           int64(r.TotalTime),
		MaxOccupancy:        r.MaxOccupancy,
	})
}
