package queueing

import (
	"fmt"
	"strings"

	"github.com/sarchlab/fifosim/sim/timing"
)

// Stats are the running counters of a channel. They only change on a
// successful read or write, never on a blocked attempt.
type Stats struct {
	Writes uint64
	Reads  uint64

	// OccupancySum adds up the occupancy seen by each read, right before
	// the element is removed.
	OccupancySum uint64
	MaxOccupancy int

	LastReadTime timing.VTime
}

// AverageOccupancy returns the mean occupancy seen by reads, or 0 if nothing
// was read.
func (s Stats) AverageOccupancy() float64 {
	if s.Reads == 0 {
		return 0
	}

	return float64(s.OccupancySum) / float64(s.Reads)
}

// AverageReadInterval returns the time of the last read divided by the
// number of reads, or 0 if nothing was read.
func (s Stats) AverageReadInterval() timing.VTime {
	if s.Reads == 0 {
		return 0
	}

	return s.LastReadTime / timing.VTime(s.Reads)
}

// Report is the end-of-run summary of a channel.
type Report struct {
	Name                string       `json:"name"`
	Capacity            int          `json:"capacity"`
	AverageOccupancy    float64      `json:"average_occupancy"`
	AverageReadInterval timing.VTime `json:"average_read_interval"`
	TotalReads          uint64       `json:"total_reads"`
	TotalTime           timing.VTime `json:"total_time"`
	MaxOccupancy        int          `json:"max_occupancy"`
}

func (r Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s capacity: %d\n", r.Name, r.Capacity)
	fmt.Fprintf(&b, "Average fill depth at read: %g\n", r.AverageOccupancy)
	fmt.Fprintf(&b, "Average transfer time per item: %s\n", r.AverageReadInterval)
	fmt.Fprintf(&b, "Max fill depth: %d\n", r.MaxOccupancy)
	fmt.Fprintf(&b, "Total items transferred: %d\n", r.TotalReads)
	fmt.Fprintf(&b, "Total time: %s\n", r.TotalTime)

	return b.String()
}
