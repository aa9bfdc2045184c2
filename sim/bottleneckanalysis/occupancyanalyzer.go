// Package bottleneckanalysis measures how full channels are over time.
package bottleneckanalysis

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/timing"
	"github.com/tebeka/atexit"
)

// Observed is a channel that the analyzer can watch.
type Observed interface {
	hooking.Hookable
	Name() string
	Size() int
	Capacity() int
}

// OccupancyAnalyzer tracks, for every watched channel, how long each
// occupancy level was held. Unlike the per-read average the channel keeps,
// the average here is weighted by time.
type OccupancyAnalyzer struct {
	timeTeller timing.TimeTeller
	logger     zerolog.Logger
	lastTime   timing.VTime
	period     timing.VTime
	usePeriod  bool

	channels map[string]*channelInfo
}

type channelInfo struct {
	ch                    Observed
	lastLevel             int
	lastTime              timing.VTime
	levelToDuration       map[int]timing.VTime
	periodLevelToDuration map[int]timing.VTime
}

func weightedAverage(levelToDuration map[int]timing.VTime) float64 {
	sum := 0.0
	durationSum := 0.0

	for level, duration := range levelToDuration {
		sum += float64(level) * float64(duration)
		durationSum += float64(duration)
	}

	if durationSum == 0.0 {
		return 0.0
	}

	return sum / durationSum
}

// OccupancyAnalyzerBuilder builds OccupancyAnalyzers.
type OccupancyAnalyzerBuilder struct {
	timeTeller   timing.TimeTeller
	logger       zerolog.Logger
	period       timing.VTime
	reportAtExit bool
}

// MakeOccupancyAnalyzerBuilder creates a builder with a disabled logger.
func MakeOccupancyAnalyzerBuilder() OccupancyAnalyzerBuilder {
	return OccupancyAnalyzerBuilder{
		logger: zerolog.Nop(),
	}
}

// WithTimeTeller sets the clock the analyzer reads.
func (b OccupancyAnalyzerBuilder) WithTimeTeller(
	t timing.TimeTeller,
) OccupancyAnalyzerBuilder {
	b.timeTeller = t
	return b
}

// WithLogger sets where reports go.
func (b OccupancyAnalyzerBuilder) WithLogger(
	l zerolog.Logger,
) OccupancyAnalyzerBuilder {
	b.logger = l
	return b
}

// WithPeriod makes the analyzer also average over fixed windows and report
// whenever a window ends.
func (b OccupancyAnalyzerBuilder) WithPeriod(
	period timing.VTime,
) OccupancyAnalyzerBuilder {
	b.period = period
	return b
}

// WithReportAtExit makes the analyzer report when the program exits through
// atexit.
func (b OccupancyAnalyzerBuilder) WithReportAtExit() OccupancyAnalyzerBuilder {
	b.reportAtExit = true
	return b
}

// Build creates the OccupancyAnalyzer.
func (b OccupancyAnalyzerBuilder) Build() *OccupancyAnalyzer {
	if b.timeTeller == nil {
		panic("time teller is not set")
	}

	a := &OccupancyAnalyzer{
		timeTeller: b.timeTeller,
		logger:     b.logger,
		period:     b.period,
		usePeriod:  b.period > 0,
		channels:   make(map[string]*channelInfo),
	}

	if b.reportAtExit {
		atexit.Register(a.Report)
	}

	return a
}

// Watch starts tracking a channel from the current time.
func (a *OccupancyAnalyzer) Watch(ch Observed) {
	if _, ok := a.channels[ch.Name()]; ok {
		panic("channel " + ch.Name() + " is already watched")
	}

	a.channels[ch.Name()] = &channelInfo{
		ch:                    ch,
		lastLevel:             ch.Size(),
		lastTime:              a.timeTeller.Now(),
		levelToDuration:       make(map[int]timing.VTime),
		periodLevelToDuration: make(map[int]timing.VTime),
	}

	ch.AcceptHook(a)
}

// Func records an occupancy change.
func (a *OccupancyAnalyzer) Func(ctx hooking.HookCtx) {
	ch := ctx.Domain.(Observed)
	now := a.timeTeller.Now()

	if a.usePeriod && now/a.period != a.lastTime/a.period {
		a.Report()
		a.resetPeriod()
	}

	a.lastTime = now

	info, ok := a.channels[ch.Name()]
	if !ok {
		panic("channel not watched by OccupancyAnalyzer")
	}

	duration := now - info.lastTime
	info.levelToDuration[info.lastLevel] += duration

	if a.usePeriod {
		periodStart := now / a.period * a.period
		if duration > now-periodStart {
			duration = now - periodStart
		}

		info.periodLevelToDuration[info.lastLevel] += duration
	}

	info.lastTime = now
	info.lastLevel = ch.Size()
}

// AverageOccupancy returns the time-weighted average occupancy of a channel
// up to its last change.
func (a *OccupancyAnalyzer) AverageOccupancy(name string) float64 {
	return weightedAverage(a.mustGet(name).levelToDuration)
}

// PeriodAverageOccupancy returns the time-weighted average occupancy within
// the current window.
func (a *OccupancyAnalyzer) PeriodAverageOccupancy(name string) float64 {
	if !a.usePeriod {
		panic("period mode not enabled")
	}

	return weightedAverage(a.mustGet(name).periodLevelToDuration)
}

func (a *OccupancyAnalyzer) mustGet(name string) *channelInfo {
	info, ok := a.channels[name]
	if !ok {
		panic("channel " + name + " is not watched")
	}

	return info
}

func (a *OccupancyAnalyzer) resetPeriod() {
	for _, info := range a.channels {
		info.periodLevelToDuration = make(map[int]timing.VTime)
	}
}

// Report logs one line per watched channel.
func (a *OccupancyAnalyzer) Report() {
	names := make([]string, 0, len(a.channels))
	for name := range a.channels {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		info := a.channels[name]

		e := a.logger.Info().
			Str("channel", name).
			Stringer("time", a.timeTeller.Now()).
			Int("current", info.lastLevel).
			Float64("average", weightedAverage(info.levelToDuration)).
			Int("capacity", info.ch.Capacity())

		if a.usePeriod {
			e = e.Float64("period_average",
				weightedAverage(info.periodLevelToDuration))
		}

		e.Msg("occupancy")
	}
}
