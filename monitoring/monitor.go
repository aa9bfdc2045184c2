// Package monitoring turns a running simulation into a web server that can
// be watched and paused from a browser.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/fifosim/monitoring/web"
	"github.com/sarchlab/fifosim/sim/id"
	"github.com/sarchlab/fifosim/sim/timing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Channel is a channel that the monitor can show.
type Channel interface {
	Name() string
	Size() int
	Capacity() int
}

// Monitor can turn a simulation into a server and allows external monitoring
// and controlling of the simulation.
type Monitor struct {
	sched           *timing.Scheduler
	channels        []Channel
	portNumber      int
	profileDuration time.Duration
	idGen           id.IDGenerator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	listener net.Listener
	server   *http.Server
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
		idGen:           id.NewIDGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// RegisterScheduler registers the scheduler that drives the simulation.
func (m *Monitor) RegisterScheduler(s *timing.Scheduler) {
	m.sched = s
}

// RegisterChannel registers a channel to be monitored.
func (m *Monitor) RegisterChannel(c Channel) {
	m.channels = append(m.channels, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.idGen.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the monitoring API and pages.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseScheduler)
	r.HandleFunc("/api/continue", m.continueScheduler)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/channels", m.listChannels)
	r.HandleFunc("/api/channel/{name}", m.channelDetails)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	dieOnErr(err)

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	return url
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer() {
	if m.server == nil {
		return
	}

	dieOnErr(m.server.Close())
	m.server = nil
}

func (m *Monitor) pauseScheduler(w http.ResponseWriter, _ *http.Request) {
	m.sched.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueScheduler(w http.ResponseWriter, _ *http.Request) {
	m.sched.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

type nowRsp struct {
	Now    int64  `json:"now"`
	NowStr string `json:"now_str"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.sched.Now()
	writeJSON(w, nowRsp{Now: int64(now), NowStr: now.String()})
}

type channelRsp struct {
	Name  string `json:"channel"`
	Level int    `json:"level"`
	Cap   int    `json:"cap"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := channelsParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	var rsp []channelRsp

	m.sched.Inspect(func() {
		rsp = make([]channelRsp, 0, len(m.channels))
		for _, c := range m.channels {
			rsp = append(rsp, channelRsp{
				Name:  c.Name(),
				Level: c.Size(),
				Cap:   c.Capacity(),
			})
		}
	})

	writeJSON(w, sortAndSelectChannels(rsp, sortMethod, limit, offset))
}

func channelsParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intQuery(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intQuery(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return v, nil
}

func channelPercent(c channelRsp) float64 {
	return float64(c.Level) / float64(c.Cap)
}

// sortAndSelectChannels orders the channels by fill and returns the page
// selected by offset and limit. A limit of 0 means no limit.
func sortAndSelectChannels(
	channels []channelRsp,
	sortMethod string,
	limit, offset int,
) []channelRsp {
	less := func(i, j int) bool {
		a, b := channels[i], channels[j]

		if sortMethod == "level" && a.Level != b.Level {
			return a.Level > b.Level
		}

		if channelPercent(a) != channelPercent(b) {
			return channelPercent(a) > channelPercent(b)
		}

		return a.Level > b.Level
	}
	sort.SliceStable(channels, less)

	if offset > len(channels) {
		offset = len(channels)
	}

	end := len(channels)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return channels[offset:end]
}

func (m *Monitor) channelDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var channel Channel
	for _, c := range m.channels {
		if c.Name() == name {
			channel = c
		}
	}

	if channel == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Channel not found"))
		dieOnErr(err)

		return
	}

	buf := bytes.NewBuffer(nil)

	m.sched.Inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(channel)
		serializer.SetMaxDepth(1)
		dieOnErr(serializer.Serialize(buf))
	})

	_, err := w.Write(buf.Bytes())
	dieOnErr(err)
}

type processRsp struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	WaitingOn string `json:"waiting_on,omitempty"`
	WakeAt    string `json:"wake_at,omitempty"`
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	var rsp []processRsp

	m.sched.Inspect(func() {
		for _, p := range m.sched.Processes() {
			pr := processRsp{
				Name:  p.Name(),
				State: p.State().String(),
			}

			switch p.State() {
			case timing.ProcessWaitingEvent:
				pr.WaitingOn = p.WaitingOn().Name()
			case timing.ProcessWaitingTime:
				pr.WakeAt = p.WakeAt().String()
			}

			rsp = append(rsp, pr)
		}
	})

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
