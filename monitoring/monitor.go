// Package monitoring serves a running simulation over HTTP so that it can be
// inspected and paused from outside.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"go.uber.org/zap"

	"github.com/sarchlab/rsim/monitoring/web"
	"github.com/sarchlab/rsim/sim"
)

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	driver     sim.Driver
	portNumber int
	logger     *zap.Logger
	registry   *prometheus.Registry

	server   *http.Server
	listener net.Listener

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger:   zap.L(),
		registry: prometheus.NewRegistry(),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warn("monitor port not allowed, using a random port",
			zap.Int("port", portNumber))

		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(logger *zap.Logger) *Monitor {
	m.logger = logger
	return m
}

// Registry returns the registry of the metrics served on /metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDriver registers the driver that runs the simulation and exports
// its progress as metrics.
func (m *Monitor) RegisterDriver(d sim.Driver) {
	m.driver = d

	m.registry.MustRegister(
		m.statGauge("steps", "Number of steps completed.",
			func(s sim.Stats) uint64 { return s.Steps }),
		m.statGauge("passes", "Number of passes completed.",
			func(s sim.Stats) uint64 { return s.Passes }),
		m.statGauge("cycle", "Number of clock ticks broadcast.",
			func(s sim.Stats) uint64 { return s.Cycle }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rsim",
			Name:      "in_flight_events",
			Help:      "Number of events sent and not yet acknowledged.",
		}, func() float64 {
			return float64(d.Manager().InFlight())
		}),
	)
}

func (m *Monitor) statGauge(
	name, help string,
	value func(sim.Stats) uint64,
) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "rsim",
		Name:      name,
		Help:      help,
	}, func() float64 {
		return float64(value(m.driver.Stats()))
	})
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
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

// Router returns the routes served by the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseDriver)
	r.HandleFunc("/api/continue", m.continueDriver)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/hangdetector/ports", m.hangDetectorPorts)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics",
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", errors.Wrap(err, "starting monitor")
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.logger.Info("monitoring simulation", zap.String("url", m.URL()))

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("monitor stopped", zap.Error(err))
		}
	}()

	return m.URL(), nil
}

// URL returns the address of the running server, or an empty string.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// OpenInBrowser opens the monitoring page in the default browser.
func (m *Monitor) OpenInBrowser() error {
	url := m.URL()
	if url == "" {
		return errors.New("monitor server is not running")
	}

	return browser.OpenURL(url)
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pauseDriver(w http.ResponseWriter, _ *http.Request) {
	m.driver.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueDriver(w http.ResponseWriter, _ *http.Request) {
	m.driver.Continue()
	w.WriteHeader(http.StatusOK)
}

type nowRsp struct {
	sim.Stats

	InFlight int  `json:"in_flight"`
	Alive    bool `json:"alive"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	mgr := m.driver.Manager()

	m.writeJSON(w, nowRsp{
		Stats:    m.driver.Stats(),
		InFlight: mgr.InFlight(),
		Alive:    mgr.Alive(),
	})
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	comps := m.driver.Components()

	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.Name())
	}

	m.writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		m.internalError(w, err)
	}
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		m.badRequest(w, err)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		m.badRequest(w, err)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		m.internalError(w, err)
	}
}

// hangDetectorPorts lists the receivers that hold a value their owner has
// not acknowledged, which is where a stalled simulation usually stops.
func (m *Monitor) hangDetectorPorts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := m.portsParseParams(r)
	if err != nil {
		m.badRequest(w, err)
		return
	}

	stuck := m.driver.Manager().StuckPorts()

	if offset > len(stuck) {
		offset = len(stuck)
	}

	end := len(stuck)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	m.writeJSON(w, append([]sim.PortStatus{}, stuck[offset:end]...))
}

func (*Monitor) portsParseParams(r *http.Request) (limit, offset int, err error) {
	parse := func(key string) (int, error) {
		s := r.URL.Query().Get(key)
		if s == "" {
			return 0, nil
		}

		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, errors.Errorf("invalid %s: %q", key, s)
		}

		return n, nil
	}

	if limit, err = parse("limit"); err != nil {
		return 0, 0, err
	}

	if offset, err = parse("offset"); err != nil {
		return 0, 0, err
	}

	return limit, offset, nil
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Component {
	component := m.driver.GetComponentByName(name)
	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Component not found"))
	}

	return component
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBarSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.Snapshot())
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.internalError(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.internalError(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		m.internalError(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

// collectProfile samples the CPU for a while, one second unless the
// duration query parameter says otherwise.
func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("duration"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			m.badRequest(w, err)
			return
		}

		duration = d
	}

	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.internalError(w, err)
		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.internalError(w, err)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.logger.Debug("monitor response not written", zap.Error(err))
	}
}

func (m *Monitor) badRequest(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Error: %s", err)
}

func (m *Monitor) internalError(w http.ResponseWriter, err error) {
	m.logger.Error("monitor request failed", zap.Error(err))

	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "Error: %s", err)
}
