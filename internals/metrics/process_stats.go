package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats samples this process's own CPU and memory usage on a ticker,
// smoothing CPU with an exponential moving average the way short point
// samples from gopsutil tend to need.
type ProcessStats struct {
	mu         sync.RWMutex
	cpuPercent float64
	rssBytes   uint64

	proc *process.Process

	cpuGauge prometheus.Gauge
	memGauge prometheus.Gauge

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewProcessStats creates a sampler for the current process. If the process
// handle cannot be obtained, sampling becomes a no-op and Snapshot always
// reports zero values.
func NewProcessStats() *ProcessStats {
	p, _ := process.NewProcess(int32(os.Getpid()))
	return &ProcessStats{
		proc: p,
		cpuGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubd_process_cpu_percent",
			Help: "CPU usage of the pubsubd process, percent of one core.",
		}),
		memGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubd_process_rss_bytes",
			Help: "Resident set size of the pubsubd process, in bytes.",
		}),
		stopCh: make(chan struct{}),
	}
}

// Run samples CPU and RSS every interval until Stop is called. Intended to
// run in its own goroutine for the lifetime of the process.
func (p *ProcessStats) Run(interval time.Duration) {
	if p.proc == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *ProcessStats) sample() {
	current, err := p.proc.Percent(0)
	if err != nil {
		current = 0
	}

	memInfo, err := p.proc.MemoryInfo()
	var rss uint64
	if err == nil && memInfo != nil {
		rss = memInfo.RSS
	}

	p.mu.Lock()
	if p.cpuPercent == 0 {
		p.cpuPercent = current
	} else {
		const alpha = 0.3
		p.cpuPercent = alpha*current + (1-alpha)*p.cpuPercent
	}
	p.rssBytes = rss
	p.mu.Unlock()

	p.cpuGauge.Set(p.cpuPercent)
	p.memGauge.Set(float64(rss))
}

// Stop ends the sampling loop started by Run. Safe to call more than once.
func (p *ProcessStats) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Snapshot returns the most recently sampled CPU percent and RSS bytes.
func (p *ProcessStats) Snapshot() (cpuPercent float64, rssBytes uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cpuPercent, p.rssBytes
}
