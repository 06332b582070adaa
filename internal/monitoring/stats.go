package monitoring

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a snapshot of this process's resource usage.
type ProcessStats struct {
	Uptime     string  `json:"uptime"`
	Goroutines int     `json:"goroutines"`
	MemRSS     uint64  `json:"memRss"`
	CPUPercent float64 `json:"cpuPercent"`
}

// StatsCollector samples process statistics for the health endpoint.
type StatsCollector struct {
	started time.Time
	proc    *process.Process
}

// NewStatsCollector creates a collector for the current process.
func NewStatsCollector() *StatsCollector {
	c := &StatsCollector{started: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = proc
	}
	return c
}

// Collect returns the current stats. Fields gopsutil cannot read on this platform stay zero.
func (c *StatsCollector) Collect() ProcessStats {
	stats := ProcessStats{
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}
	if c.proc == nil {
		return stats
	}
	if mem, err := c.proc.MemoryInfo(); err == nil {
		stats.MemRSS = mem.RSS
	}
	if cpu, err := c.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}
