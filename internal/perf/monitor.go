// Package perf samples process and runtime statistics around a replay run
// for the report's optional performance block.
package perf

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Report is the performance block attached to a session report when
// monitoring is enabled.
type Report struct {
	DurationMs     float64 `json:"durationMs"`
	CPUPercent     float64 `json:"cpuPercent"`
	MemoryRSSBytes uint64  `json:"memoryRssBytes"`
	HeapAllocBytes uint64  `json:"heapAllocBytes"`
	HeapDeltaBytes int64   `json:"heapDeltaBytes"`
	NumGC          uint32  `json:"numGc"`
	Goroutines     int     `json:"goroutines"`
	SystemMemUsed  float64 `json:"systemMemUsedPercent"`
}

// Monitor captures a baseline at Start and produces a Report at Stop.
// One monitor covers one replay run.
type Monitor struct {
	logger *zap.Logger
	proc   *process.Process

	started   time.Time
	startHeap uint64
	startGC   uint32
}

// NewMonitor creates a monitor for the current process. A nil process
// handle (unsupported platform) degrades to runtime-only sampling.
func NewMonitor(logger *zap.Logger) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("Process inspection unavailable, runtime stats only", zap.Error(err))
		proc = nil
	}
	return &Monitor{logger: logger, proc: proc}
}

// Start records the baseline.
func (m *Monitor) Start() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.started = time.Now()
	m.startHeap = ms.HeapAlloc
	m.startGC = ms.NumGC

	if m.proc != nil {
		// Prime the CPU delta so Stop reports utilisation over the run
		// rather than since process start.
		m.proc.Percent(0) //nolint:errcheck
	}
}

// Stop samples final statistics and returns the report.
func (m *Monitor) Stop() *Report {
	elapsed := time.Since(m.started)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	report := &Report{
		DurationMs:     float64(elapsed.Microseconds()) / 1000.0,
		HeapAllocBytes: ms.HeapAlloc,
		HeapDeltaBytes: int64(ms.HeapAlloc) - int64(m.startHeap),
		NumGC:          ms.NumGC - m.startGC,
		Goroutines:     runtime.NumGoroutine(),
	}

	if m.proc != nil {
		if cpu, err := m.proc.Percent(0); err == nil {
			report.CPUPercent = cpu
		}
		if info, err := m.proc.MemoryInfo(); err == nil && info != nil {
			report.MemoryRSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.SystemMemUsed = vm.UsedPercent
	}

	m.logger.Debug("Performance sample collected",
		zap.Float64("duration_ms", report.DurationMs),
		zap.Float64("cpu_percent", report.CPUPercent),
		zap.Uint64("rss_bytes", report.MemoryRSSBytes))

	return report
}
