package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats снимает показатели процесса сервера для отладочного REST.
type ProcessStats struct {
	started time.Time
	proc    *process.Process
}

// NewProcessStats создаёт снимальщик метрик процесса.
func NewProcessStats() *ProcessStats {
	// nil-процесс допустим: CPU уйдёт в системный фолбэк
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &ProcessStats{started: time.Now(), proc: proc}
}

// Uptime возвращает время работы в человекочитаемом виде.
func (ps *ProcessStats) Uptime() string {
	up := time.Since(ps.started).Round(time.Second)
	if days := int(up.Hours()) / 24; days > 0 {
		return fmt.Sprintf("%dд %s", days, up-time.Duration(days)*24*time.Hour)
	}
	return up.String()
}

// HeapMB возвращает занятую кучу в мегабайтах.
func (ps *ProcessStats) HeapMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / 1024 / 1024
}

// CPUPercent возвращает загрузку CPU процессом; если метрика процесса
// недоступна (контейнеры без /proc) — системную.
func (ps *ProcessStats) CPUPercent() float64 {
	if ps.proc != nil {
		if v, err := ps.proc.CPUPercent(); err == nil {
			return v
		}
	}
	return ps.SystemCPUPercent()
}

// SystemCPUPercent возвращает загрузку CPU всей системы.
func (ps *ProcessStats) SystemCPUPercent() float64 {
	vals, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(vals) == 0 {
		return 0
	}
	return vals[0]
}

// MemoryDetails возвращает разбивку памяти рантайма для /api/stats.
func (ps *ProcessStats) MemoryDetails() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"heap_alloc_mb":  float64(m.HeapAlloc) / 1024 / 1024,
		"heap_sys_mb":    float64(m.HeapSys) / 1024 / 1024,
		"total_alloc_mb": float64(m.TotalAlloc) / 1024 / 1024,
		"gc_cycles":      m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}
}
