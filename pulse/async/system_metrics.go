package async

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/autonomy/errors"
)

// SystemMetrics reports job capacity alongside host memory usage
type SystemMetrics struct {
	JobsActive    int     `json:"jobs_active"`     // Jobs holding a capacity slot
	MaxRunning    int     `json:"max_running"`     // Capacity bound, 0 = unbounded
	MemoryUsedGB  float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent"`  // Memory utilization percentage
}

// getMemoryStats returns current memory usage in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// GetSystemMetrics returns current capacity and memory usage.
// Memory fields are zero when the host does not expose them.
func (m *Manager) GetSystemMetrics() SystemMetrics {
	active, max := m.Capacity()
	metrics := SystemMetrics{
		JobsActive: active,
		MaxRunning: max,
	}

	total, available, err := getMemoryStats()
	if err == nil && total > 0 {
		metrics.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		metrics.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		metrics.MemoryPercent = (metrics.MemoryUsedGB / metrics.MemoryTotalGB) * 100
	}
	return metrics
}
