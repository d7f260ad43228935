// Package tuner detects CPU and memory and sizes tinysweep's worker pools.
package tuner

const (
	minRequests = 2
	maxRequests = 16

	minScanWorkers = 4
	maxScanWorkers = 32

	minQueueSize = 16
	maxQueueSize = 1024
)

// Queue sizing: buffered records hold whole images in memory.
const (
	bytesPerRecord      = 512 * 1024
	queueMemoryFraction = 0.02
)

// SystemResources contains detected system resources.
type SystemResources struct {
	CPUCores     int
	TotalRAM     int64
	AvailableRAM int64
}

// OptimalConfig is the tuned concurrency for one run.
type OptimalConfig struct {
	// Requests bounds concurrent compression requests.
	Requests int

	// ScanWorkers is the directory walker parallelism.
	ScanWorkers int

	// QueueSize buffers records between scanner and pipeline.
	QueueSize int
}

// Calculate returns the configuration for resources. Requests is
// clamp(CPU*2, 2, 16): uploads are network bound, but the service
// throttles aggressive clients.
func Calculate(resources SystemResources) OptimalConfig {
	return OptimalConfig{
		Requests:    clamp(resources.CPUCores*2, minRequests, maxRequests),
		ScanWorkers: clamp(resources.CPUCores, minScanWorkers, maxScanWorkers),
		QueueSize:   calculateQueueSize(resources.AvailableRAM),
	}
}

// CalculateWithOverrides applies a request override greater than zero.
func CalculateWithOverrides(resources SystemResources, requests int) OptimalConfig {
	cfg := Calculate(resources)
	if requests > 0 {
		cfg.Requests = requests
	}
	return cfg
}

// Auto detects resources and calculates. Detection errors fall back to the
// partial result, which always carries the CPU count.
func Auto(requests int) OptimalConfig {
	resources, _ := Detect()
	return CalculateWithOverrides(resources, requests)
}

func calculateQueueSize(availableRAM int64) int {
	entries := int(float64(availableRAM) * queueMemoryFraction / bytesPerRecord)
	return clamp(entries, minQueueSize, maxQueueSize)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
