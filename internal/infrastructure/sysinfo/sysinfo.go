// Package sysinfo samples host memory and CPU load for the dashboard
// status event.
package sysinfo

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerMB = 1024 * 1024

// Snapshot is the host health pushed to dashboards as the status event.
type Snapshot struct {
	RAM RAM `json:"ram"`
	CPU CPU `json:"cpu"`
}

// RAM reports memory in whole megabytes.
type RAM struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
}

// CPU reports overall utilisation as a percentage rounded to two decimals.
type CPU struct {
	Usage float64 `json:"usage"`
}

// Sampler produces host snapshots. Implemented by HostSampler and by fakes
// in tests.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// HostSampler reads the local machine through gopsutil.
type HostSampler struct{}

// NewHostSampler returns a sampler for the local host.
func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

// Sample reads memory and the CPU utilisation since the previous call.
// The first call after start-up measures since boot.
func (HostSampler) Sample(ctx context.Context) (Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading memory stats: %w", err)
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading cpu stats: %w", err)
	}

	var usage float64
	if len(percents) > 0 {
		usage = math.Round(percents[0]*100) / 100
	}

	return Snapshot{
		RAM: RAM{
			Total: vm.Total / bytesPerMB,
			Free:  vm.Available / bytesPerMB,
		},
		CPU: CPU{Usage: usage},
	}, nil
}
