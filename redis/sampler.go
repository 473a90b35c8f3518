package redis

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadSample host utilization in percent (0-100)
type LoadSample struct {
	CPUPercent float64
	MemPercent float64
}

// Score combined load used by the capacity policy
func (s LoadSample) Score() float64 {
	return (s.CPUPercent + s.MemPercent) / 2
}

// LoadSampler reports host load
type LoadSampler interface {
	Sample(ctx context.Context) (LoadSample, error)
}

// SystemLoadSampler reads CPU and memory utilization of the host via gopsutil
type SystemLoadSampler struct{}

// Sample CPU percent since the previous call (non-blocking) and virtual memory usage
func (SystemLoadSampler) Sample(ctx context.Context) (LoadSample, error) {
	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return LoadSample{}, fmt.Errorf("sample cpu: %w", err)
	}
	if len(cpus) == 0 {
		return LoadSample{}, fmt.Errorf("sample cpu: no data")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return LoadSample{}, fmt.Errorf("sample memory: %w", err)
	}

	return LoadSample{CPUPercent: cpus[0], MemPercent: vm.UsedPercent}, nil
}

// StaticLoadSampler always reports the same sample
type StaticLoadSampler struct {
	Load LoadSample
	Err  error
}

// Sample returns the fixed sample
func (s *StaticLoadSampler) Sample(context.Context) (LoadSample, error) {
	return s.Load, s.Err
}

// Set replaces the reported sample
func (s *StaticLoadSampler) Set(cpuPercent, memPercent float64) {
	s.Load = LoadSample{CPUPercent: cpuPercent, MemPercent: memPercent}
}
