package mockbackend

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// DiskUsage describes one logical disk in the shape PowerShell's
// Win32_LogicalDisk projection produces. Sizes are in GB.
type DiskUsage struct {
	DeviceID    string  `json:"DeviceID"`
	Size        float64 `json:"Size"`
	FreeSpace   float64 `json:"FreeSpace"`
	PercentUsed float64 `json:"PercentUsed"`
}

// HostInfo is the static description of a host. TotalRAM is in GB.
type HostInfo struct {
	OSName    string  `json:"OSName"`
	OSVersion string  `json:"OSVersion"`
	CPUName   string  `json:"CPUName"`
	CPUCores  int     `json:"CPUCores"`
	TotalRAM  float64 `json:"TotalRAM"`
	Hostname  string  `json:"Hostname"`
}

// HostMetrics is a live resource snapshot of a host.
type HostMetrics struct {
	CPUUsage    float64     `json:"cpuUsage"`
	MemoryUsage float64     `json:"memoryUsage"`
	DiskUsage   []DiskUsage `json:"diskUsage"`
	Uptime      string      `json:"uptime"`
	ServerInfo  *HostInfo   `json:"serverInfo,omitempty"`
}

// Executor stands in for the remote execution layer behind the /winrm
// routes. Implementations receive the target server's IP address.
type Executor interface {
	Metrics(ctx context.Context, ip string) (HostMetrics, error)
	Info(ctx context.Context, ip string) (HostInfo, error)
}

// HostExecutor answers every WinRM query with the local machine's real
// figures, read through gopsutil. It makes the demo dashboard show live
// numbers without a Windows host to talk to.
type HostExecutor struct{}

// Info implements [Executor].
func (HostExecutor) Info(ctx context.Context, ip string) (HostInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("host info: %w", err)
	}

	info := HostInfo{
		OSName:    hi.Platform,
		OSVersion: hi.PlatformVersion,
		Hostname:  hi.Hostname,
		CPUCores:  runtime.NumCPU(),
	}
	if info.OSName == "" {
		info.OSName = hi.OS
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUName = cpus[0].ModelName
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil && cores > 0 {
		info.CPUCores = cores
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalRAM = gigabytes(vm.Total)
	}
	return info, nil
}

// Metrics implements [Executor].
func (e HostExecutor) Metrics(ctx context.Context, ip string) (HostMetrics, error) {
	var m HostMetrics

	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return HostMetrics{}, fmt.Errorf("cpu usage: %w", err)
	}
	if len(percents) > 0 {
		m.CPUUsage = round2(percents[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostMetrics{}, fmt.Errorf("memory usage: %w", err)
	}
	m.MemoryUsage = round2(vm.UsedPercent)

	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return HostMetrics{}, fmt.Errorf("disk partitions: %w", err)
	}
	m.DiskUsage = make([]DiskUsage, 0, len(partitions))
	for _, p := range partitions {
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		m.DiskUsage = append(m.DiskUsage, DiskUsage{
			DeviceID:    p.Mountpoint,
			Size:        gigabytes(u.Total),
			FreeSpace:   gigabytes(u.Free),
			PercentUsed: round2(u.UsedPercent),
		})
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return HostMetrics{}, fmt.Errorf("uptime: %w", err)
	}
	m.Uptime = formatUptime(time.Duration(uptime) * time.Second)

	if info, err := e.Info(ctx, ip); err == nil {
		m.ServerInfo = &info
	}
	return m, nil
}

// FixedExecutor returns the same canned answers for every host.
type FixedExecutor struct {
	HostMetrics HostMetrics
	HostInfo    HostInfo
	Err         error
}

// Info implements [Executor].
func (f FixedExecutor) Info(ctx context.Context, ip string) (HostInfo, error) {
	if f.Err != nil {
		return HostInfo{}, f.Err
	}
	info := f.HostInfo
	if info.Hostname == "" {
		info.Hostname = ip
	}
	return info, nil
}

// Metrics implements [Executor].
func (f FixedExecutor) Metrics(ctx context.Context, ip string) (HostMetrics, error) {
	if f.Err != nil {
		return HostMetrics{}, f.Err
	}
	return f.HostMetrics, nil
}

// formatUptime renders d the way the PowerShell uptime probe does.
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
}

func gigabytes(b uint64) float64 {
	return math.Round(float64(b)/(1<<30)*100) / 100
}
