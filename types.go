package winboard

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Server is one monitored Windows host as reported by GET /servers.
type Server struct {
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	Location    string    `json:"location,omitempty"`
	Type        string    `json:"type,omitempty"`
	OS          string    `json:"os,omitempty"`
	Uptime      Uptime    `json:"uptime,omitempty"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	Services    []Service `json:"services"`
}

// Service returns the named service and whether it exists.
func (s Server) Service(name string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// Service is a Windows service running on a [Server].
type Service struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ServiceStatus `json:"status"`
}

// Uptime is a server's uptime as the backend reports it. Backends send either
// a number of days or a preformatted string ("12 days, 3 hours, 5 minutes");
// both decode to their textual form.
type Uptime string

// UnmarshalJSON accepts a JSON string or number.
func (u *Uptime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = Uptime(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*u = Uptime(strconv.FormatFloat(f, 'f', -1, 64) + " days")
	return nil
}

// Stats is the fleet-wide summary reported by GET /stats.
type Stats struct {
	TotalServers     int     `json:"total_servers"`
	TotalServices    int     `json:"total_services"`
	OnlineServices   int     `json:"online_services"`
	WarningServices  int     `json:"warning_services"`
	OfflineServices  int     `json:"offline_services"`
	UptimePercentage float64 `json:"uptime_percentage"`
	AvgCPUUsage      float64 `json:"avg_cpu_usage"`
	AvgMemoryUsage   float64 `json:"avg_memory_usage"`
	AvgDiskUsage     float64 `json:"avg_disk_usage"`

	// Timestamp is passed through as sent; backends do not agree on a
	// timezone suffix.
	Timestamp string `json:"timestamp,omitempty"`
}

// ServerFilter narrows GET /servers. Empty fields are not sent.
type ServerFilter struct {
	// Search matches name, IP or location, case-insensitively.
	Search string

	// Status keeps servers with at least one service in this status.
	Status ServiceStatus
}

// LogFilter narrows GET /logs. Zero values are not sent.
type LogFilter struct {
	Limit   int
	Server  string
	Service string
	Level   string
}

// ActionOutcome is the backend's answer to a service action.
type ActionOutcome struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// RebootOutcome is the backend's answer to a reboot request.
type RebootOutcome struct {
	Message string `json:"message"`
}

// ServerMetrics is a live resource snapshot read over WinRM.
type ServerMetrics struct {
	CPUUsage    float64     `json:"cpuUsage"`
	MemoryUsage float64     `json:"memoryUsage"`
	DiskUsage   []DiskUsage `json:"diskUsage"`
	Uptime      string      `json:"uptime"`
	ServerInfo  *ServerInfo `json:"serverInfo,omitempty"`
}

// DiskUsage describes one fixed logical disk. Sizes are in GB.
type DiskUsage struct {
	DeviceID    string  `json:"DeviceID"`
	Size        float64 `json:"Size"`
	FreeSpace   float64 `json:"FreeSpace"`
	PercentUsed float64 `json:"PercentUsed"`
}

// ServerInfo is the static host description read over WinRM. TotalRAM is in GB.
type ServerInfo struct {
	OSName    string  `json:"OSName"`
	OSVersion string  `json:"OSVersion"`
	CPUName   string  `json:"CPUName"`
	CPUCores  int     `json:"CPUCores"`
	TotalRAM  float64 `json:"TotalRAM"`
	Hostname  string  `json:"Hostname"`
}

// WinRMService is one entry of Get-Service output.
type WinRMService struct {
	Name        string        `json:"Name"`
	DisplayName string        `json:"DisplayName,omitempty"`
	Status      ServiceStatus `json:"Status"`
	StartType   string        `json:"StartType,omitempty"`
}

// WinRMConfig holds the backend's WinRM connection settings.
type WinRMConfig struct {
	Enabled  bool   `json:"enabled"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Host     string `json:"host"`
	Port     string `json:"port"`
}

// WinRMStatus reports whether WinRM is switched on and configured.
type WinRMStatus struct {
	Enabled    bool `json:"enabled"`
	Configured bool `json:"configured"`
}

// ConnectionTest is the result of a WinRM connectivity probe.
type ConnectionTest struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}
