package mockbackend

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Service statuses as the dashboard backend reports them.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusWarning = "warning"
)

// Service is a Windows service in the simulated fleet.
type Service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Server is a host in the simulated fleet, in the backend's JSON shape.
type Server struct {
	Name        string    `json:"name"`
	IP          string    `json:"ip"`
	Location    string    `json:"location"`
	Type        string    `json:"type"`
	OS          string    `json:"os"`
	Uptime      float64   `json:"uptime"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	DiskUsage   float64   `json:"disk_usage"`
	Services    []Service `json:"services"`
}

// Stats is the fleet summary served on GET /stats.
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
	Timestamp        string  `json:"timestamp"`
}

var commonServices = []Service{
	{Name: "Voxco.InstallationService.exe", Description: "Installation Service"},
	{Name: "WindowsUpdateService", Description: "Windows Update Service"},
	{Name: "W3SVC", Description: "IIS Web Server"},
}

var servicesByType = map[string][]Service{
	"Database Server": {
		{Name: "SQL Server", Description: "SQL Database Engine"},
		{Name: "SQLAgent", Description: "SQL Server Agent"},
	},
	"Directory Server": {
		{Name: "VoxcoDirectoryService", Description: "Directory Service"},
		{Name: "ActiveDirectory", Description: "Active Directory"},
	},
	"Admin Server": {
		{Name: "Voxco A4S Task Server", Description: "A4S Task Service"},
		{Name: "Voxco Email Server", Description: "Email Service"},
		{Name: "Voxco Integration Service", Description: "Integration Service"},
		{Name: "Voxco Task Server", Description: "Task Service"},
	},
	"Application Server": {
		{Name: "ServNoServer", Description: "ServNo Service"},
		{Name: "ApplicationPool", Description: "IIS Application Pool"},
	},
	"CATI Server": {
		{Name: "VoxcoBridgeService", Description: "Bridge Service"},
		{Name: "VoxcoCATIService", Description: "CATI Service"},
	},
	"Reporting Server": {
		{Name: "VoxcoReportingService", Description: "Reporting Service"},
		{Name: "SQLReportingServices", Description: "SQL Reporting Services"},
	},
	"Dialer Server": {
		{Name: "ProntoServer", Description: "Pronto Dialer Service"},
		{Name: "DialerManager", Description: "Dialer Management Service"},
		{Name: "Voxco Telephone Gateway", Description: "Telephony Gateway"},
	},
}

// DefaultFleet returns the ten-server Voxco fleet with every service online.
func DefaultFleet() []Server {
	hosts := []struct{ name, ip, typ, os string }{
		{"VXSQL1", "172.16.1.150", "Database Server", "Windows Server 2019"},
		{"VXDIRSRV", "172.16.1.151", "Directory Server", "Windows Server 2019"},
		{"VXOADMIN", "172.16.1.160", "Admin Server", "Windows Server 2016"},
		{"VXSERVNO", "172.16.1.27", "Application Server", "Windows Server 2016"},
		{"VXCATI1", "172.16.1.156", "CATI Server", "Windows Server 2019"},
		{"VXCATI2", "172.16.1.157", "CATI Server", "Windows Server 2019"},
		{"VXREPORT", "172.16.1.153", "Reporting Server", "Windows Server 2016"},
		{"VXDIAL1", "172.16.1.161", "Dialer Server", "Windows Server 2016"},
		{"VXDIAL2", "172.16.1.162", "Dialer Server", "Windows Server 2016"},
		{"VXDLR1", "172.16.1.163", "Dialer Server", "Windows Server 2016"},
	}

	servers := make([]Server, 0, len(hosts))
	for i, h := range hosts {
		services := make([]Service, 0, len(commonServices)+4)
		services = append(services, commonServices...)
		services = append(services, servicesByType[h.typ]...)
		for j := range services {
			services[j].Status = StatusOnline
		}
		servers = append(servers, Server{
			Name:        h.name,
			IP:          h.ip,
			Location:    "Montreal",
			Type:        h.typ,
			OS:          h.os,
			Uptime:      float64(10 + 7*i),
			CPUUsage:    20 + float64(3*i),
			MemoryUsage: 40 + float64(2*i),
			DiskUsage:   50 + float64(i),
			Services:    services,
		})
	}
	return servers
}

// Fleet is the mutable, concurrency-safe state of the simulated servers.
type Fleet struct {
	mu      sync.RWMutex
	servers []Server
	jitter  bool
}

// NewFleet copies servers into a [Fleet]. When jitter is true, resource
// usage drifts a little on every read, the way live metrics do.
func NewFleet(servers []Server, jitter bool) *Fleet {
	return &Fleet{servers: cloneServers(servers), jitter: jitter}
}

// Servers returns servers matching search (name, IP or location substring,
// case-insensitive) and status (at least one service in that status).
func (f *Fleet) Servers(search, status string) []Server {
	if f.jitter {
		f.drift()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	search = strings.ToLower(search)
	out := make([]Server, 0, len(f.servers))
	for _, s := range f.servers {
		if search != "" &&
			!strings.Contains(strings.ToLower(s.Name), search) &&
			!strings.Contains(strings.ToLower(s.IP), search) &&
			!strings.Contains(strings.ToLower(s.Location), search) {
			continue
		}
		if status != "" && !hasServiceStatus(s, status) {
			continue
		}
		out = append(out, cloneServer(s))
	}
	return out
}

// Server returns a copy of the named server.
func (f *Fleet) Server(name string) (Server, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.servers {
		if s.Name == name {
			return cloneServer(s), true
		}
	}
	return Server{}, false
}

// ServerByIP returns a copy of the server with the given address.
func (f *Fleet) ServerByIP(ip string) (Server, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.servers {
		if s.IP == ip {
			return cloneServer(s), true
		}
	}
	return Server{}, false
}

// Replace swaps the whole fleet definition.
func (f *Fleet) Replace(servers []Server) {
	f.mu.Lock()
	f.servers = cloneServers(servers)
	f.mu.Unlock()
}

// ServiceStatus returns the status of one service.
func (f *Fleet) ServiceStatus(server, service string) (string, bool) {
	s, ok := f.Server(server)
	if !ok {
		return "", false
	}
	for _, svc := range s.Services {
		if svc.Name == service {
			return svc.Status, true
		}
	}
	return "", false
}

// SetServiceStatus updates one service. It returns the previous status and
// errServerNotFound or errServiceNotFound if the target does not exist.
func (f *Fleet) SetServiceStatus(server, service, status string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.servers {
		if f.servers[i].Name != server {
			continue
		}
		for j := range f.servers[i].Services {
			svc := &f.servers[i].Services[j]
			if svc.Name == service {
				prev := svc.Status
				svc.Status = status
				return prev, nil
			}
		}
		return "", errServiceNotFound
	}
	return "", errServerNotFound
}

// SetAllServices sets every service on server to status.
func (f *Fleet) SetAllServices(server, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.servers {
		if f.servers[i].Name == server {
			for j := range f.servers[i].Services {
				f.servers[i].Services[j].Status = status
			}
			if status == StatusOnline {
				f.servers[i].Uptime = 0
			}
			return nil
		}
	}
	return errServerNotFound
}

// Stats summarises the fleet at now.
func (f *Fleet) Stats(now time.Time) Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st := Stats{TotalServers: len(f.servers)}
	var cpu, mem, disk float64
	for _, s := range f.servers {
		cpu += s.CPUUsage
		mem += s.MemoryUsage
		disk += s.DiskUsage
		for _, svc := range s.Services {
			st.TotalServices++
			switch svc.Status {
			case StatusOnline:
				st.OnlineServices++
			case StatusWarning:
				st.WarningServices++
			case StatusOffline:
				st.OfflineServices++
			}
		}
	}

	if st.TotalServices > 0 {
		st.UptimePercentage = round2(float64(st.OnlineServices) / float64(st.TotalServices) * 100)
	}
	if st.TotalServers > 0 {
		n := float64(st.TotalServers)
		st.AvgCPUUsage = round2(cpu / n)
		st.AvgMemoryUsage = round2(mem / n)
		st.AvgDiskUsage = round2(disk / n)
	}
	st.Timestamp = now.UTC().Format("2006-01-02T15:04:05.000000")
	return st
}

// drift nudges resource usage by up to ±2 points, clamped to [1, 99].
func (f *Fleet) drift() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.servers {
		s := &f.servers[i]
		s.CPUUsage = clampUsage(s.CPUUsage + rand.Float64()*4 - 2)
		s.MemoryUsage = clampUsage(s.MemoryUsage + rand.Float64()*4 - 2)
		s.DiskUsage = clampUsage(s.DiskUsage + rand.Float64()*0.2 - 0.1)
	}
}

func hasServiceStatus(s Server, status string) bool {
	for _, svc := range s.Services {
		if svc.Status == status {
			return true
		}
	}
	return false
}

func cloneServer(s Server) Server {
	s.Services = append([]Service(nil), s.Services...)
	return s
}

func cloneServers(servers []Server) []Server {
	out := make([]Server, len(servers))
	for i, s := range servers {
		out[i] = cloneServer(s)
	}
	return out
}

func clampUsage(v float64) float64 {
	return round2(math.Max(1, math.Min(99, v)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
