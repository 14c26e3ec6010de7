package winboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ServiceStatus is the dashboard's view of a Windows service.
//
// ServiceStatus is a string type so it round-trips through the backend's
// JSON unchanged. Decoding is lenient: besides the four dashboard values it
// accepts Get-Service state names and the numeric ServiceControllerStatus
// values that ConvertTo-Json emits.
type ServiceStatus string

const (
	// ServiceOnline means the service is running.
	ServiceOnline ServiceStatus = "online"

	// ServiceOffline means the service is stopped.
	ServiceOffline ServiceStatus = "offline"

	// ServiceWarning means the service is transitioning or paused.
	ServiceWarning ServiceStatus = "warning"

	// ServiceUnknown means the status could not be determined.
	ServiceUnknown ServiceStatus = "unknown"
)

// String implements fmt.Stringer.
func (s ServiceStatus) String() string {
	return string(s)
}

// ParseServiceStatus maps a status name to a [ServiceStatus].
//
// Mapping (case-insensitive):
//   - [ServiceOnline]: "online", "running", "up", "started"
//   - [ServiceOffline]: "offline", "stopped", "down"
//   - [ServiceWarning]: "warning", "startpending", "stoppending",
//     "continuepending", "pausepending", "paused", "degraded"
//   - [ServiceUnknown]: anything else, including ""
func ParseServiceStatus(s string) ServiceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "running", "up", "started":
		return ServiceOnline
	case "offline", "stopped", "down":
		return ServiceOffline
	case "warning", "startpending", "stoppending", "continuepending", "pausepending", "paused", "degraded":
		return ServiceWarning
	default:
		return ServiceUnknown
	}
}

// serviceControllerStatus maps System.ServiceProcess.ServiceControllerStatus
// values to dashboard statuses.
func serviceControllerStatus(n int) ServiceStatus {
	switch n {
	case 4: // Running
		return ServiceOnline
	case 1: // Stopped
		return ServiceOffline
	case 2, 3, 5, 6, 7: // pending states and Paused
		return ServiceWarning
	default:
		return ServiceUnknown
	}
}

// UnmarshalJSON accepts a status name or a numeric ServiceControllerStatus.
func (s *ServiceStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ServiceUnknown
		return nil
	}

	if data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = ParseServiceStatus(name)
		return nil
	}

	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("service status: unsupported value %s", data)
	}
	*s = serviceControllerStatus(n)
	return nil
}
