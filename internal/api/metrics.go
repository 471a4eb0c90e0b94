package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/keygrid-core/internal/session"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          *MQTTMetrics      `json:"mqtt,omitempty"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
	Devices       DeviceMetrics     `json:"devices"`
	Modules       int               `json:"modules"`
	Components    int               `json:"components"`
	Database      DatabaseMetrics   `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// TelemetryMetrics counts points sent to the time-series store.
type TelemetryMetrics struct {
	Connected bool   `json:"connected"`
	Written   uint64 `json:"points_written"`
	Failed    uint64 `json:"write_errors"`
}

// DeviceMetrics counts managed devices.
type DeviceMetrics struct {
	Total   int            `json:"total"`
	Live    int            `json:"live"`
	Pending int            `json:"pending"`
	ByState map[string]int `json:"by_state"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Modules:    len(s.core.Modules().Modules()),
		Components: len(s.core.Modules().Components().List()),
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.telemetry != nil {
		metrics.Telemetry = &TelemetryMetrics{
			Connected: s.telemetry.IsConnected(),
			Written:   s.telemetry.Written(),
			Failed:    s.telemetry.Failed(),
		}
	}

	devices := s.core.Devices()
	metrics.Devices = DeviceMetrics{
		Total:   len(devices),
		Pending: len(s.core.Pending()),
		ByState: make(map[string]int),
	}
	for _, d := range devices {
		metrics.Devices.ByState[d.State]++
		if d.State == session.StateLive.String() {
			metrics.Devices.Live++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
