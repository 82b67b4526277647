package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/mstgnz/oxipay/infra/response"
	"github.com/sony/gobreaker/v2"
)

// StorageProbe is the storage view the health check needs
type StorageProbe interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context) (map[string]any, error)
}

// Pinger is any optional backend that answers a ping (the Redis locker)
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	storage      StorageProbe
	locker       Pinger
	breakerState func() gobreaker.State
	environment  string
	version      string
	startTime    time.Time
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Database    *DatabaseHealth           `json:"database"`
	System      *SystemHealth             `json:"system"`
	Services    map[string]*ServiceHealth `json:"services"`
}

// DatabaseHealth represents database health information
type DatabaseHealth struct {
	Status       string         `json:"status"`
	Connected    bool           `json:"connected"`
	ResponseTime time.Duration  `json:"response_time"`
	Stats        map[string]any `json:"stats,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Memory     *MemoryHealth `json:"memory"`
	Disk       *DiskHealth   `json:"disk"`
	GoRoutines int           `json:"goroutines"`
}

// MemoryHealth represents memory usage
type MemoryHealth struct {
	Alloc        string  `json:"alloc"`
	TotalAlloc   string  `json:"total_alloc"`
	Sys          string  `json:"sys"`
	GCRuns       uint32  `json:"gc_runs"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskHealth represents disk usage
type DiskHealth struct {
	Available    string  `json:"available"`
	Used         string  `json:"used"`
	Total        string  `json:"total"`
	UsagePercent float64 `json:"usage_percent"`
	Status       string  `json:"status"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
	LastCheck   string `json:"last_check"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HealthOption configures optional probes
type HealthOption func(*HealthHandler)

// WithLocker adds the distributed locker backend to the health check
func WithLocker(p Pinger) HealthOption {
	return func(h *HealthHandler) { h.locker = p }
}

// WithEventBreaker reports the state of the event sink circuit breaker
func WithEventBreaker(state func() gobreaker.State) HealthOption {
	return func(h *HealthHandler) { h.breakerState = state }
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(storage StorageProbe, environment string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		storage:     storage,
		environment: environment,
		version:     "1.0.0",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.environment == "" {
		h.environment = "development"
	}
	return h
}

// CheckHealth performs the health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     h.version,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: h.environment,
		Database:    h.checkDatabaseHealth(ctx),
		System:      h.checkSystemHealth(),
		Services:    h.checkServicesHealth(ctx),
	}
	health.Status = h.determineOverallStatus(health)

	message := fmt.Sprintf("Service is %s", health.Status)
	if health.Status == "unhealthy" {
		response.WriteJSON(w, http.StatusServiceUnavailable, response.Response{
			Code:    http.StatusServiceUnavailable,
			Success: false,
			Message: message,
			Data:    health,
		})
		return
	}
	response.Success(w, http.StatusOK, message, health)
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) *DatabaseHealth {
	dbHealth := &DatabaseHealth{Status: "unknown"}

	if h.storage == nil {
		dbHealth.Status = "not_configured"
		dbHealth.Error = "Database not configured"
		return dbHealth
	}

	start := time.Now()
	if err := h.storage.Ping(ctx); err != nil {
		dbHealth.Status = "unhealthy"
		dbHealth.Error = err.Error()
		dbHealth.ResponseTime = time.Since(start)
		return dbHealth
	}
	dbHealth.Connected = true
	dbHealth.ResponseTime = time.Since(start)

	if stats, err := h.storage.GetStats(ctx); err == nil {
		dbHealth.Stats = stats
	}

	if dbHealth.ResponseTime > time.Second {
		dbHealth.Status = "degraded"
	} else {
		dbHealth.Status = "healthy"
	}
	return dbHealth
}

func (h *HealthHandler) checkServicesHealth(ctx context.Context) map[string]*ServiceHealth {
	now := time.Now().UTC().Format(time.RFC3339)
	services := make(map[string]*ServiceHealth)

	lockHealth := &ServiceHealth{LastCheck: now, Description: "In-process session locks"}
	if h.locker != nil {
		lockHealth.Description = "Redis session locks"
		if err := h.locker.Ping(ctx); err != nil {
			lockHealth.Status = "unhealthy"
			lockHealth.Error = err.Error()
		} else {
			lockHealth.Status = "healthy"
			lockHealth.Healthy = true
		}
	} else {
		lockHealth.Status = "healthy"
		lockHealth.Healthy = true
	}
	services["session_locks"] = lockHealth

	events := &ServiceHealth{LastCheck: now, Description: "Reconciliation events to OpenSearch"}
	switch {
	case h.breakerState == nil:
		events.Status = "not_configured"
	case h.breakerState() == gobreaker.StateOpen:
		events.Status = "degraded"
		events.Error = "circuit breaker open"
	default:
		events.Status = "healthy"
		events.Healthy = true
	}
	services["event_sink"] = events

	return services
}

func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Memory: &MemoryHealth{
			Alloc:        formatBytes(memStats.Alloc),
			TotalAlloc:   formatBytes(memStats.TotalAlloc),
			Sys:          formatBytes(memStats.Sys),
			GCRuns:       memStats.NumGC,
			UsagePercent: calculateMemoryUsagePercent(memStats),
		},
		Disk:       getDiskUsage("/"),
		GoRoutines: runtime.NumGoroutine(),
	}
}

// determineOverallStatus: storage and locks are critical, the event sink only degrades
func (h *HealthHandler) determineOverallStatus(health *HealthStatus) string {
	if health.Database == nil || health.Database.Status == "unhealthy" || health.Database.Status == "not_configured" {
		return "unhealthy"
	}
	if locks, ok := health.Services["session_locks"]; ok && !locks.Healthy {
		return "unhealthy"
	}

	if health.Database.Status == "degraded" {
		return "degraded"
	}
	if events, ok := health.Services["event_sink"]; ok && events.Status == "degraded" {
		return "degraded"
	}
	if health.System != nil {
		if health.System.Memory.UsagePercent > 90 {
			return "degraded"
		}
		if health.System.Disk != nil && health.System.Disk.UsagePercent > 90 {
			return "degraded"
		}
	}
	return "healthy"
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func calculateMemoryUsagePercent(memStats runtime.MemStats) float64 {
	if memStats.Sys == 0 {
		return 0
	}
	return (float64(memStats.Alloc) / float64(memStats.Sys)) * 100
}

func getDiskUsage(path string) *DiskHealth {
	disk := &DiskHealth{Status: "unknown"}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		disk.Status = "error"
		return disk
	}

	available := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - (stat.Bfree * uint64(stat.Bsize))

	disk.Available = formatBytes(available)
	disk.Total = formatBytes(total)
	disk.Used = formatBytes(used)
	if total > 0 {
		disk.UsagePercent = (float64(used) / float64(total)) * 100
	}

	switch {
	case disk.UsagePercent > 90:
		disk.Status = "critical"
	case disk.UsagePercent > 80:
		disk.Status = "warning"
	default:
		disk.Status = "healthy"
	}
	return disk
}
