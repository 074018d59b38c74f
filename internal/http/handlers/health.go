package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/releasarr/internal/scheduler"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// DatabaseChecker reports database reachability and pool usage.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
	PoolStats() (sql.DBStats, error)
	Driver() string
}

// BreakerReporter reports circuit breaker states by name.
type BreakerReporter interface {
	CircuitStates() map[string]string
}

// TaskReporter reports scheduled task state.
type TaskReporter interface {
	Status() []scheduler.TaskStatus
}

// IngestionReporter reports running ingestions.
type IngestionReporter interface {
	ActiveIngestionCount() int
}

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        DatabaseChecker
	breakers  BreakerReporter
	tasks     TaskReporter
	ingestion IngestionReporter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now()}
}

// WithDB sets the database checked by the health endpoint.
func (h *HealthHandler) WithDB(db DatabaseChecker) *HealthHandler {
	h.db = db
	return h
}

// WithBreakers sets the circuit breaker reporter.
func (h *HealthHandler) WithBreakers(b BreakerReporter) *HealthHandler {
	h.breakers = b
	return h
}

// WithTasks sets the scheduled task reporter.
func (h *HealthHandler) WithTasks(t TaskReporter) *HealthHandler {
	h.tasks = t
	return h
}

// WithIngestion sets the ingestion reporter.
func (h *HealthHandler) WithIngestion(i IngestionReporter) *HealthHandler {
	h.ingestion = i
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the health of the service.
type HealthResponse struct {
	Status           string                 `json:"status"`
	Timestamp        string                 `json:"timestamp"`
	Version          string                 `json:"version"`
	Uptime           string                 `json:"uptime"`
	UptimeSeconds    float64                `json:"uptime_seconds"`
	Goroutines       int                    `json:"goroutines"`
	Memory           MemoryInfo             `json:"memory"`
	Database         DatabaseHealth         `json:"database"`
	CircuitBreakers  map[string]string      `json:"circuit_breakers"`
	Tasks            []scheduler.TaskStatus `json:"tasks"`
	ActiveIngestions int                    `json:"active_ingestions"`
}

// MemoryInfo holds system and process memory figures in MB.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb"`
	ProcessMB   float64 `json:"process_mb"`
	HeapMB      float64 `json:"heap_mb"`
}

// DatabaseHealth holds connection pool figures and ping latency.
type DatabaseHealth struct {
	Status            string  `json:"status"`
	Driver            string  `json:"driver,omitempty"`
	OpenConnections   int     `json:"open_connections"`
	InUse             int     `json:"in_use"`
	Idle              int     `json:"idle"`
	ResponseTimeMS    float64 `json:"response_time_ms"`
	ResponseTimeState string  `json:"response_time_status"`
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health with memory, database, circuit breaker and task state",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health of the service. The status is "degraded"
// when the database does not answer or a circuit breaker is open.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:          "healthy",
		Timestamp:       now.UTC().Format(time.RFC3339),
		Version:         h.version,
		Uptime:          uptime.Round(time.Second).String(),
		UptimeSeconds:   uptime.Seconds(),
		Goroutines:      runtime.NumGoroutine(),
		Memory:          memoryInfo(ctx),
		Database:        h.databaseHealth(ctx),
		CircuitBreakers: map[string]string{},
		Tasks:           []scheduler.TaskStatus{},
	}

	if h.breakers != nil {
		for name, state := range h.breakers.CircuitStates() {
			resp.CircuitBreakers[name] = state
			if state == "open" {
				resp.Status = "degraded"
			}
		}
	}
	if h.tasks != nil {
		resp.Tasks = h.tasks.Status()
	}
	if h.ingestion != nil {
		resp.ActiveIngestions = h.ingestion.ActiveIngestionCount()
	}
	if resp.Database.Status == "error" {
		resp.Status = "degraded"
	}

	return &HealthOutput{Body: resp}, nil
}

func memoryInfo(ctx context.Context) MemoryInfo {
	const mb = 1024 * 1024
	var info MemoryInfo

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMB = float64(vm.Total) / mb
		info.AvailableMB = float64(vm.Available) / mb
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if pm, err := proc.MemoryInfoWithContext(ctx); err == nil {
			info.ProcessMB = float64(pm.RSS) / mb
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info.HeapMB = float64(ms.HeapAlloc) / mb
	return info
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "unknown"}
	if h.db == nil {
		return health
	}

	health.Driver = h.db.Driver()
	stats, err := h.db.PoolStats()
	if err != nil {
		health.Status = "error"
		return health
	}
	health.OpenConnections = stats.OpenConnections
	health.InUse = stats.InUse
	health.Idle = stats.Idle

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	err = h.db.Ping(pingCtx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000

	switch {
	case err != nil:
		health.Status = "error"
		health.ResponseTimeState = "error"
	case health.ResponseTimeMS > 100:
		health.Status = "ok"
		health.ResponseTimeState = "slow"
	default:
		health.Status = "ok"
		health.ResponseTimeState = "healthy"
	}
	return health
}
