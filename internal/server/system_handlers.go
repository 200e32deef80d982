package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, db *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		db:        db,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// handleHealth is a liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.system.writeJSON(w, map[string]string{"status": "ok"})
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	AccountCount  int     `json:"account_count"`
	HoldingCount  int     `json:"holding_count"`
	CachedSymbols int     `json:"cached_symbols"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	ScheduledJobs int     `json:"scheduled_jobs"`
}

// handleSystemStatus reports table counts, resource usage and scheduler state
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h := s.system

	status := SystemStatusResponse{
		AccountCount:  h.countRows("accounts"),
		HoldingCount:  h.countRows("holdings"),
		CachedSymbols: h.countRows("price_cache"),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.scheduler != nil {
		status.ScheduledJobs = h.scheduler.JobCount()
	}

	status.CPUPercent, status.RAMPercent = h.resourceUsage()

	h.writeJSON(w, status)
}

func (h *SystemHandlers) countRows(table string) int {
	var count int
	// table names come from the fixed list above, never from input
	if err := h.db.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		h.log.Warn().Err(err).Str("table", table).Msg("Failed to count rows")
		return 0
	}
	return count
}

func (h *SystemHandlers) resourceUsage() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
