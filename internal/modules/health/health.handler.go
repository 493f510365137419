package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/hris-autoclock/internal/modules/attendance"
	"github.com/waqasmani/hris-autoclock/internal/shared/utils"
)

// AgentSource lists the agents driven by the poll loop.
type AgentSource interface {
	Agents() []*attendance.UserAgent
}

// BreakerSource reports the HRIS circuit breaker state.
type BreakerSource interface {
	BreakerState() string
}

type Handler struct {
	agents    AgentSource
	breaker   BreakerSource
	version   string
	startTime time.Time
}

func NewHandler(agents AgentSource, breaker BreakerSource, version string) *Handler {
	return &Handler{
		agents:    agents,
		breaker:   breaker,
		version:   version,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Uptime  string       `json:"uptime,omitempty"`
	HRIS    HRISHealth   `json:"hris"`
	Agents  AgentsHealth `json:"agents"`
	System  SystemHealth `json:"system"`
}

type HRISHealth struct {
	Breaker string `json:"breaker"`
}

type AgentsHealth struct {
	Total  int            `json:"total"`
	States map[string]int `json:"states"`
}

type SystemHealth struct {
	NumGoroutine int    `json:"num_goroutine"`
	MemAllocMB   uint64 `json:"mem_alloc_mb"`
	NumCPU       int    `json:"num_cpu"`
}

// Health reports degraded while the HRIS breaker is open or any agent has
// no token.
func (h *Handler) Health(c *gin.Context) {
	agents := h.agentsHealth()
	breaker := h.breakerState()

	status := "ok"
	if breaker == "open" || agents.States[string(attendance.StateUnauthenticated)] > 0 {
		status = "degraded"
	}

	utils.Success(c, http.StatusOK, HealthResponse{
		Status:  status,
		Version: h.version,
		Uptime:  time.Since(h.startTime).String(),
		HRIS:    HRISHealth{Breaker: breaker},
		Agents:  agents,
		System:  h.getSystemHealth(),
	})
}

// Ready succeeds once every agent holds a clock-out target and the HRIS
// breaker is not open.
func (h *Handler) Ready(c *gin.Context) {
	breaker := h.breakerState()
	agents := h.agentsHealth()

	ready := breaker != "open" && agents.Total > 0
	for _, agent := range h.agents.Agents() {
		if agent.Snapshot().TargetOut == nil {
			ready = false
			break
		}
	}

	resp := HealthResponse{
		Status: "ready",
		HRIS:   HRISHealth{Breaker: breaker},
		Agents: agents,
	}
	if !ready {
		resp.Status = "not ready"
		utils.Success(c, http.StatusServiceUnavailable, resp)
		return
	}
	utils.Success(c, http.StatusOK, resp)
}

func (h *Handler) Alive(c *gin.Context) {
	utils.Success(c, http.StatusOK, gin.H{
		"status": "alive",
	})
}

// ListAgents returns the last published status of every agent.
func (h *Handler) ListAgents(c *gin.Context) {
	agents := h.agents.Agents()
	snapshots := make([]attendance.AgentSnapshot, 0, len(agents))
	for _, agent := range agents {
		snapshots = append(snapshots, agent.Snapshot())
	}
	utils.Success(c, http.StatusOK, snapshots)
}

func (h *Handler) breakerState() string {
	if h.breaker == nil {
		return "disabled"
	}
	return h.breaker.BreakerState()
}

func (h *Handler) agentsHealth() AgentsHealth {
	agents := h.agents.Agents()
	states := make(map[string]int)
	for _, agent := range agents {
		states[string(agent.Snapshot().State)]++
	}
	return AgentsHealth{Total: len(agents), States: states}
}

func (h *Handler) getSystemHealth() SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemHealth{
		NumGoroutine: runtime.NumGoroutine(),
		MemAllocMB:   m.Alloc / 1024 / 1024,
		NumCPU:       runtime.NumCPU(),
	}
}
