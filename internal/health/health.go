// Package health exposes liveness and a small operational snapshot:
// process self-stats plus live session and room counts.
package health

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/roomcall/backend/internal/room"
	"github.com/roomcall/backend/internal/session"
)

type Probe struct {
	started  time.Time
	proc     *process.Process
	registry *session.Registry
	rooms    *room.Store
}

type report struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Sessions      int     `json:"sessions"`
	Rooms         int     `json:"rooms"`
	CPUPercent    float64 `json:"cpuPercent"`
	RSSBytes      uint64  `json:"rssBytes"`
}

func NewProbe(registry *session.Registry, rooms *room.Store) (*Probe, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("health: self process handle: %w", err)
	}
	return &Probe{
		started:  time.Now(),
		proc:     proc,
		registry: registry,
		rooms:    rooms,
	}, nil
}

func (p *Probe) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", p.handleLiveness)
	mux.HandleFunc("/api/health", p.handleReport)
}

func (p *Probe) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (p *Probe) handleReport(w http.ResponseWriter, _ *http.Request) {
	rep := report{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(p.started).Seconds()),
		Sessions:      p.registry.Len(),
		Rooms:         p.rooms.Len(),
	}

	// Self-stats are best effort; the probe stays green without them.
	if cpu, err := p.proc.CPUPercent(); err == nil {
		rep.CPUPercent = cpu
	}
	if mem, err := p.proc.MemoryInfo(); err == nil {
		rep.RSSBytes = mem.RSS
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Printf("health report encode: %v", err)
	}
}
