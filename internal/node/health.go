package node

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pollux/internal/cell"
)

// Health summarizes the local view of the cluster.
type Health struct {
	ID       string         `json:"id"`
	Endpoint string         `json:"endpoint"`
	Status   string         `json:"status"`
	Members  map[string]int `json:"members"`
	Uptime   time.Duration  `json:"uptime_ns"`
}

// Health reports the local cell status and member counts.
func (n *Node) Health() Health {
	counts := n.store.CountByStatus()
	members := make(map[string]int, len(counts))
	for _, s := range cell.Statuses() {
		members[s.String()] = counts[s]
	}

	status := cell.Unknown
	if self, ok := n.store.Get(n.id); ok {
		status = self.Status
	}

	return Health{
		ID:       n.id.String(),
		Endpoint: n.endpoint.String(),
		Status:   status.String(),
		Members:  members,
		Uptime:   n.clock.Since(n.started),
	}
}

func (n *Node) healthz(w http.ResponseWriter, _ *http.Request) {
	h := n.Health()
	w.Header().Set("Content-Type", "application/json")
	if h.Status != cell.Active.String() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		n.logger.Debug("failed to write health", zap.Error(err))
	}
}
