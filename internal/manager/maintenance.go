package manager

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maintenanceLoop runs the resource manager: bounded history, bounded
// operation queues, stale-lock reclamation. Independent of the request path.
func (m *Manager) maintenanceLoop() {
	defer m.maintenance.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.runMaintenance()
		}
	}
}

func (m *Manager) runMaintenance() {
	if trimmed := m.trimHistory(); trimmed > 0 {
		m.logger.Info("trimmed transaction history", zap.Int("evicted", trimmed))
	}
	if trimmed := m.locks.TrimQueues(m.cfg.QueueCap); trimmed > 0 {
		m.logger.Warn("trimmed operation queues", zap.Int("evicted", trimmed))
	}
	m.locks.ReclaimStale(m.cfg.LockTimeout)
}

// trimHistory evicts the oldest entries beyond the cap and persists the
// trimmed result. Evicted ids and nonces leave the dedupe index with them.
func (m *Manager) trimHistory() int {
	m.mu.Lock()
	excess := len(m.history) - m.cfg.HistoryCap
	if excess <= 0 {
		m.mu.Unlock()
		return 0
	}

	// history is most-recent-first: the tail holds the oldest entries
	evicted := m.history[m.cfg.HistoryCap:]
	for _, tx := range evicted {
		delete(m.ids, tx.ID)
		if tx.Nonce != "" {
			delete(m.nonces, tx.Nonce)
		}
	}
	m.history = m.history[:m.cfg.HistoryCap]
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.persistHistory(ctx)
	return excess
}
