// Package audit records who changed what through the console.
package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/xid"
)

type Recorder interface {
	Record(ctx context.Context, entry domain.AuditLog) error
	List(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

const defaultListLimit = 100

// prepare fills the id and timestamp the caller left empty.
func prepare(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}

type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{entries: make([]domain.AuditLog, 0, 128)}
}

func (m *MemoryRecorder) Record(_ context.Context, entry domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, prepare(entry))
	return nil
}

// List returns the newest entries first.
func (m *MemoryRecorder) List(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := slices.Clone(m.entries)
	slices.SortStableFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
