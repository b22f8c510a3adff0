/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// MemoryStore is an in-memory placement.Repository used by the simulator and tests.
// Transactions work on a copy that replaces the live set only when fn succeeds. Direct
// writes wait for a running transaction to finish, so fn must write through its tx only.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	jobs map[string]placement.JobPlacement
	inTx bool
}

// NewMemoryStore creates a store holding jobs.
func NewMemoryStore(jobs ...placement.JobPlacement) *MemoryStore {
	m := &MemoryStore{jobs: make(map[string]placement.JobPlacement, len(jobs))}
	for _, job := range jobs {
		m.Put(job)
	}
	return m
}

// Put inserts or replaces a job.
func (m *MemoryStore) Put(job placement.JobPlacement) {
	if job.Status == "" {
		job.Status = placement.StatusPlanned
	}
	job.Start = worktime.NewCursor(job.Start.Date, job.Start.Offset)
	unlock := m.lockWrite()
	m.jobs[job.ID] = job
	unlock()
}

// lockWrite serializes a direct write with transactions on the live store.
func (m *MemoryStore) lockWrite() func() {
	if m.inTx {
		m.mu.Lock()
		return m.mu.Unlock
	}
	m.txMu.Lock()
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		m.txMu.Unlock()
	}
}

// All returns every job ordered by start.
func (m *MemoryStore) All() []placement.JobPlacement {
	m.mu.RLock()
	out := make([]placement.JobPlacement, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job)
	}
	m.mu.RUnlock()
	placement.SortByStart(out)
	return out
}

// ListActiveByEquipment implements placement.Reader.
func (m *MemoryStore) ListActiveByEquipment(_ context.Context, equipmentID, excludeID string) ([]placement.JobPlacement, error) {
	m.mu.RLock()
	var out []placement.JobPlacement
	for _, job := range m.jobs {
		if job.EquipmentID != equipmentID || job.ID == excludeID || !job.Status.IsActive() {
			continue
		}
		out = append(out, job)
	}
	m.mu.RUnlock()
	placement.SortByStart(out)
	return out, nil
}

// Get implements placement.Reader.
func (m *MemoryStore) Get(_ context.Context, id string) (placement.JobPlacement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return placement.JobPlacement{}, placement.ErrNotFound
	}
	return job, nil
}

// UpdatePlacement implements placement.Repository.
func (m *MemoryStore) UpdatePlacement(_ context.Context, jobID string, start worktime.Cursor) error {
	defer m.lockWrite()()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, placement.ErrNotFound)
	}
	job.Start = worktime.NewCursor(start.Date, start.Offset)
	m.jobs[jobID] = job
	return nil
}

// InTransaction implements placement.Repository. Transactions on one store are serialized.
func (m *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context, tx placement.Repository) error) error {
	if m.inTx {
		return fn(ctx, m)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := make(map[string]placement.JobPlacement, len(m.jobs))
	for id, job := range m.jobs {
		snapshot[id] = job
	}
	m.mu.RUnlock()

	tx := &MemoryStore{jobs: snapshot, inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.jobs = tx.jobs
	m.mu.Unlock()
	return nil
}
