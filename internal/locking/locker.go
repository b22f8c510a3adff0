/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package locking serializes cascades per equipment, within one process or across instances.
package locking

import (
	"context"
	"errors"
	"sync"
)

// ErrLeaseLost is the cancellation cause of a lock context whose lease could not be kept.
var ErrLeaseLost = errors.New("equipment lock lease lost")

// Unlock releases a lock obtained from a Locker.
type Unlock func()

// Locker grants exclusive access to one equipment timeline. The returned context is derived
// from ctx and is canceled when exclusivity ends, either on Unlock or, for distributed
// lockers, when the lease is lost; work done under the lock should use it.
type Locker interface {
	Lock(ctx context.Context, equipmentID string) (context.Context, Unlock, error)
}

// LocalLocker is a Locker for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// Lock blocks until equipmentID is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, equipmentID string) (context.Context, Unlock, error) {
	l.mu.Lock()
	slot, ok := l.slots[equipmentID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[equipmentID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			<-slot
		})
	}, nil
}
