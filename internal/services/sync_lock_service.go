package services

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSyncInProgress signals that another sync holds the lock; callers
// reject with a conflict rather than queue behind it
var ErrSyncInProgress = errors.New("a sync is already in progress")

// ScopeAll is the whole-fleet sync scope
const ScopeAll = "all"

// SyncLockService serializes sync runs. Only one sync, whole-fleet or
// single-repo, may execute at a time; a second acquisition is
// rejected immediately.
type SyncLockService struct {
	mu     sync.Mutex
	active string // held scope, "" when idle
}

func NewSyncLockService() *SyncLockService {
	return &SyncLockService{}
}

// Acquire takes the lock for a scope (a repository id or ScopeAll)
func (s *SyncLockService) Acquire(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return fmt.Errorf("%w (scope %s)", ErrSyncInProgress, s.active)
	}

	s.active = scope
	return nil
}

// Release frees the lock
func (s *SyncLockService) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
}

// ActiveScope returns the scope currently holding the lock, "" when idle
func (s *SyncLockService) ActiveScope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
