package service

import (
	"sync"
	"time"
)

// ElectionWindow gates vote submission to the configured election period.
type ElectionWindow struct {
	startTime time.Time
	endTime   time.Time
	isActive  bool
	mu        sync.RWMutex
}

func NewElectionWindow(duration time.Duration) *ElectionWindow {
	now := time.Now()
	return &ElectionWindow{
		startTime: now,
		endTime:   now.Add(duration),
		isActive:  true,
	}
}

func (w *ElectionWindow) IsActive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isActive && time.Now().Before(w.endTime)
}

// End closes the window early.
func (w *ElectionWindow) End() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.isActive = false
}
