package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/releasarr/internal/models"
)

// Ingestion state values.
const (
	StateIngesting = "ingesting"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// IngestionState describes the running or most recent ingestion of a source.
type IngestionState struct {
	SourceID    models.ULID `json:"source_id"`
	SourceName  string      `json:"source_name"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Status      string      `json:"status"`
	Received    int         `json:"received"`
	New         int         `json:"new"`
	Updated     int         `json:"updated"`
	LastUpdated time.Time   `json:"last_updated"`
	Error       string      `json:"error,omitempty"`
}

// StateManager serializes ingestion per source within the process and keeps
// the outcome of the last run of each source.
type StateManager struct {
	mu     sync.RWMutex
	active map[models.ULID]*IngestionState
	last   map[models.ULID]*IngestionState
}

// NewStateManager creates a new state manager.
func NewStateManager() *StateManager {
	return &StateManager{
		active: make(map[models.ULID]*IngestionState),
		last:   make(map[models.ULID]*IngestionState),
	}
}

// Start marks an ingestion of source as started. It fails with
// models.ErrIngestionInProgress when one is already running.
func (m *StateManager) Start(source *models.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[source.ID]; exists {
		return fmt.Errorf("source %s: %w", source.Name, models.ErrIngestionInProgress)
	}

	now := time.Now()
	m.active[source.ID] = &IngestionState{
		SourceID:    source.ID,
		SourceName:  source.Name,
		StartedAt:   now,
		Status:      StateIngesting,
		LastUpdated: now,
	}
	return nil
}

// Complete records a successful run and releases the source.
func (m *StateManager) Complete(sourceID models.ULID, result *Result) {
	m.finish(sourceID, func(s *IngestionState) {
		s.Status = StateCompleted
		if result != nil {
			s.Received = result.Received
			s.New = result.New
			s.Updated = result.Updated
		}
	})
}

// Fail records a failed run and releases the source.
func (m *StateManager) Fail(sourceID models.ULID, err error) {
	m.finish(sourceID, func(s *IngestionState) {
		s.Status = StateFailed
		if err != nil {
			s.Error = err.Error()
		}
	})
}

func (m *StateManager) finish(sourceID models.ULID, apply func(*IngestionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.active[sourceID]
	if !exists {
		return
	}
	delete(m.active, sourceID)

	now := time.Now()
	apply(state)
	state.FinishedAt = &now
	state.LastUpdated = now
	m.last[sourceID] = state
}

// GetState returns a copy of the running state of a source, or of its last
// finished run.
func (m *StateManager) GetState(sourceID models.ULID) (*IngestionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.active[sourceID]
	if !exists {
		state, exists = m.last[sourceID]
	}
	if !exists {
		return nil, false
	}
	c := *state
	return &c, true
}

// IsIngesting returns true if an ingestion is in progress for the source.
func (m *StateManager) IsIngesting(sourceID models.ULID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.active[sourceID]
	return exists
}

// ActiveIngestionCount returns the number of running ingestions.
func (m *StateManager) ActiveIngestionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// WaitForCompletion waits until no ingestion of the source is running or ctx
// is done.
func (m *StateManager) WaitForCompletion(ctx context.Context, sourceID models.ULID) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for m.IsIngesting(sourceID) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
