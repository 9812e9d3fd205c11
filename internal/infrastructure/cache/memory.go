package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/shelfscout/backend/internal/domain"
)

// snapshotItem is one stored snapshot with its expiration
type snapshotItem struct {
	Payload    []byte
	Summary    domain.RunSummary
	Expiration time.Time // zero means never
}

func (i snapshotItem) expired(now time.Time) bool {
	return !i.Expiration.IsZero() && now.After(i.Expiration)
}

// SnapshotStore is a thread-safe in-memory snapshot store with TTL support.
// Snapshots are stored serialized so callers never share mutable state with the store.
type SnapshotStore struct {
	data     map[string]snapshotItem
	order    []string // run IDs, oldest first
	ttl      time.Duration
	capacity int
	mutex    sync.RWMutex
	stop     chan struct{}
	once     sync.Once
}

// NewSnapshotStore creates an in-memory store. ttl <= 0 keeps snapshots until
// evicted; capacity <= 0 keeps every snapshot.
func NewSnapshotStore(ttl time.Duration, capacity int) *SnapshotStore {
	store := &SnapshotStore{
		data:     make(map[string]snapshotItem),
		ttl:      ttl,
		capacity: capacity,
		stop:     make(chan struct{}),
	}

	if ttl > 0 {
		// Remove expired entries every ttl/2, at most every 10 minutes
		go store.cleanupExpired(min(max(ttl/2, time.Millisecond), 10*time.Minute))
	}

	return store
}

// Save stores a snapshot, evicting the oldest one once capacity is reached
func (s *SnapshotStore) Save(ctx context.Context, snapshot *domain.RunSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrapf(err, "encode snapshot %s", snapshot.RunID)
	}

	item := snapshotItem{Payload: payload, Summary: snapshot.Summary()}
	if s.ttl > 0 {
		item.Expiration = time.Now().Add(s.ttl)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[snapshot.RunID]; exists {
		s.removeFromOrder(snapshot.RunID)
	}
	s.data[snapshot.RunID] = item
	s.order = append(s.order, snapshot.RunID)

	for s.capacity > 0 && len(s.order) > s.capacity {
		delete(s.data, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get retrieves a snapshot by run ID
func (s *SnapshotStore) Get(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	s.mutex.RLock()
	item, exists := s.data[runID]
	s.mutex.RUnlock()

	if !exists || item.expired(time.Now()) {
		return nil, domain.ErrSnapshotMiss
	}
	return decode(item.Payload)
}

// Latest retrieves the most recently saved snapshot that has not expired
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.RunSnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := time.Now()
	for i := len(s.order) - 1; i >= 0; i-- {
		item := s.data[s.order[i]]
		if !item.expired(now) {
			return decode(item.Payload)
		}
	}
	return nil, domain.ErrSnapshotMiss
}

// List returns up to limit summaries, newest first
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := time.Now()
	summaries := make([]domain.RunSummary, 0, min(max(limit, 0), len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(summaries) < limit; i-- {
		item := s.data[s.order[i]]
		if item.expired(now) {
			continue
		}
		summaries = append(summaries, item.Summary)
	}
	return summaries, nil
}

// Delete removes a snapshot
func (s *SnapshotStore) Delete(ctx context.Context, runID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[runID]; !exists {
		return domain.ErrSnapshotMiss
	}
	delete(s.data, runID)
	s.removeFromOrder(runID)
	return nil
}

// Close stops the cleanup goroutine
func (s *SnapshotStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// cleanupExpired removes expired entries from the store periodically
func (s *SnapshotStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mutex.Lock()
			now := time.Now()
			for runID, item := range s.data {
				if item.expired(now) {
					delete(s.data, runID)
					s.removeFromOrder(runID)
				}
			}
			s.mutex.Unlock()
		}
	}
}

// removeFromOrder drops runID from the order slice; callers hold the write lock
func (s *SnapshotStore) removeFromOrder(runID string) {
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Size returns the current number of stored snapshots (for debugging/monitoring)
func (s *SnapshotStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

func decode(payload []byte) (*domain.RunSnapshot, error) {
	var snapshot domain.RunSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, eris.Wrap(err, "decode snapshot")
	}
	return &snapshot, nil
}
