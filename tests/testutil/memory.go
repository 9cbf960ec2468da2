package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// MemoryRetryStore is an in-memory RetryStore for unit tests. It mirrors the
// real backends' contract: upserting saves, id assignment past the highest
// explicit id, descending default sort.
type MemoryRetryStore struct {
	mu      sync.Mutex
	records map[int64]*entity.Retry
	nextID  int64

	// GetErr injects a per-id failure into Get, for error path tests.
	GetErr map[int64]error
}

// NewMemoryRetryStore creates an empty in-memory retry store.
func NewMemoryRetryStore() *MemoryRetryStore {
	return &MemoryRetryStore{
		records: make(map[int64]*entity.Retry),
		GetErr:  make(map[int64]error),
	}
}

func cloneRetry(r *entity.Retry) *entity.Retry {
	c := *r
	return &c
}

func (s *MemoryRetryStore) Save(_ context.Context, retry *entity.Retry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if retry.ID == 0 {
		s.nextID++
		retry.ID = s.nextID
	} else if retry.ID > s.nextID {
		s.nextID = retry.ID
	}
	s.records[retry.ID] = cloneRetry(retry)
	return retry.ID, nil
}

// ReserveIDsThrough makes subsequently assigned ids start above the given id,
// mirroring the real backend's sequence bump.
func (s *MemoryRetryStore) ReserveIDsThrough(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.nextID {
		s.nextID = id
	}
	return nil
}

func (s *MemoryRetryStore) Get(_ context.Context, id int64) (*entity.Retry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.GetErr[id]; err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, domainerrors.ErrRetryNotFound
	}
	return cloneRetry(r), nil
}

func (s *MemoryRetryStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

func (s *MemoryRetryStore) Query(_ context.Context, q repository.RetryQuery) ([]*entity.Retry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*entity.Retry
	for _, r := range s.records {
		if q.Status != nil && r.Status != *q.Status {
			continue
		}
		if q.OrderID != nil && r.OrderID != *q.OrderID {
			continue
		}
		if q.DateBefore != nil && !r.Date.Before(*q.DateBefore) {
			continue
		}
		if q.DateAfter != nil && !r.Date.After(*q.DateAfter) {
			continue
		}
		results = append(results, cloneRetry(r))
	}

	sort.Slice(results, func(i, j int) bool {
		var less bool
		if q.OrderBy == repository.RetryOrderByDate {
			less = results[i].Date.Before(results[j].Date)
		} else {
			less = results[i].ID < results[j].ID
		}
		if q.Ascending {
			return less
		}
		return !less
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *MemoryRetryStore) IDsForOrder(_ context.Context, orderID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, r := range s.records {
		if r.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryRetryStore) LastForOrder(_ context.Context, orderID int64) (*entity.Retry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *entity.Retry
	for _, r := range s.records {
		if r.OrderID != orderID {
			continue
		}
		if last == nil || r.ID > last.ID {
			last = r
		}
	}
	if last == nil {
		return nil, nil
	}
	return cloneRetry(last), nil
}

func (s *MemoryRetryStore) CountForOrder(_ context.Context, orderID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.records {
		if r.OrderID == orderID {
			count++
		}
	}
	return count, nil
}

// Len reports how many records the store holds.
func (s *MemoryRetryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MemoryFlagStore is an in-memory MigrationFlagStore for unit tests.
type MemoryFlagStore struct {
	mu    sync.Mutex
	value bool

	// ReadErr injects a failure into NeedsMigration.
	ReadErr error
}

// NewMemoryFlagStore creates a flag store with the given initial value.
func NewMemoryFlagStore(needed bool) *MemoryFlagStore {
	return &MemoryFlagStore{value: needed}
}

func (s *MemoryFlagStore) NeedsMigration(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return false, s.ReadErr
	}
	return s.value, nil
}

func (s *MemoryFlagStore) SetNeedsMigration(_ context.Context, needed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = needed
	return nil
}
