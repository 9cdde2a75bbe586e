package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
)

// MemoryStore implements ports.RecordStore in memory with the same
// affected-row semantics as SqliteStore.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]model.VideoRecord
	names   map[string]int64
}

var _ ports.RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]model.VideoRecord),
		names:   make(map[string]int64),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Insert(_ context.Context, rec model.VideoRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.names[rec.FileName]; dup {
		return 0, fmt.Errorf("%w: insert: duplicate file_name %q", model.ErrPersistence, rec.FileName)
	}
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()
	s.records[rec.ID] = cloneRecord(rec)
	s.names[rec.FileName] = rec.ID
	return rec.ID, nil
}

func (s *MemoryStore) update(op string, id int64, fn func(*model.VideoRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.CheckAffected(op, 1, 0)
	}
	fn(&rec)
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) UpdateTitle(_ context.Context, id int64, title string) error {
	return s.update("update_title", id, func(r *model.VideoRecord) { r.Title = title })
}

func (s *MemoryStore) UpdateAddress(_ context.Context, id int64, address string) error {
	return s.update("update_address", id, func(r *model.VideoRecord) { r.Address = &address })
}

func (s *MemoryStore) UpdateCoordinates(_ context.Context, id int64, at model.LatLng) error {
	return s.update("update_coordinates", id, func(r *model.VideoRecord) { r.Coordinates = &at })
}

func (s *MemoryStore) MarkSubmitted(_ context.Context, ids []int64) error {
	return s.batch("mark_submitted", ids, func(id int64) {
		rec := s.records[id]
		rec.Submitted = true
		s.records[id] = rec
	})
}

func (s *MemoryStore) Delete(_ context.Context, ids []int64) error {
	return s.batch("delete", ids, func(id int64) {
		delete(s.names, s.records[id].FileName)
		delete(s.records, id)
	})
}

// batch applies fn to every id, or to none when any id is unknown.
func (s *MemoryStore) batch(op string, ids []int64, fn func(int64)) error {
	ids = uniqueIDs(ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	var found int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			found++
		}
	}
	if err := model.CheckAffected(op, int64(len(ids)), found); err != nil {
		return err
	}
	for _, id := range ids {
		fn(id)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (model.VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return model.VideoRecord{}, fmt.Errorf("%w: %d", model.ErrNotFound, id)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Query(_ context.Context, page, pageSize int, submittedOnly bool) ([]model.VideoRecord, error) {
	if page < 0 || pageSize <= 0 {
		return nil, fmt.Errorf("invalid page %d/%d", page, pageSize)
	}
	all := s.sorted(func(r model.VideoRecord) bool { return !submittedOnly || r.Submitted })
	start := page * pageSize
	if start >= len(all) {
		return []model.VideoRecord{}, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], nil
}

func (s *MemoryStore) PendingAddress(context.Context) ([]model.VideoRecord, error) {
	return s.sorted(func(r model.VideoRecord) bool { return r.Address == nil }), nil
}

func (s *MemoryStore) sorted(keep func(model.VideoRecord) bool) []model.VideoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.VideoRecord{}
	for _, r := range s.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneRecord(r model.VideoRecord) model.VideoRecord {
	if r.Address != nil {
		a := *r.Address
		r.Address = &a
	}
	if r.Coordinates != nil {
		c := *r.Coordinates
		r.Coordinates = &c
	}
	return r
}
