package storage

import (
	"testing"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/logger"
)

func newTestSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func TestPutGetDelete(t *testing.T) {
	sp := newTestSpace(t)
	s := NewMemoryStorage(&logger.NopLogger{})

	id := sp.FromUint64(5)
	res := domain.Resource{Key: id, RawKey: "k", Value: "v1", Timestamp: time.Now()}
	s.Put(res)

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "v1" {
		t.Errorf("expected value v1, got %s", got.Value)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(id); err != domain.ErrResourceNotFound {
		t.Errorf("expected ErrResourceNotFound after delete, got %v", err)
	}
}

func TestPutRejectsStaleWrite(t *testing.T) {
	sp := newTestSpace(t)
	s := NewMemoryStorage(&logger.NopLogger{})

	id := sp.FromUint64(7)
	now := time.Now()
	s.Put(domain.Resource{Key: id, RawKey: "k", Value: "newer", Timestamp: now})
	s.Put(domain.Resource{Key: id, RawKey: "k", Value: "older", Timestamp: now.Add(-time.Minute)})

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "newer" {
		t.Errorf("expected stale write to be rejected, got value %q", got.Value)
	}
}

func TestBetween(t *testing.T) {
	sp := newTestSpace(t)
	s := NewMemoryStorage(&logger.NopLogger{})

	for _, v := range []uint64{10, 50, 100, 200} {
		id := sp.FromUint64(v)
		s.Put(domain.Resource{Key: id, RawKey: "k", Value: "v", Timestamp: time.Now()})
	}

	res, err := s.Between(sp.FromUint64(0), sp.FromUint64(60))
	if err != nil {
		t.Fatalf("Between: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("expected 2 resources in (0,60], got %d", len(res))
	}
}

func TestAll(t *testing.T) {
	sp := newTestSpace(t)
	s := NewMemoryStorage(&logger.NopLogger{})
	s.Put(domain.Resource{Key: sp.FromUint64(1), RawKey: "a", Value: "1", Timestamp: time.Now()})
	s.Put(domain.Resource{Key: sp.FromUint64(2), RawKey: "b", Value: "2", Timestamp: time.Now()})

	all := s.All()
	if len(all) != 2 {
		t.Errorf("expected 2 resources, got %d", len(all))
	}
}
