package storage

import (
	"chordkv/internal/domain"
)

// Engine is the contract the node façade uses to store keys locally,
// whether as primary owner or as a replica holder. Reconciliation
// between a stale write and a newer one is resolved internally by
// implementations using Resource.Timestamp (newest wall-clock write
// wins); callers never need to compare timestamps themselves.
type Engine interface {
	Put(resource domain.Resource)
	Get(id domain.ID) (domain.Resource, error)
	Delete(id domain.ID) error
	Between(from, to domain.ID) ([]domain.Resource, error)
	All() []domain.Resource
	DebugLog()
}
