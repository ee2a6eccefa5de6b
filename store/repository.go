package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete for a missing id.
var ErrNotFound = errors.New("not found")

// Entity is implemented by every stored record.
type Entity interface {
	EntityID() string
}

// Repository is the per-entity storage contract. Each call is atomic for a
// single record; multi-record atomicity comes from Store.Update.
type Repository[T any] interface {
	ListAll(ctx context.Context) ([]*T, error)
	Get(ctx context.Context, id string) (*T, error)
	Upsert(ctx context.Context, v *T) error
	Delete(ctx context.Context, id string) error
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Customers() Repository[Customer]
	Orders() Repository[Order]
	Runs() Repository[Run]
	Manifests() Repository[Manifest]
	// RunSequences is keyed by delivery date.
	RunSequences() Repository[RunSequence]
}

// Store runs units of work. Update applies every write made by fn or none of
// them; View must not write.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
