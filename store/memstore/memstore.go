// Package memstore is an in-memory store.Store. A unit of work edits a
// cloned copy of the state which replaces the live state only on success.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cowaramupagencies/gas/store"
)

type record[T any] interface {
	*T
	EntityID() string
	Clone() *T
}

type table[T any, P record[T]] struct {
	kind string
	rows map[string]P
	less func(a, b P) bool
}

func newTable[T any, P record[T]](kind string, less func(a, b P) bool) *table[T, P] {
	return &table[T, P]{kind: kind, rows: map[string]P{}, less: less}
}

func (t *table[T, P]) clone() *table[T, P] {
	cp := &table[T, P]{kind: t.kind, rows: make(map[string]P, len(t.rows)), less: t.less}
	for id, v := range t.rows {
		cp.rows[id] = P(v.Clone())
	}
	return cp
}

func (t *table[T, P]) ListAll(_ context.Context) ([]*T, error) {
	out := make([]P, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return t.less(out[i], out[j]) })
	res := make([]*T, len(out))
	for i, v := range out {
		res[i] = v.Clone()
	}
	return res, nil
}

func (t *table[T, P]) Get(_ context.Context, id string) (*T, error) {
	v, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", t.kind, id, store.ErrNotFound)
	}
	return v.Clone(), nil
}

func (t *table[T, P]) Upsert(_ context.Context, v *T) error {
	p := P(v)
	if p.EntityID() == "" {
		return fmt.Errorf("upsert %s: empty id", t.kind)
	}
	t.rows[p.EntityID()] = P(p.Clone())
	return nil
}

func (t *table[T, P]) Delete(_ context.Context, id string) error {
	if _, ok := t.rows[id]; !ok {
		return fmt.Errorf("%s %s: %w", t.kind, id, store.ErrNotFound)
	}
	delete(t.rows, id)
	return nil
}

type state struct {
	customers *table[store.Customer, *store.Customer]
	orders    *table[store.Order, *store.Order]
	runs      *table[store.Run, *store.Run]
	manifests *table[store.Manifest, *store.Manifest]
	sequences *table[store.RunSequence, *store.RunSequence]
}

func newState() *state {
	return &state{
		customers: newTable("customer", func(a, b *store.Customer) bool {
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}),
		orders: newTable("order", func(a, b *store.Order) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}),
		runs: newTable("run", func(a, b *store.Run) bool {
			if a.DeliveryDate != b.DeliveryDate {
				return a.DeliveryDate < b.DeliveryDate
			}
			return a.RunNumber < b.RunNumber
		}),
		manifests: newTable("manifest", func(a, b *store.Manifest) bool {
			if a.RunID != b.RunID {
				return a.RunID < b.RunID
			}
			return a.Version < b.Version
		}),
		sequences: newTable("run sequence", func(a, b *store.RunSequence) bool {
			return a.DeliveryDate < b.DeliveryDate
		}),
	}
}

func (s *state) clone() *state {
	return &state{
		customers: s.customers.clone(),
		orders:    s.orders.clone(),
		runs:      s.runs.clone(),
		manifests: s.manifests.clone(),
		sequences: s.sequences.clone(),
	}
}

// checkUnique enforces the constraints the SQL schema declares as unique
// indexes.
func (s *state) checkUnique() error {
	runNumbers := map[string]string{}
	for _, r := range s.runs.rows {
		key := fmt.Sprintf("%s#%d", r.DeliveryDate, r.RunNumber)
		if other, ok := runNumbers[key]; ok {
			return fmt.Errorf("runs %s and %s share number %d on %s", other, r.ID, r.RunNumber, r.DeliveryDate)
		}
		runNumbers[key] = r.ID
	}
	active := map[string]string{}
	for _, m := range s.manifests.rows {
		if m.Status != store.ManifestActive {
			continue
		}
		if other, ok := active[m.RunID]; ok {
			return fmt.Errorf("manifests %s and %s both active for run %s", other, m.ID, m.RunID)
		}
		active[m.RunID] = m.ID
	}
	return nil
}

type tx struct{ st *state }

func (t tx) Customers() store.Repository[store.Customer] { return t.st.customers }
func (t tx) Orders() store.Repository[store.Order]       { return t.st.orders }
func (t tx) Runs() store.Repository[store.Run]           { return t.st.runs }
func (t tx) Manifests() store.Repository[store.Manifest] { return t.st.manifests }

func (t tx) RunSequences() store.Repository[store.RunSequence] { return t.st.sequences }

// Store is the in-memory store.Store implementation.
type Store struct {
	mu    sync.RWMutex
	state *state
	nowFn func() time.Time
}

func New() *Store {
	return &Store{state: newState(), nowFn: time.Now}
}

func (s *Store) Update(_ context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.clone()
	if err := fn(tx{st: working}); err != nil {
		return err
	}
	if err := working.checkUnique(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.stampCreated(working)
	s.state = working
	return nil
}

func (s *Store) View(_ context.Context, fn func(store.Tx) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(tx{st: snapshot})
}

// stampCreated fills creation times left zero by callers, as the SQL
// column defaults do.
func (s *Store) stampCreated(st *state) {
	now := s.nowFn()
	for _, c := range st.customers.rows {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	for _, o := range st.orders.rows {
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
	}
	for _, r := range st.runs.rows {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
	}
	for _, m := range st.manifests.rows {
		if m.GeneratedAt.IsZero() {
			m.GeneratedAt = now
		}
	}
}
