// Package customers keeps the customer directory: lookup by mobile number,
// note keeping and free-text search.
package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cowaramupagencies/gas/store"
)

// MinSearchLen is the shortest trimmed query Search answers.
const MinSearchLen = 2

// NormalizeMobile returns the identity key for a mobile number.
func NormalizeMobile(mobile string) string {
	return strings.ToLower(strings.TrimSpace(mobile))
}

// FindOrCreate returns the customer whose mobile matches, overwriting its name
// and address, or creates a new one. The customer is persisted either way.
// created reports whether a new record was made.
func FindOrCreate(ctx context.Context, repo store.Repository[store.Customer], name, mobile, address string) (c *store.Customer, created bool, err error) {
	name, address = strings.TrimSpace(name), strings.TrimSpace(address)
	c, err = FindByMobile(ctx, repo, mobile)
	switch {
	case err == nil:
		c.Name = name
		c.Address = address
	case errors.Is(err, store.ErrNotFound):
		c = &store.Customer{
			ID:      uuid.NewString(),
			Name:    name,
			Mobile:  strings.TrimSpace(mobile),
			Address: address,
		}
		created = true
	default:
		return nil, false, err
	}
	if err := repo.Upsert(ctx, c); err != nil {
		return nil, false, fmt.Errorf("save customer: %w", err)
	}
	return c, created, nil
}

// FindByMobile looks a customer up by normalised mobile number.
func FindByMobile(ctx context.Context, repo store.Repository[store.Customer], mobile string) (*store.Customer, error) {
	key := NormalizeMobile(mobile)
	all, err := repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	for _, c := range all {
		if NormalizeMobile(c.Mobile) == key {
			return c, nil
		}
	}
	return nil, fmt.Errorf("customer with mobile %q: %w", mobile, store.ErrNotFound)
}

// AppendNote adds text to the customer's notes on a new line. Blank text is
// ignored and nothing is written.
func AppendNote(ctx context.Context, repo store.Repository[store.Customer], id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Notes == "" {
		c.Notes = text
	} else {
		c.Notes += "\n" + text
	}
	if err := repo.Upsert(ctx, c); err != nil {
		return fmt.Errorf("save customer notes: %w", err)
	}
	return nil
}

// RecordOrder appends orderID to the customer's order history.
func RecordOrder(ctx context.Context, repo store.Repository[store.Customer], id, orderID string) error {
	c, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, existing := range c.OrderHistory {
		if existing == orderID {
			return nil
		}
	}
	c.OrderHistory = append(c.OrderHistory, orderID)
	return repo.Upsert(ctx, c)
}

// ForgetOrder removes orderID from the customer's order history. A missing
// customer is not an error.
func ForgetOrder(ctx context.Context, repo store.Repository[store.Customer], id, orderID string) error {
	c, err := repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	kept := c.OrderHistory[:0]
	for _, existing := range c.OrderHistory {
		if existing != orderID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(c.OrderHistory) {
		return nil
	}
	c.OrderHistory = kept
	return repo.Upsert(ctx, c)
}

// Matches reports whether query appears, case-insensitively, in the
// customer's name, mobile or address. An empty query matches everyone.
func Matches(c *store.Customer, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if c == nil {
		return false
	}
	return strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Mobile), q) ||
		strings.Contains(strings.ToLower(c.Address), q)
}

// Search returns customers matching query, or an empty slice when the
// trimmed query is shorter than MinSearchLen.
func Search(ctx context.Context, repo store.Repository[store.Customer], query string) ([]*store.Customer, error) {
	if len([]rune(strings.TrimSpace(query))) < MinSearchLen {
		return []*store.Customer{}, nil
	}
	all, err := repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	out := []*store.Customer{}
	for _, c := range all {
		if Matches(c, query) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Directory answers read-only customer queries against a store.
type Directory struct {
	st store.Store
}

func NewDirectory(st store.Store) *Directory {
	return &Directory{st: st}
}

func (d *Directory) Search(ctx context.Context, query string) ([]*store.Customer, error) {
	var out []*store.Customer
	err := d.st.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = Search(ctx, tx.Customers(), query)
		return err
	})
	return out, err
}

func (d *Directory) Get(ctx context.Context, id string) (*store.Customer, error) {
	var out *store.Customer
	err := d.st.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Customers().Get(ctx, id)
		return err
	})
	return out, err
}
