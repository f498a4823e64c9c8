//go:generate go run go.uber.org/mock/mockgen -source=catalog.go -destination=../mocks/mock_catalog.go -package=mocks

// Package catalog resolves vendor menu items to names and prices.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var ErrItemNotFound = errors.New("catalog item not found")

// Item is one orderable dish or addon offered by a vendor.
type Item struct {
	ID       string  `json:"id" yaml:"id"`
	VendorID string  `json:"vendorId" yaml:"-"`
	Name     string  `json:"name" yaml:"name"`
	Category string  `json:"category" yaml:"category"`
	Price    float64 `json:"price" yaml:"price"`
	Position int     `json:"position" yaml:"-"`
}

// Lookup resolves single items; it is all the mutation interpreter needs.
type Lookup interface {
	GetItem(ctx context.Context, itemID string) (Item, error)
}

// Source can also enumerate a vendor's full catalog, in menu order, for
// seeding new rooms.
type Source interface {
	Lookup
	ListVendorItems(ctx context.Context, vendorID string) ([]Item, error)
}

// Memory is a Source held in process memory.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemory(items ...Item) *Memory {
	m := &Memory{items: make(map[string]Item)}
	m.Add(items...)
	return m
}

func (m *Memory) Add(items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[item.ID] = item
	}
}

func (m *Memory) GetItem(_ context.Context, itemID string) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (m *Memory) ListVendorItems(_ context.Context, vendorID string) ([]Item, error) {
	m.mu.RLock()
	items := lo.Filter(lo.Values(m.items), func(item Item, _ int) bool {
		return item.VendorID == vendorID
	})
	m.mu.RUnlock()

	SortMenuOrder(items)
	return items, nil
}

// SortMenuOrder orders items by position, then id, which is the slot order
// of a seeded room.
func SortMenuOrder(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})
}
