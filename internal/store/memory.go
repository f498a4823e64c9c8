package store

import (
	"context"
	"sort"
	"sync"

	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/samber/lo"
)

// Memory keeps documents in process memory. Every read and write copies the
// document, so callers never share one with the store.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*menu.Document
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*menu.Document)}
}

func (m *Memory) Get(_ context.Context, roomID string) (*menu.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *Memory) Replace(_ context.Context, roomID string, doc *menu.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return ErrNotFound
	}
	m.rooms[roomID] = doc.Clone()
	return nil
}

func (m *Memory) Create(_ context.Context, doc *menu.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[doc.RoomID]; ok {
		return ErrExists
	}
	m.rooms[doc.RoomID] = doc.Clone()
	return nil
}

func (m *Memory) List(_ context.Context, limit, offset int) ([]menu.Summary, error) {
	m.mu.RLock()
	summaries := lo.MapToSlice(m.rooms, func(_ string, doc *menu.Document) menu.Summary {
		return doc.Summary()
	})
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastUpdated.Equal(summaries[j].LastUpdated) {
			return summaries[i].RoomID < summaries[j].RoomID
		}
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})
	if offset >= len(summaries) {
		return []menu.Summary{}, nil
	}
	summaries = summaries[offset:]
	if limit >= 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
