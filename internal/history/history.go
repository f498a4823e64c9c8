// Package history keeps snapshots of room documents: automatic ones for
// rooms that changed since the last tick, and manual ones on request.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/manpreetbhatti/menuroom/internal/db"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/store"
)

type Config struct {
	Interval time.Duration
	KeepAuto int
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		KeepAuto: 20,
	}
}

// VersionStore persists snapshots. *db.Database implements it.
type VersionStore interface {
	CreateVersion(ctx context.Context, roomID, name, description, content, contentHash, createdBy string, isAuto bool) (*db.Version, error)
	GetLatestVersion(ctx context.Context, roomID string) (*db.Version, error)
	DeleteOldAutoVersions(ctx context.Context, roomID string, keepCount int) error
}

type Service struct {
	versions VersionStore
	rooms    store.Store
	config   Config
	log      *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	dirty map[string]bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(versions VersionStore, rooms store.Store, config Config, log *slog.Logger) *Service {
	return &Service{
		versions: versions,
		rooms:    rooms,
		config:   config,
		log:      log,
		now:      time.Now,
		dirty:    make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Touch marks the document's room for the next autosave.
func (s *Service) Touch(doc *menu.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[doc.RoomID] = true
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Info("Autosave started", "interval", s.config.Interval, "keep", s.config.KeepAuto)
}

// Stop ends the ticker and saves whatever changed since the last tick.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.SaveDirty(ctx)
		s.log.Info("Autosave stopped")
	})
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SaveDirty(context.Background())
		}
	}
}

// SaveDirty snapshots every room touched since the last call and returns
// how many new versions were written.
func (s *Service) SaveDirty(ctx context.Context) int {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.dirty))
	for roomID := range s.dirty {
		rooms = append(rooms, roomID)
	}
	s.dirty = make(map[string]bool)
	s.mu.Unlock()
	sort.Strings(rooms)

	saved := 0
	for _, roomID := range rooms {
		_, created, err := s.Snapshot(ctx, roomID, "", "", "", true)
		if err != nil {
			s.log.Error("Autosave failed", "room", roomID, "error", err)
			continue
		}
		if created {
			saved++
		}
	}

	if saved > 0 {
		s.log.Info("Autosaved rooms", "count", saved)
	}
	return saved
}

// Snapshot stores the current document of roomID as a version. An automatic
// snapshot identical to the latest version is skipped, and the existing
// version is returned with created set to false.
func (s *Service) Snapshot(ctx context.Context, roomID, name, description, createdBy string, isAuto bool) (*db.Version, bool, error) {
	doc, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, false, err
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("encode room %s: %w", roomID, err)
	}
	contentHash := hashContent(content)

	if isAuto {
		latest, err := s.versions.GetLatestVersion(ctx, roomID)
		if err != nil {
			return nil, false, err
		}
		if latest != nil && latest.ContentHash == contentHash {
			return latest, false, nil
		}
	}

	if name == "" {
		stamp := s.now().Format("Jan 2, 3:04 PM")
		if isAuto {
			name = "Auto-save " + stamp
		} else {
			name = "Version " + stamp
		}
	}

	version, err := s.versions.CreateVersion(ctx, roomID, name, description, string(content), contentHash, createdBy, isAuto)
	if err != nil {
		return nil, false, err
	}

	if isAuto {
		if err := s.versions.DeleteOldAutoVersions(ctx, roomID, s.config.KeepAuto); err != nil {
			s.log.Warn("Failed to clean up old auto versions", "room", roomID, "error", err)
		}
	}
	return version, true, nil
}

func hashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8])
}
