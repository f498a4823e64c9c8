package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/store"
)

var _ store.Store = (*Database)(nil)
var _ catalog.Source = (*Database)(nil)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "menuroom-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func testItems() []catalog.Item {
	return []catalog.Item{
		{ID: "starter-1", VendorID: "vendor-1", Name: "Soup", Category: "Starter", Price: 100, Position: 0},
		{ID: "main-1", VendorID: "vendor-1", Name: "Curry", Category: "Main", Price: 250, Position: 1},
		{ID: "main-2", VendorID: "vendor-1", Name: "Biryani", Category: "Main", Price: 300, Position: 2},
	}
}

func testDocument(roomID string) *menu.Document {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return menu.NewDocument(roomID, "vendor-1", "host-1", testItems()[:2], now)
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestRoomOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Create room
	doc := testDocument("test-room")
	if err := db.Create(ctx, doc); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	// Duplicate create
	if err := db.Create(ctx, doc); !errors.Is(err, store.ErrExists) {
		t.Fatalf("Expected ErrExists, got %v", err)
	}

	// Get room
	got, err := db.Get(ctx, "test-room")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if got.RoomID != "test-room" {
		t.Errorf("Expected room ID 'test-room', got '%s'", got.RoomID)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Expected 2 slots, got %d", len(got.Items))
	}
	if got.TotalPrice != 350 {
		t.Errorf("Expected total 350, got %v", got.TotalPrice)
	}
	if !got.LastUpdated.Equal(doc.LastUpdated) {
		t.Errorf("Expected lastUpdated %v, got %v", doc.LastUpdated, got.LastUpdated)
	}

	// Get non-existent room
	if _, err := db.Get(ctx, "non-existent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	// Replace
	got.IsLocked = true
	got.Items[0].IsSelected = true
	got.LastUpdated = got.LastUpdated.Add(time.Minute)
	if err := db.Replace(ctx, "test-room", got); err != nil {
		t.Fatalf("Failed to replace room: %v", err)
	}

	reloaded, err := db.Get(ctx, "test-room")
	if err != nil {
		t.Fatalf("Failed to reload room: %v", err)
	}
	if !reloaded.IsLocked || !reloaded.Items[0].IsSelected {
		t.Error("Replace did not persist the new document")
	}

	// Replace of a missing room
	if err := db.Replace(ctx, "missing", got); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListRooms(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i, id := range []string{"room-a", "room-b", "room-c"} {
		doc := testDocument(id)
		doc.LastUpdated = doc.LastUpdated.Add(time.Duration(i) * time.Minute)
		if err := db.Create(ctx, doc); err != nil {
			t.Fatalf("Failed to create room %s: %v", id, err)
		}
	}

	rooms, err := db.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].RoomID != "room-c" {
		t.Errorf("Expected most recently updated room first, got %s", rooms[0].RoomID)
	}

	rooms, err = db.List(ctx, 10, 2)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].RoomID != "room-a" {
		t.Errorf("Expected only room-a on the second page, got %+v", rooms)
	}
}

func TestCatalogOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := db.UpsertCatalogItems(ctx, testItems()); err != nil {
		t.Fatalf("Failed to upsert items: %v", err)
	}

	item, err := db.GetItem(ctx, "main-2")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if item.Name != "Biryani" || item.Price != 300 || item.VendorID != "vendor-1" {
		t.Errorf("Unexpected item: %+v", item)
	}

	if _, err := db.GetItem(ctx, "nope"); !errors.Is(err, catalog.ErrItemNotFound) {
		t.Fatalf("Expected ErrItemNotFound, got %v", err)
	}

	// Upsert refreshes an existing item
	updated := testItems()[2]
	updated.Price = 320
	if err := db.UpsertCatalogItems(ctx, []catalog.Item{updated}); err != nil {
		t.Fatalf("Failed to upsert item: %v", err)
	}
	item, _ = db.GetItem(ctx, "main-2")
	if item.Price != 320 {
		t.Errorf("Expected price 320, got %v", item.Price)
	}

	items, err := db.ListVendorItems(ctx, "vendor-1")
	if err != nil {
		t.Fatalf("Failed to list vendor items: %v", err)
	}
	if len(items) != 3 || items[0].ID != "starter-1" || items[2].ID != "main-2" {
		t.Errorf("Expected items in menu order, got %+v", items)
	}

	items, err = db.ListVendorItems(ctx, "vendor-2")
	if err != nil {
		t.Fatalf("Failed to list vendor items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items for unknown vendor, got %d", len(items))
	}
}

func TestVersionOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := db.Create(ctx, testDocument("test-room")); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	// Create version
	v1, err := db.CreateVersion(ctx, "test-room", "Version 1", "First version", `{"roomId":"test-room"}`, "hash1", "user-1", false)
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
	if v1.Name != "Version 1" {
		t.Errorf("Expected name 'Version 1', got '%s'", v1.Name)
	}
	if v1.IsAuto {
		t.Error("Version should not be auto")
	}

	// Create auto version
	v2, err := db.CreateVersion(ctx, "test-room", "Auto-save", "", `{"roomId":"test-room","isLocked":true}`, "hash2", "", true)
	if err != nil {
		t.Fatalf("Failed to create auto version: %v", err)
	}
	if !v2.IsAuto {
		t.Error("Version should be auto")
	}

	// Get version
	version, err := db.GetVersion(ctx, v1.ID)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version == nil || version.Content != `{"roomId":"test-room"}` {
		t.Errorf("Unexpected version: %+v", version)
	}

	// Missing version
	version, err = db.GetVersion(ctx, 9999)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if version != nil {
		t.Error("Missing version should return nil")
	}

	// List versions
	versions, err := db.ListVersions(ctx, "test-room", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("Expected 2 versions, got %d", len(versions))
	}

	// Count
	count, err := db.GetVersionCount(ctx, "test-room")
	if err != nil {
		t.Fatalf("Failed to count versions: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	// Latest
	latest, err := db.GetLatestVersion(ctx, "test-room")
	if err != nil {
		t.Fatalf("Failed to get latest version: %v", err)
	}
	if latest == nil || latest.ID != v2.ID {
		t.Errorf("Expected latest version %d, got %+v", v2.ID, latest)
	}

	// Delete
	if err := db.DeleteVersion(ctx, v1.ID); err != nil {
		t.Fatalf("Failed to delete version: %v", err)
	}
	count, _ = db.GetVersionCount(ctx, "test-room")
	if count != 1 {
		t.Errorf("Expected count 1 after delete, got %d", count)
	}
}

func TestDeleteOldAutoVersions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := db.Create(ctx, testDocument("test-room")); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := db.CreateVersion(ctx, "test-room", "Auto", "", "{}", "h", "", true); err != nil {
			t.Fatalf("Failed to create auto version: %v", err)
		}
	}
	if _, err := db.CreateVersion(ctx, "test-room", "Manual", "", "{}", "h", "host-1", false); err != nil {
		t.Fatalf("Failed to create manual version: %v", err)
	}

	if err := db.DeleteOldAutoVersions(ctx, "test-room", 2); err != nil {
		t.Fatalf("Failed to delete old versions: %v", err)
	}

	count, _ := db.GetVersionCount(ctx, "test-room")
	if count != 3 {
		t.Errorf("Expected 3 versions (2 auto + 1 manual), got %d", count)
	}
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := db.UpsertCatalogItems(ctx, testItems()); err != nil {
		t.Fatalf("Failed to upsert items: %v", err)
	}
	if err := db.Create(ctx, testDocument("room-1")); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	if _, err := db.CreateVersion(ctx, "room-1", "v", "", "{}", "h", "", false); err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.RoomCount != 1 || stats.VersionCount != 1 || stats.CatalogItems != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
