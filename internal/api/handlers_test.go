package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/db"
	"github.com/manpreetbhatti/menuroom/internal/history"
	"github.com/manpreetbhatti/menuroom/internal/presence"
	"github.com/manpreetbhatti/menuroom/internal/ratelimit"
	"github.com/manpreetbhatti/menuroom/internal/room"
	"github.com/manpreetbhatti/menuroom/internal/serializer"
	"github.com/manpreetbhatti/menuroom/internal/ws"
)

type testEnv struct {
	router   *gin.Engine
	database *db.Database
}

func setupTestAPI(t *testing.T) (*testEnv, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tmpDir, err := os.MkdirTemp("", "menuroom-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"), log)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	err = database.UpsertCatalogItems(context.Background(), []catalog.Item{
		{ID: "paneer-tikka", VendorID: "spice-route", Name: "Paneer Tikka", Category: "Starter", Price: 100, Position: 0},
		{ID: "dal-makhani", VendorID: "spice-route", Name: "Dal Makhani", Category: "Main", Price: 200, Position: 1},
		{ID: "gulab-jamun", VendorID: "spice-route", Name: "Gulab Jamun", Category: "Dessert", Price: 50, Position: 2},
	})
	if err != nil {
		t.Fatalf("Failed to seed catalog: %v", err)
	}

	limiters := ratelimit.NewClientLimiters(100, 100)
	hub := ws.NewHub(limiters, []string{"*"}, log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	versions := history.New(database, database, history.Config{Interval: time.Hour, KeepAuto: 20}, log)
	rooms := room.NewService(database, database, serializer.New(log), presence.NewRegistry(), hub, log,
		room.WithCommitHook(versions.Touch))

	api := New(hub, rooms, database, versions, log)

	cleanup := func() {
		cancel()
		limiters.Stop()
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return &testEnv{router: api.Router([]string{"*"}), database: database}, cleanup
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func (e *testEnv) openRoom(t *testing.T, roomID string) {
	t.Helper()
	w := e.do(t, "POST", "/api/rooms", map[string]string{"roomId": roomID, "vendorId": "spice-route", "hostId": "host-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to open room %s: %d %s", roomID, w.Code, w.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	w := env.do(t, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	decode(t, w, &response)
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "stats-room")

	w := env.do(t, "GET", "/api/stats", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	decode(t, w, &response)
	for _, key := range []string{"active_rooms", "active_clients", "stored_rooms", "catalog_items"} {
		if _, ok := response[key]; !ok {
			t.Errorf("Response should contain '%s'", key)
		}
	}
	if response["stored_rooms"] != float64(1) {
		t.Errorf("Expected 1 stored room, got %v", response["stored_rooms"])
	}
	if response["catalog_items"] != float64(3) {
		t.Errorf("Expected 3 catalog items, got %v", response["catalog_items"])
	}
}

func TestCreateRoom(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{
			name:           "Create room with ID",
			body:           map[string]string{"roomId": "party-1", "vendorId": "spice-route", "hostId": "host-1"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Create room with generated ID",
			body:           map[string]string{"vendorId": "spice-route", "hostId": "host-1"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Existing room conflicts",
			body:           map[string]string{"roomId": "party-1", "vendorId": "spice-route", "hostId": "host-2"},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "Unknown vendor",
			body:           map[string]string{"vendorId": "nobody", "hostId": "host-1"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Missing host should fail",
			body:           map[string]string{"vendorId": "spice-route"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Invalid JSON should fail",
			body:           "not an object",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/rooms", tt.body)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCreateRoomSeedsDocument(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	w := env.do(t, "POST", "/api/rooms", map[string]string{"roomId": "seeded", "vendorId": "spice-route", "hostId": "host-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	var doc struct {
		RoomID     string  `json:"roomId"`
		HostID     string  `json:"hostId"`
		BasePrice  float64 `json:"basePrice"`
		TotalPrice float64 `json:"totalPrice"`
		Items      []struct {
			CurrentItemID string `json:"currentItemId"`
		} `json:"items"`
	}
	decode(t, w, &doc)

	if doc.RoomID != "seeded" || doc.HostID != "host-1" {
		t.Errorf("Unexpected identity %s/%s", doc.RoomID, doc.HostID)
	}
	if len(doc.Items) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(doc.Items))
	}
	if doc.Items[0].CurrentItemID != "paneer-tikka" {
		t.Errorf("Expected catalog order, first slot is %s", doc.Items[0].CurrentItemID)
	}
	if doc.BasePrice != 350 || doc.TotalPrice != 350 {
		t.Errorf("Expected base and total 350, got %v and %v", doc.BasePrice, doc.TotalPrice)
	}
}

func TestGetRoom(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "get-test-room")

	w := env.do(t, "GET", "/api/rooms/get-test-room", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Room struct {
			RoomID string `json:"roomId"`
		} `json:"room"`
		Members []string `json:"members"`
	}
	decode(t, w, &response)
	if response.Room.RoomID != "get-test-room" {
		t.Errorf("Expected room 'get-test-room', got '%s'", response.Room.RoomID)
	}
	if len(response.Members) != 0 {
		t.Errorf("Expected no members, got %v", response.Members)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	for _, path := range []string{"/api/rooms/non-existent", "/api/rooms/non-existent/enquiry"} {
		w := env.do(t, "GET", path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestEnquiry(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "enquiry-room")

	// Select two slots directly in storage
	ctx := context.Background()
	doc, err := env.database.Get(ctx, "enquiry-room")
	if err != nil {
		t.Fatalf("Failed to load room: %v", err)
	}
	doc.Items[0].IsSelected = true
	doc.Items[2].IsSelected = true
	if err := env.database.Replace(ctx, "enquiry-room", doc); err != nil {
		t.Fatalf("Failed to store room: %v", err)
	}

	w := env.do(t, "GET", "/api/rooms/enquiry-room/enquiry", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var enquiry struct {
		Items []struct {
			CurrentItemID string `json:"currentItemId"`
		} `json:"items"`
		TotalPrice float64 `json:"totalPrice"`
	}
	decode(t, w, &enquiry)
	if len(enquiry.Items) != 2 {
		t.Fatalf("Expected 2 selected items, got %d", len(enquiry.Items))
	}
	for _, item := range enquiry.Items {
		if item.CurrentItemID == "dal-makhani" {
			t.Error("Unselected slot should not be exported")
		}
	}
	if enquiry.TotalPrice != 350 {
		t.Errorf("Expected total 350, got %v", enquiry.TotalPrice)
	}
}

func TestListRooms(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		env.openRoom(t, fmt.Sprintf("list-room-%d", i))
	}

	w := env.do(t, "GET", "/api/rooms", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Rooms []RoomResponse `json:"rooms"`
		Limit int            `json:"limit"`
	}
	decode(t, w, &response)
	if len(response.Rooms) != 3 {
		t.Errorf("Expected 3 rooms, got %d", len(response.Rooms))
	}
	if response.Limit != 20 {
		t.Errorf("Expected default limit 20, got %d", response.Limit)
	}
}

func TestListRoomsPagination(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		env.openRoom(t, fmt.Sprintf("page-room-%d", i))
	}

	w := env.do(t, "GET", "/api/rooms?limit=2&offset=4", nil)

	var response struct {
		Rooms  []RoomResponse `json:"rooms"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}
	decode(t, w, &response)
	if len(response.Rooms) != 1 {
		t.Errorf("Expected 1 room on the last page, got %d", len(response.Rooms))
	}
	if response.Limit != 2 || response.Offset != 4 {
		t.Errorf("Expected limit 2 offset 4, got %d and %d", response.Limit, response.Offset)
	}
}

func TestVendorCatalog(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	w := env.do(t, "GET", "/api/vendors/spice-route/catalog", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response struct {
		Items []catalog.Item `json:"items"`
	}
	decode(t, w, &response)
	if len(response.Items) != 3 {
		t.Errorf("Expected 3 items, got %d", len(response.Items))
	}

	w = env.do(t, "GET", "/api/vendors/nobody/catalog", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown vendor, got %d", w.Code)
	}
}

func TestVersions(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "versioned")

	// Manual snapshot with and without a body
	w := env.do(t, "POST", "/api/rooms/versioned/versions", map[string]string{"name": "Before tasting", "created_by": "host-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var first VersionResponse
	decode(t, w, &first)
	if first.Name != "Before tasting" || first.IsAuto {
		t.Errorf("Unexpected version %+v", first)
	}

	ctx := context.Background()
	doc, _ := env.database.Get(ctx, "versioned")
	doc.Items[0].IsSelected = true
	if err := env.database.Replace(ctx, "versioned", doc); err != nil {
		t.Fatalf("Failed to store room: %v", err)
	}

	w = env.do(t, "POST", "/api/rooms/versioned/versions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var second VersionResponse
	decode(t, w, &second)

	// List
	w = env.do(t, "GET", "/api/rooms/versioned/versions", nil)
	var list struct {
		Versions []VersionResponse `json:"versions"`
		Total    int               `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 2 || len(list.Versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d (total %d)", len(list.Versions), list.Total)
	}
	if list.Versions[0].Content != "" {
		t.Error("List view should omit content")
	}

	// Get with content
	w = env.do(t, "GET", fmt.Sprintf("/api/versions/%d", first.ID), nil)
	var full VersionResponse
	decode(t, w, &full)
	if full.Content == "" {
		t.Error("Single version should carry content")
	}

	// Diff
	w = env.do(t, "GET", fmt.Sprintf("/api/versions/diff?from=%d&to=%d", first.ID, second.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var diff struct {
		Diff []history.DiffLine `json:"diff"`
	}
	decode(t, w, &diff)
	changed := 0
	for _, line := range diff.Diff {
		if line.Type != "unchanged" {
			changed++
		}
	}
	if changed == 0 {
		t.Error("Expected the diff to show the selected slot")
	}

	// Delete
	w = env.do(t, "DELETE", fmt.Sprintf("/api/versions/%d", first.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	w = env.do(t, "GET", fmt.Sprintf("/api/versions/%d", first.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected deleted version to be gone, got %d", w.Code)
	}
}

func TestVersionErrors(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"Snapshot of missing room", "POST", "/api/rooms/ghost/versions", http.StatusNotFound},
		{"Invalid version ID", "GET", "/api/versions/abc", http.StatusBadRequest},
		{"Missing version", "GET", "/api/versions/999", http.StatusNotFound},
		{"Diff without ids", "GET", "/api/versions/diff", http.StatusBadRequest},
		{"Diff of missing versions", "GET", "/api/versions/diff?from=1&to=2", http.StatusNotFound},
		{"Restore of missing version", "POST", "/api/versions/999/restore", http.StatusNotFound},
		{"Delete of missing version", "DELETE", "/api/versions/999", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestRestoreVersion(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "restore-room")

	w := env.do(t, "POST", "/api/rooms/restore-room/versions", map[string]string{"name": "Original"})
	var original VersionResponse
	decode(t, w, &original)

	// Change the room after the snapshot
	ctx := context.Background()
	doc, _ := env.database.Get(ctx, "restore-room")
	doc.Items[2].IsSelected = true
	doc.Items[2].PriceDelta = 25
	doc.TotalPrice = 375
	if err := env.database.Replace(ctx, "restore-room", doc); err != nil {
		t.Fatalf("Failed to store room: %v", err)
	}

	w = env.do(t, "POST", fmt.Sprintf("/api/versions/%d/restore", original.ID), map[string]string{"restored_by": "host-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	restored, err := env.database.Get(ctx, "restore-room")
	if err != nil {
		t.Fatalf("Failed to load room: %v", err)
	}
	if restored.Items[2].IsSelected || restored.Items[2].PriceDelta != 0 {
		t.Errorf("Slot should be back to its snapshot, got %+v", restored.Items[2])
	}
	if restored.TotalPrice != 350 {
		t.Errorf("Expected total 350 after restore, got %v", restored.TotalPrice)
	}
	if restored.UpdatedBy != "host-1" {
		t.Errorf("Expected updatedBy host-1, got %s", restored.UpdatedBy)
	}

	count, _ := env.database.GetVersionCount(ctx, "restore-room")
	if count != 2 {
		t.Errorf("Expected the restore to be recorded as a version, got %d versions", count)
	}
}

func TestRestoreLockedRoom(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "locked-room")

	w := env.do(t, "POST", "/api/rooms/locked-room/versions", nil)
	var version VersionResponse
	decode(t, w, &version)

	ctx := context.Background()
	doc, _ := env.database.Get(ctx, "locked-room")
	doc.IsLocked = true
	if err := env.database.Replace(ctx, "locked-room", doc); err != nil {
		t.Fatalf("Failed to store room: %v", err)
	}

	w = env.do(t, "POST", fmt.Sprintf("/api/versions/%d/restore", version.ID), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestRestoreVersionOfAnotherMenu(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()
	env.openRoom(t, "reused-room")

	// A version saved when the room id belonged to a two-slot menu
	ctx := context.Background()
	doc, _ := env.database.Get(ctx, "reused-room")
	doc.Items = doc.Items[:2]
	content, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to encode document: %v", err)
	}
	version, err := env.database.CreateVersion(ctx, "reused-room", "Old menu", "", string(content), "old", "host-1", false)
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	w := env.do(t, "POST", fmt.Sprintf("/api/versions/%d/restore", version.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}

	stored, _ := env.database.Get(ctx, "reused-room")
	if len(stored.Items) != 3 {
		t.Errorf("Expected the room to keep 3 slots, got %d", len(stored.Items))
	}
}

func TestCORSPreflight(t *testing.T) {
	env, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("OPTIONS", "/api/rooms", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got '%s'", got)
	}
}

func TestCORSConfig(t *testing.T) {
	open := corsConfig([]string{"*"})
	if !open.AllowAllOrigins || open.AllowCredentials {
		t.Errorf("Wildcard should allow all origins without credentials: %+v", open)
	}

	restricted := corsConfig([]string{"https://app.example"})
	if restricted.AllowAllOrigins || !restricted.AllowCredentials {
		t.Errorf("Explicit origins should allow credentials: %+v", restricted)
	}
}
