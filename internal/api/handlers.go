package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/db"
	"github.com/manpreetbhatti/menuroom/internal/history"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/room"
	"github.com/manpreetbhatti/menuroom/internal/store"
	"github.com/manpreetbhatti/menuroom/internal/ws"
)

type API struct {
	hub      *ws.Hub
	rooms    *room.Service
	database *db.Database
	history  *history.Service
	log      *slog.Logger
}

func New(hub *ws.Hub, rooms *room.Service, database *db.Database, versions *history.Service, log *slog.Logger) *API {
	return &API{
		hub:      hub,
		rooms:    rooms,
		database: database,
		history:  versions,
		log:      log,
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// pagination reads limit and offset, falling back to def for a missing or
// out of range limit.
func pagination(c *gin.Context, def int) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 100 {
		limit = def
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(c *gin.Context) {
	stats := gin.H{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	dbStats, err := a.database.GetStats(c.Request.Context())
	if err == nil {
		stats["stored_rooms"] = dbStats.RoomCount
		stats["total_versions"] = dbStats.VersionCount
		stats["catalog_items"] = dbStats.CatalogItems
	} else {
		a.log.Warn("Failed to read stats", "error", err)
	}

	c.JSON(http.StatusOK, stats)
}

// Room handlers

type CreateRoomRequest struct {
	RoomID   string `json:"roomId"`
	VendorID string `json:"vendorId" binding:"required"`
	HostID   string `json:"hostId" binding:"required"`
}

type RoomResponse struct {
	menu.Summary
	ActiveUsers int `json:"activeUsers"`
}

func (a *API) ListRoomsHandler(c *gin.Context) {
	limit, offset := pagination(c, 20)

	rooms, err := a.rooms.List(c.Request.Context(), limit, offset)
	if err != nil {
		a.log.Error("Failed to list rooms", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	activeRooms := a.hub.GetActiveRooms()
	response := make([]RoomResponse, len(rooms))
	for i, summary := range rooms {
		response[i] = RoomResponse{Summary: summary, ActiveUsers: activeRooms[summary.RoomID]}
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) CreateRoomHandler(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "vendorId and hostId are required")
		return
	}

	doc, err := a.rooms.Open(c.Request.Context(), req.RoomID, req.VendorID, req.HostID)
	switch {
	case errors.Is(err, room.ErrVendorNotFound):
		errorResponse(c, http.StatusNotFound, "Vendor not found")
		return
	case errors.Is(err, store.ErrExists):
		errorResponse(c, http.StatusConflict, "Room already exists")
		return
	case err != nil:
		a.log.Error("Failed to create room", "room", req.RoomID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to create room")
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// loadRoom writes the error response itself and returns nil when the room
// cannot be read.
func (a *API) loadRoom(c *gin.Context) *menu.Document {
	roomID := c.Param("id")
	doc, err := a.rooms.Get(c.Request.Context(), roomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		errorResponse(c, http.StatusNotFound, "Room not found")
		return nil
	}
	if err != nil {
		a.log.Error("Failed to get room", "room", roomID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to get room")
		return nil
	}
	return doc
}

func (a *API) GetRoomHandler(c *gin.Context) {
	doc := a.loadRoom(c)
	if doc == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":    doc,
		"members": a.rooms.Members(doc.RoomID),
	})
}

func (a *API) EnquiryHandler(c *gin.Context) {
	doc := a.loadRoom(c)
	if doc == nil {
		return
	}
	c.JSON(http.StatusOK, menu.NewEnquiry(doc))
}

func (a *API) VendorCatalogHandler(c *gin.Context) {
	vendorID := c.Param("id")
	items, err := a.database.ListVendorItems(c.Request.Context(), vendorID)
	if err != nil {
		a.log.Error("Failed to list catalog", "vendor", vendorID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list catalog")
		return
	}
	if len(items) == 0 {
		errorResponse(c, http.StatusNotFound, "Vendor not found")
		return
	}
	catalog.SortMenuOrder(items)

	c.JSON(http.StatusOK, gin.H{
		"vendorId": vendorID,
		"items":    items,
	})
}

// Version handlers

type CreateVersionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

type VersionResponse struct {
	ID          int       `json:"id"`
	RoomID      string    `json:"room_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"` // Omit in list view
	ContentHash string    `json:"content_hash"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsAuto      bool      `json:"is_auto"`
}

func versionResponse(v db.Version, withContent bool) VersionResponse {
	resp := VersionResponse{
		ID:          v.ID,
		RoomID:      v.RoomID,
		Name:        v.Name,
		Description: v.Description,
		ContentHash: v.ContentHash,
		CreatedBy:   v.CreatedBy,
		CreatedAt:   v.CreatedAt,
		IsAuto:      v.IsAuto,
	}
	if withContent {
		resp.Content = v.Content
	}
	return resp
}

func (a *API) ListVersionsHandler(c *gin.Context) {
	roomID := c.Param("id")
	limit, offset := pagination(c, 50)
	ctx := c.Request.Context()

	versions, err := a.database.ListVersions(ctx, roomID, limit, offset)
	if err != nil {
		a.log.Error("Failed to list versions", "room", roomID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to list versions")
		return
	}

	response := make([]VersionResponse, len(versions))
	for i, v := range versions {
		response[i] = versionResponse(v, false)
	}

	total, _ := a.database.GetVersionCount(ctx, roomID)

	c.JSON(http.StatusOK, gin.H{
		"versions": response,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// CreateVersionHandler snapshots the room's current document as a manual
// version. The body is optional.
func (a *API) CreateVersionHandler(c *gin.Context) {
	roomID := c.Param("id")

	var req CreateVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	version, _, err := a.history.Snapshot(c.Request.Context(), roomID, req.Name, req.Description, req.CreatedBy, false)
	if errors.Is(err, store.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		a.log.Error("Failed to create version", "room", roomID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to create version")
		return
	}

	c.JSON(http.StatusCreated, versionResponse(*version, false))
}

// findVersion writes the error response itself and returns nil when the
// version cannot be read.
func (a *API) findVersion(c *gin.Context, raw, label string) *db.Version {
	versionID, err := strconv.Atoi(raw)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid "+strings.ToLower(label)+" ID")
		return nil
	}

	version, err := a.database.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		a.log.Error("Failed to get version", "version", versionID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to get version")
		return nil
	}
	if version == nil {
		errorResponse(c, http.StatusNotFound, label+" not found")
		return nil
	}
	return version
}

func (a *API) GetVersionHandler(c *gin.Context) {
	version := a.findVersion(c, c.Param("id"), "Version")
	if version == nil {
		return
	}
	c.JSON(http.StatusOK, versionResponse(*version, true))
}

func (a *API) DiffVersionsHandler(c *gin.Context) {
	from := a.findVersion(c, c.Query("from"), "From version")
	if from == nil {
		return
	}
	to := a.findVersion(c, c.Query("to"), "To version")
	if to == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from": VersionResponse{ID: from.ID, Name: from.Name, ContentHash: from.ContentHash, CreatedAt: from.CreatedAt},
		"to":   VersionResponse{ID: to.ID, Name: to.Name, ContentHash: to.ContentHash, CreatedAt: to.CreatedAt},
		"diff": history.Diff(from.Content, to.Content),
	})
}

func (a *API) DeleteVersionHandler(c *gin.Context) {
	version := a.findVersion(c, c.Param("id"), "Version")
	if version == nil {
		return
	}
	if err := a.database.DeleteVersion(c.Request.Context(), version.ID); err != nil {
		a.log.Error("Failed to delete version", "version", version.ID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to delete version")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Version deleted"})
}

type RestoreVersionRequest struct {
	RestoredBy string `json:"restored_by"`
}

// RestoreVersionHandler puts a version's document back into its room,
// broadcasts it to connected members and records the restore as a new
// manual version.
func (a *API) RestoreVersionHandler(c *gin.Context) {
	version := a.findVersion(c, c.Param("id"), "Version")
	if version == nil {
		return
	}

	var req RestoreVersionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var snapshot menu.Document
	if err := json.Unmarshal([]byte(version.Content), &snapshot); err != nil {
		a.log.Error("Stored version is not a room document", "version", version.ID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to read version")
		return
	}

	ctx := c.Request.Context()
	doc, err := a.rooms.Restore(ctx, version.RoomID, &snapshot, req.RestoredBy)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		errorResponse(c, http.StatusNotFound, "Room not found")
		return
	case errors.Is(err, room.ErrRoomLocked):
		errorResponse(c, http.StatusConflict, "Room is locked")
		return
	case errors.Is(err, room.ErrSnapshotMismatch):
		errorResponse(c, http.StatusConflict, "Version does not match the room's menu")
		return
	case err != nil:
		a.log.Error("Failed to restore version", "version", version.ID, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to restore version")
		return
	}

	restored, _, err := a.history.Snapshot(ctx, version.RoomID,
		"Restored from: "+version.Name,
		fmt.Sprintf("Restored to version %d (%s)", version.ID, version.Name),
		req.RestoredBy, false)
	if err != nil {
		a.log.Warn("Failed to record restore", "version", version.ID, "error", err)
	}

	response := gin.H{
		"message":       "Version restored",
		"restored_from": version.ID,
		"room":          doc,
	}
	if restored != nil {
		response["new_version"] = restored.ID
	}
	c.JSON(http.StatusOK, response)
}
