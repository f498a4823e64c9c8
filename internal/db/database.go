package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/codec"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/store"
	_ "modernc.org/sqlite"
)

type Database struct {
	db  *sql.DB
	log *slog.Logger
}

type Version struct {
	ID          int       `json:"id"`
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	IsAuto      bool      `json:"is_auto"` // Auto-saved vs manual
}

func New(dbPath string, log *slog.Logger) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)
	return &Database{db: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		host_id TEXT NOT NULL,
		total_price REAL NOT NULL DEFAULT 0,
		is_locked BOOLEAN NOT NULL DEFAULT FALSE,
		document BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_updated_at ON rooms(updated_at DESC);

	CREATE TABLE IF NOT EXISTS catalog_items (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_items_vendor ON catalog_items(vendor_id, position);

	CREATE TABLE IF NOT EXISTS room_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		created_by TEXT DEFAULT '',
		is_auto BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_room_versions_room_id ON room_versions(room_id);
	CREATE INDEX IF NOT EXISTS idx_room_versions_created_at ON room_versions(room_id, created_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Room operations. Documents are stored whole as CBOR; the scalar columns
// only serve listings.

func (d *Database) Create(ctx context.Context, doc *menu.Document) error {
	blob, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", doc.RoomID, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO rooms (id, vendor_id, host_id, total_price, is_locked, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.RoomID, doc.VendorID, doc.HostID, doc.TotalPrice, doc.IsLocked, blob, doc.CreatedAt.UTC(), doc.LastUpdated.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrExists
		}
		return err
	}
	return nil
}

func (d *Database) Get(ctx context.Context, roomID string) (*menu.Document, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx, "SELECT document FROM rooms WHERE id = ?", roomID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc menu.Document
	if err := codec.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return doc.Clone(), nil
}

func (d *Database) Replace(ctx context.Context, roomID string, doc *menu.Document) error {
	blob, err := codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", roomID, err)
	}
	result, err := d.db.ExecContext(ctx, `
		UPDATE rooms SET total_price = ?, is_locked = ?, document = ?, updated_at = ?
		WHERE id = ?
	`, doc.TotalPrice, doc.IsLocked, blob, doc.LastUpdated.UTC(), roomID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Database) List(ctx context.Context, limit, offset int) ([]menu.Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, vendor_id, host_id, total_price, is_locked, created_at, updated_at
		FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []menu.Summary{}
	for rows.Next() {
		var s menu.Summary
		if err := rows.Scan(&s.RoomID, &s.VendorID, &s.HostID, &s.TotalPrice, &s.IsLocked, &s.CreatedAt, &s.LastUpdated); err != nil {
			return nil, err
		}
		rooms = append(rooms, s)
	}
	return rooms, rows.Err()
}

// Catalog operations

// UpsertCatalogItems inserts or refreshes items in one transaction.
func (d *Database) UpsertCatalogItems(ctx context.Context, items []catalog.Item) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_items (id, vendor_id, name, category, price, position)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor_id = excluded.vendor_id,
			name = excluded.name,
			category = excluded.category,
			price = excluded.price,
			position = excluded.position
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ID, item.VendorID, item.Name, item.Category, item.Price, item.Position); err != nil {
			return fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

func (d *Database) GetItem(ctx context.Context, itemID string) (catalog.Item, error) {
	var item catalog.Item
	err := d.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, name, category, price, position FROM catalog_items WHERE id = ?
	`, itemID).Scan(&item.ID, &item.VendorID, &item.Name, &item.Category, &item.Price, &item.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return item, err
}

func (d *Database) ListVendorItems(ctx context.Context, vendorID string) ([]catalog.Item, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, vendor_id, name, category, price, position
		FROM catalog_items WHERE vendor_id = ? ORDER BY position ASC, id ASC
	`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		var item catalog.Item
		if err := rows.Scan(&item.ID, &item.VendorID, &item.Name, &item.Category, &item.Price, &item.Position); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Version operations

// CreateVersion saves a new version of a room document
func (d *Database) CreateVersion(ctx context.Context, roomID, name, description, content, contentHash, createdBy string, isAuto bool) (*Version, error) {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO room_versions (room_id, name, description, content, content_hash, created_by, is_auto)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, roomID, name, description, content, contentHash, createdBy, isAuto)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return d.GetVersion(ctx, int(id))
}

const versionColumns = "id, room_id, name, description, content, content_hash, created_by, is_auto, created_at"

func scanVersion(row interface{ Scan(...any) error }) (*Version, error) {
	var v Version
	err := row.Scan(&v.ID, &v.RoomID, &v.Name, &v.Description, &v.Content, &v.ContentHash, &v.CreatedBy, &v.IsAuto, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVersion retrieves a specific version by ID, nil when it does not exist
func (d *Database) GetVersion(ctx context.Context, id int) (*Version, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+versionColumns+" FROM room_versions WHERE id = ?", id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// ListVersions returns all versions for a room, newest first
func (d *Database) ListVersions(ctx context.Context, roomID string, limit, offset int) ([]Version, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM room_versions
		WHERE room_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// GetVersionCount returns the number of versions for a room
func (d *Database) GetVersionCount(ctx context.Context, roomID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_versions WHERE room_id = ?", roomID).Scan(&count)
	return count, err
}

// GetLatestVersion returns the most recent version for a room
func (d *Database) GetLatestVersion(ctx context.Context, roomID string) (*Version, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM room_versions
		WHERE room_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, roomID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// DeleteVersion removes a version by ID
func (d *Database) DeleteVersion(ctx context.Context, id int) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM room_versions WHERE id = ?", id)
	return err
}

// DeleteOldAutoVersions removes old auto-saved versions, keeping the most recent N
func (d *Database) DeleteOldAutoVersions(ctx context.Context, roomID string, keepCount int) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM room_versions
		WHERE room_id = ? AND is_auto = TRUE AND id NOT IN (
			SELECT id FROM room_versions
			WHERE room_id = ? AND is_auto = TRUE
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`, roomID, roomID, keepCount)
	return err
}

// Stats

type Stats struct {
	RoomCount    int `json:"room_count"`
	VersionCount int `json:"version_count"`
	CatalogItems int `json:"catalog_items"`
}

func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM rooms", &stats.RoomCount},
		{"SELECT COUNT(*) FROM room_versions", &stats.VersionCount},
		{"SELECT COUNT(*) FROM catalog_items", &stats.CatalogItems},
	}
	for _, c := range counts {
		if err := d.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}
