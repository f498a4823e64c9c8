package menu

import (
	"time"
)

// Comment left by a participant on one slot
type Comment struct {
	Text       string    `json:"text" bson:"text"`
	AuthorName string    `json:"authorName" bson:"author_name"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// Room-wide chat line, kept in arrival order
type ChatEntry struct {
	Text       string    `json:"text" bson:"text"`
	AuthorName string    `json:"authorName" bson:"author_name"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// Votes holds voter names per bucket. A voter is in at most one bucket.
type Votes struct {
	Up   []string `json:"up" bson:"up"`
	Down []string `json:"down" bson:"down"`
}

// Slot is one fixed position of the menu. Slots are swapped, never added or removed.
type Slot struct {
	OriginalItemID string    `json:"originalItemId" bson:"original_item_id"`
	CurrentItemID  string    `json:"currentItemId" bson:"current_item_id"`
	Category       string    `json:"categoryLabel" bson:"category_label"`
	DisplayName    string    `json:"displayName" bson:"display_name"`
	BasePrice      float64   `json:"basePriceOfOriginalItem" bson:"base_price_of_original_item"`
	PriceDelta     float64   `json:"priceDelta" bson:"price_delta"`
	IsSelected     bool      `json:"isSelected" bson:"is_selected"`
	Comments       []Comment `json:"comments" bson:"comments"`
	Votes          Votes     `json:"votes" bson:"votes"`
}

// Addon is an extra catalog item ordered in some quantity on top of the menu.
type Addon struct {
	ItemID      string  `json:"itemId" bson:"item_id"`
	DisplayName string  `json:"displayName" bson:"display_name"`
	UnitPrice   float64 `json:"unitPrice" bson:"unit_price"`
	Quantity    int     `json:"quantity" bson:"quantity"`
}

// Document is the shared state of one room. It is only ever changed through
// the mutation interpreter; everything else reads it.
type Document struct {
	RoomID       string      `json:"roomId" bson:"_id"`
	VendorID     string      `json:"vendorId" bson:"vendor_id"`
	HostID       string      `json:"hostId" bson:"host_id"`
	BasePrice    float64     `json:"basePrice" bson:"base_price"`
	TotalPrice   float64     `json:"totalPrice" bson:"total_price"`
	Items        []Slot      `json:"items" bson:"items"`
	Addons       []Addon     `json:"addons" bson:"addons"`
	ChatMessages []ChatEntry `json:"chatMessages" bson:"chat_messages"`
	IsLocked     bool        `json:"isLocked" bson:"is_locked"`
	UpdatedBy    string      `json:"updatedBy" bson:"updated_by"`
	LastUpdated  time.Time   `json:"lastUpdated" bson:"last_updated"`
	CreatedAt    time.Time   `json:"createdAt" bson:"created_at"`
}

// Summary is the listing view of a room.
type Summary struct {
	RoomID      string    `json:"roomId"`
	VendorID    string    `json:"vendorId"`
	HostID      string    `json:"hostId"`
	TotalPrice  float64   `json:"totalPrice"`
	IsLocked    bool      `json:"isLocked"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (d *Document) Summary() Summary {
	return Summary{
		RoomID:      d.RoomID,
		VendorID:    d.VendorID,
		HostID:      d.HostID,
		TotalPrice:  d.TotalPrice,
		IsLocked:    d.IsLocked,
		CreatedAt:   d.CreatedAt,
		LastUpdated: d.LastUpdated,
	}
}

// HasSlot reports whether index addresses an existing slot.
func (d *Document) HasSlot(index int) bool {
	return index >= 0 && index < len(d.Items)
}

// Clone returns a deep copy, so callers can change the copy without
// touching a document other goroutines may still be reading. Nil slices
// come back empty so the wire form never carries null lists.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d

	out.Items = make([]Slot, len(d.Items))
	for i, slot := range d.Items {
		slot.Comments = cloneSlice(slot.Comments)
		slot.Votes = Votes{
			Up:   cloneSlice(slot.Votes.Up),
			Down: cloneSlice(slot.Votes.Down),
		}
		out.Items[i] = slot
	}
	out.Addons = cloneSlice(d.Addons)
	out.ChatMessages = cloneSlice(d.ChatMessages)
	return &out
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
