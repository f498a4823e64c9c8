package menu

import (
	"time"

	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/samber/lo"
)

// NewDocument seeds a room from a vendor's full catalog: one slot per item,
// in menu order, nothing selected, zero deltas. The base price is the sum of
// the original items, so a fresh room totals exactly the vendor's menu.
func NewDocument(roomID, vendorID, hostID string, items []catalog.Item, now time.Time) *Document {
	slots := lo.Map(items, func(item catalog.Item, _ int) Slot {
		return Slot{
			OriginalItemID: item.ID,
			CurrentItemID:  item.ID,
			Category:       item.Category,
			DisplayName:    item.Name,
			BasePrice:      item.Price,
			Comments:       []Comment{},
			Votes:          Votes{Up: []string{}, Down: []string{}},
		}
	})

	doc := &Document{
		RoomID:       roomID,
		VendorID:     vendorID,
		HostID:       hostID,
		BasePrice:    lo.SumBy(items, func(item catalog.Item) float64 { return item.Price }),
		Items:        slots,
		Addons:       []Addon{},
		ChatMessages: []ChatEntry{},
		UpdatedBy:    hostID,
		LastUpdated:  now,
		CreatedAt:    now,
	}
	Reprice(doc)
	return doc
}
