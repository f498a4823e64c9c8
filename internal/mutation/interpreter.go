package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/samber/lo"
)

// Interpreter applies mutations to documents. It holds no room state and is
// safe for concurrent use; ordering per room is the caller's job.
type Interpreter struct {
	catalog catalog.Lookup
	now     func() time.Time
}

func NewInterpreter(lookup catalog.Lookup, now func() time.Time) *Interpreter {
	if now == nil {
		now = time.Now
	}
	return &Interpreter{catalog: lookup, now: now}
}

// Apply returns the document that results from applying m on behalf of
// actorID. The input document is never modified. A *Rejection means the
// mutation broke a business rule; any other error is an infrastructure
// failure from the catalog.
func (in *Interpreter) Apply(ctx context.Context, doc *menu.Document, m Mutation, actorID string) (*menu.Document, error) {
	if m == nil {
		return nil, ErrUnsupported
	}
	if doc.IsLocked && gatedByLock(m) {
		return nil, ErrLocked
	}

	next := doc.Clone()
	now := in.now().UTC()

	var err error
	switch m := m.(type) {
	case SwapItem:
		err = in.swapItem(ctx, next, m)
	case ToggleSelection:
		toggleSelection(next, m)
	case AddOrUpdateAddon:
		err = in.addOrUpdateAddon(ctx, next, m)
	case AddComment:
		addComment(next, m, now)
	case VoteItem:
		err = voteItem(next, m)
	case AppendChatMessage:
		next.ChatMessages = append(next.ChatMessages, menu.ChatEntry{
			Text:       m.Text,
			AuthorName: m.AuthorName,
			Timestamp:  now,
		})
	case LockRoom:
		err = setLocked(next, actorID, true)
	case UnlockRoom:
		err = setLocked(next, actorID, false)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return nil, err
	}

	menu.Reprice(next)
	next.UpdatedBy = actorID
	next.LastUpdated = now
	return next, nil
}

// Chat and unlocking stay available in a locked room.
func gatedByLock(m Mutation) bool {
	switch m.(type) {
	case UnlockRoom, AppendChatMessage:
		return false
	default:
		return true
	}
}

func (in *Interpreter) resolve(ctx context.Context, doc *menu.Document, itemID string) (catalog.Item, error) {
	item, err := in.catalog.GetItem(ctx, itemID)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return catalog.Item{}, rejectf("item %s does not exist", itemID)
	}
	if err != nil {
		return catalog.Item{}, fmt.Errorf("resolve item %s: %w", itemID, err)
	}
	if item.VendorID != "" && doc.VendorID != "" && item.VendorID != doc.VendorID {
		return catalog.Item{}, rejectf("item %s does not exist", itemID)
	}
	return item, nil
}

// The delta is always against the slot's original item, so repeated swaps
// never compound.
func (in *Interpreter) swapItem(ctx context.Context, doc *menu.Document, m SwapItem) error {
	if !doc.HasSlot(m.SlotIndex) {
		return rejectf("slot index %d out of range", m.SlotIndex)
	}
	item, err := in.resolve(ctx, doc, m.NewItemID)
	if err != nil {
		return err
	}
	slot := &doc.Items[m.SlotIndex]
	slot.CurrentItemID = item.ID
	slot.DisplayName = item.Name
	slot.PriceDelta = item.Price - slot.BasePrice
	return nil
}

// Out of range indexes are ignored.
func toggleSelection(doc *menu.Document, m ToggleSelection) {
	if !doc.HasSlot(m.SlotIndex) {
		return
	}
	doc.Items[m.SlotIndex].IsSelected = m.IsSelected
}

func (in *Interpreter) addOrUpdateAddon(ctx context.Context, doc *menu.Document, m AddOrUpdateAddon) error {
	item, err := in.resolve(ctx, doc, m.ItemID)
	if err != nil {
		return err
	}

	_, index, found := lo.FindIndexOf(doc.Addons, func(a menu.Addon) bool { return a.ItemID == m.ItemID })
	switch {
	case found && m.Quantity <= 0:
		doc.Addons = append(doc.Addons[:index], doc.Addons[index+1:]...)
	case found:
		doc.Addons[index].Quantity = m.Quantity
	case m.Quantity > 0:
		doc.Addons = append(doc.Addons, menu.Addon{
			ItemID:      item.ID,
			DisplayName: item.Name,
			UnitPrice:   item.Price,
			Quantity:    m.Quantity,
		})
	}
	return nil
}

// Out of range indexes are ignored.
func addComment(doc *menu.Document, m AddComment, now time.Time) {
	if !doc.HasSlot(m.SlotIndex) {
		return
	}
	slot := &doc.Items[m.SlotIndex]
	slot.Comments = append(slot.Comments, menu.Comment{
		Text:       m.Text,
		AuthorName: m.AuthorName,
		Timestamp:  now,
	})
}

// A voter is first removed from both buckets, so a vote is idempotent and
// switching sides never leaves the voter in two buckets. An out-of-range
// index is rejected here, unlike toggle and comment which silently ignore
// it; the lenient reading was considered and not taken.
func voteItem(doc *menu.Document, m VoteItem) error {
	if !doc.HasSlot(m.SlotIndex) {
		return rejectf("slot index %d out of range", m.SlotIndex)
	}
	votes := &doc.Items[m.SlotIndex].Votes
	votes.Up = lo.Without(votes.Up, m.VoterName)
	votes.Down = lo.Without(votes.Down, m.VoterName)

	switch m.VoteType {
	case VoteUp:
		votes.Up = append(votes.Up, m.VoterName)
	case VoteDown:
		votes.Down = append(votes.Down, m.VoterName)
	case VoteRemove:
	default:
		return rejectf("unknown vote type %q", m.VoteType)
	}
	return nil
}

func setLocked(doc *menu.Document, actorID string, locked bool) error {
	if actorID == "" || actorID != doc.HostID {
		return ErrOnlyHost
	}
	doc.IsLocked = locked
	return nil
}
